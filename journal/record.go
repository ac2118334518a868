/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Mar 12 09:10:31 2019 mstenber
 * Last modified: Tue Mar 12 10:44:02 2019 mstenber
 * Edit time:     41 min
 *
 */

package journal

import (
	"encoding/binary"
	"math"

	"github.com/spaolacci/murmur3"
)

// Address is an offset within the log address space. File n covers
// addresses [n*FileSize, (n+1)*FileSize).
type Address uint64

const NullAddress Address = math.MaxUint64

const checksumSize = 4

// Loggable is single record read from the log.
type Loggable struct {
	Address     Address
	Type        byte
	StructureId uint64
	Data        []byte

	// Length is the full length of the record, including header
	// and checksum.
	Length int
}

// End returns the address right after the record.
func (self *Loggable) End() Address {
	return self.Address + Address(self.Length)
}

func recordSize(sid uint64, dataLen int) int {
	var buf [binary.MaxVarintLen64]byte
	n := 1
	n += binary.PutUvarint(buf[:], sid)
	n += binary.PutUvarint(buf[:], uint64(dataLen))
	return n + dataLen + checksumSize
}

func appendRecord(b []byte, typ byte, sid uint64, data []byte) []byte {
	var buf [binary.MaxVarintLen64]byte
	start := len(b)
	b = append(b, typ)
	n := binary.PutUvarint(buf[:], sid)
	b = append(b, buf[:n]...)
	n = binary.PutUvarint(buf[:], uint64(len(data)))
	b = append(b, buf[:n]...)
	b = append(b, data...)
	sum := murmur3.Sum32(b[start:])
	binary.BigEndian.PutUint32(buf[:], sum)
	return append(b, buf[:checksumSize]...)
}

// decodeRecord decodes the record at the start of b. ok is false if
// there is no valid record there (truncated, bad checksum, or
// padding).
func decodeRecord(b []byte) (l Loggable, ok bool) {
	if len(b) < 1 || b[0] == 0 {
		return
	}
	l.Type = b[0]
	ofs := 1
	sid, n := binary.Uvarint(b[ofs:])
	if n <= 0 {
		return
	}
	ofs += n
	dlen, n := binary.Uvarint(b[ofs:])
	if n <= 0 {
		return
	}
	ofs += n
	if dlen > uint64(len(b)-ofs) || uint64(len(b)-ofs)-dlen < checksumSize {
		return
	}
	end := ofs + int(dlen)
	sum := binary.BigEndian.Uint32(b[end:])
	if murmur3.Sum32(b[:end]) != sum {
		return
	}
	l.StructureId = sid
	l.Data = b[ofs:end:end]
	l.Length = end + checksumSize
	ok = true
	return
}

// validPrefix returns the length of the prefix of b that consists of
// valid records.
func validPrefix(b []byte) int {
	ofs := 0
	for ofs < len(b) {
		l, ok := decodeRecord(b[ofs:])
		if !ok {
			break
		}
		ofs += l.Length
	}
	return ofs
}
