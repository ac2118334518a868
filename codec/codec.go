/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2017 Markus Stenberg
 *
 * Created:       Sun Dec 24 16:42:12 2017 mstenber
 * Last modified: Wed Apr 11 09:12:40 2018 mstenber
 * Edit time:     131 min
 *
 */

// codec library is responsible for transforming data + additionalData
// to different kind of data. This means in practise either
// encrypting/decrypting, authenticating, or compressing/uncompressing
// on case-by-case basis. Within logtrie, the unit of transformation is
// a whole log file image on its way to (or from) the storage backend;
// additionalData is the file number, so that files cannot be swapped
// around undetected.
//
// CodecChain makes it possible to combine multiple Codecs that do the
// particular sub-EncodeBytes/DecodeBytes steps.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"encoding/binary"
	"log"

	"github.com/golang/snappy"
	"github.com/jacobsa/crypto/cmac"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/sha256-simd"
	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

var ErrCorrupted = errors.New("codec: corrupted data")

// Codec
//
// Single transformation of byte slices.
type Codec interface {
	DecodeBytes(data, additionalData []byte) (ret []byte, err error)
	EncodeBytes(data, additionalData []byte) (ret []byte, err error)
}

func deriveKey(password, salt []byte, iter, size int) []byte {
	return pbkdf2.Key(password, salt, iter, size, sha256.New)
}

// EncryptingCodec
//
// AES GCM based encrypting/decrypting (+authenticating) Codec.
// Encoded form is nonce followed by the sealed data.
type EncryptingCodec struct {
	gcm cipher.AEAD
	// Main key
	mk []byte
}

func (self EncryptingCodec) Init(password, salt []byte, iter int) *EncryptingCodec {
	self.mk = deriveKey(password, salt, iter, 32)
	block, err := aes.NewCipher(self.mk)
	if err != nil {
		log.Panic(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		log.Panic(err)
	}
	self.gcm = gcm
	return &self
}

func (self *EncryptingCodec) DecodeBytes(data, additionalData []byte) (ret []byte, err error) {
	ns := self.gcm.NonceSize()
	if len(data) < ns {
		err = ErrCorrupted
		return
	}
	ret, err = self.gcm.Open(nil, data[:ns], data[ns:], additionalData)
	return
}

func (self *EncryptingCodec) EncodeBytes(data, additionalData []byte) (ret []byte, err error) {
	ns := self.gcm.NonceSize()
	nonce := make([]byte, ns, ns+len(data)+self.gcm.Overhead())
	if _, err = rand.Read(nonce); err != nil {
		return
	}
	ret = self.gcm.Seal(nonce, nonce, data, additionalData)
	return
}

// AuthenticatingCodec
//
// AES-CMAC tag appended to the (plaintext) data. Useful when the
// content does not need to be hidden, but tampering (or bitrot) of
// the file images should still be detected.
type AuthenticatingCodec struct {
	key []byte
}

const cmacSize = 16

func (self AuthenticatingCodec) Init(password, salt []byte, iter int) *AuthenticatingCodec {
	self.key = deriveKey(password, salt, iter, 16)
	return &self
}

func (self *AuthenticatingCodec) tag(data, additionalData []byte) []byte {
	h, err := cmac.New(self.key)
	if err != nil {
		log.Panic(err)
	}
	h.Write(additionalData)
	h.Write(data)
	return h.Sum(nil)
}

func (self *AuthenticatingCodec) DecodeBytes(data, additionalData []byte) (ret []byte, err error) {
	if len(data) < cmacSize {
		err = ErrCorrupted
		return
	}
	ofs := len(data) - cmacSize
	if !hmac.Equal(self.tag(data[:ofs], additionalData), data[ofs:]) {
		err = errors.Wrap(ErrCorrupted, "cmac mismatch")
		return
	}
	ret = data[:ofs]
	return
}

func (self *AuthenticatingCodec) EncodeBytes(data, additionalData []byte) (ret []byte, err error) {
	ret = make([]byte, 0, len(data)+cmacSize)
	ret = append(ret, data...)
	ret = append(ret, self.tag(data, additionalData)...)
	return
}

// CompressingCodec
//
// On-the-fly compressing Codec. If the result does not improve, the
// result is marked to be plaintext and passed as-is (at cost of 1
// byte). Decoding handles every CompressionType regardless of what
// Algorithm is configured for encoding.
type CompressingCodec struct {
	Algorithm CompressionType

	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// largestDecompressedSize guards against garbage length prefixes.
const largestDecompressedSize = 1 << 30

func (self CompressingCodec) Init(algorithm CompressionType) *CompressingCodec {
	self.Algorithm = algorithm
	var err error
	self.zenc, err = zstd.NewWriter(nil)
	if err != nil {
		log.Panic(err)
	}
	self.zdec, err = zstd.NewReader(nil)
	if err != nil {
		log.Panic(err)
	}
	return &self
}

func (self *CompressingCodec) DecodeBytes(data, additionalData []byte) (ret []byte, err error) {
	if len(data) < 1 {
		err = ErrCorrupted
		return
	}
	ct := CompressionType(data[0])
	body := data[1:]
	switch ct {
	case CompressionType_PLAIN:
		ret = body
	case CompressionType_LZ4:
		size, n := binary.Uvarint(body)
		if n <= 0 || size > largestDecompressedSize {
			err = ErrCorrupted
			return
		}
		ret = make([]byte, size)
		var got int
		got, err = lz4.UncompressBlock(body[n:], ret)
		if err == nil && uint64(got) != size {
			err = ErrCorrupted
		}
	case CompressionType_SNAPPY:
		ret, err = snappy.Decode(nil, body)
	case CompressionType_ZSTD:
		ret, err = self.zdec.DecodeAll(body, nil)
	default:
		err = errors.Wrapf(ErrCorrupted, "unknown compression type %d", ct)
	}
	return
}

func (self *CompressingCodec) compress(data []byte) []byte {
	switch self.Algorithm {
	case CompressionType_LZ4:
		hdr := make([]byte, binary.MaxVarintLen64)
		hn := binary.PutUvarint(hdr, uint64(len(data)))
		rd := make([]byte, 1+hn+lz4.CompressBlockBound(len(data)))
		copy(rd[1:], hdr[:hn])
		ht := make([]int, 1<<16)
		n, err := lz4.CompressBlock(data, rd[1+hn:], ht)
		if err != nil || n == 0 {
			return nil
		}
		return rd[:1+hn+n]
	case CompressionType_SNAPPY:
		enc := snappy.Encode(nil, data)
		return append([]byte{0}, enc...)
	case CompressionType_ZSTD:
		return self.zenc.EncodeAll(data, []byte{0})
	}
	return nil
}

func (self *CompressingCodec) EncodeBytes(data, additionalData []byte) (ret []byte, err error) {
	ret = self.compress(data)
	if ret != nil && len(ret) < len(data)+1 {
		ret[0] = byte(self.Algorithm)
		return
	}
	ret = make([]byte, len(data)+1)
	ret[0] = byte(CompressionType_PLAIN)
	copy(ret[1:], data)
	return
}

type CodecChain struct {
	codecs, reverseCodecs []Codec
}

// Init method initializes the codec chain.
//
// codecs are given in decryption order, so e.g.
// encrypting one should be given before compressing one.
func (self CodecChain) Init(codecs ...Codec) *CodecChain {
	self.codecs = codecs
	// Reverse the codec slice for encryption purposes
	rc := make([]Codec, len(codecs))
	for i, c := range codecs {
		rc[len(codecs)-i-1] = c
	}
	self.reverseCodecs = rc
	return &self
}

func (self *CodecChain) DecodeBytes(data, additionalData []byte) (ret []byte, err error) {
	ret = data
	for _, c := range self.codecs {
		ret, err = c.DecodeBytes(ret, additionalData)
		if err != nil {
			return
		}
	}
	return
}

func (self *CodecChain) EncodeBytes(data, additionalData []byte) (ret []byte, err error) {
	ret = data
	for _, c := range self.reverseCodecs {
		ret, err = c.EncodeBytes(ret, additionalData)
		if err != nil {
			return
		}
	}
	return
}
