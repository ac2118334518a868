/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2017 Markus Stenberg
 *
 * Created:       Sun Dec 24 16:42:58 2017 mstenber
 * Last modified: Wed Apr 11 08:40:13 2018 mstenber
 * Edit time:     9 min
 *
 */

package codec

import "github.com/pkg/errors"

// CompressionType is stored as the first byte of CompressingCodec
// output.
type CompressionType byte

const (
	CompressionType_UNSET CompressionType = iota

	// The data has not been compressed.
	CompressionType_PLAIN

	// The data is compressed with LZ4 (block format, length prefix).
	CompressionType_LZ4

	// The data is compressed with Snappy.
	CompressionType_SNAPPY

	// The data is compressed with Zstandard.
	CompressionType_ZSTD
)

var compressionNames = map[string]CompressionType{
	"none":   CompressionType_PLAIN,
	"lz4":    CompressionType_LZ4,
	"snappy": CompressionType_SNAPPY,
	"zstd":   CompressionType_ZSTD,
}

// ParseCompressionType maps configuration names (none, lz4, snappy,
// zstd) to CompressionType.
func ParseCompressionType(name string) (CompressionType, error) {
	if name == "" {
		return CompressionType_PLAIN, nil
	}
	ct, ok := compressionNames[name]
	if !ok {
		return CompressionType_UNSET, errors.Errorf("unknown compression %q", name)
	}
	return ct, nil
}
