/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2017 Markus Stenberg
 *
 * Created:       Sun Dec 24 17:15:30 2017 mstenber
 * Last modified: Wed Apr 11 09:40:02 2018 mstenber
 * Edit time:     79 min
 *
 */

package codec

import (
	"crypto/rand"
	"fmt"
	"log"
	"testing"

	"github.com/stvp/assert"
)

const compressible = "123456789123456789123456789123456789123456789123456789123456789123456789123456789123456789123456789"

func ProdCodecOnce(text string, c Codec, t *testing.T) {
	p := []byte(text)
	enc, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)
	dec, err := c.DecodeBytes(enc, nil)
	assert.Nil(t, err)
	assert.Equal(t, len(p), len(dec))
	assert.Equal(t, string(p), string(dec))
}

func ProdCodec(c Codec, t *testing.T) {
	ProdCodecOnce("", c, t)
	ProdCodecOnce("foo", c, t)
	ProdCodecOnce(compressible, c, t)
}

func TestEncryptingCodec(t *testing.T) {
	t.Parallel()
	p := []byte("data")
	ad := []byte("ad")

	c := EncryptingCodec{}.Init([]byte("foo"), []byte("salt"), 64)

	// 'any codec' handling
	ProdCodec(c, t)

	enc, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)

	// Ensure we can't fool around with additional data
	_, err2 := c.DecodeBytes(enc, ad)
	assert.True(t, err2 != nil)

	// Ensure same payload does not encrypt the same way
	enc2, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)
	assert.NotEqual(t, enc, enc2)

	// But it still can be decrypted
	dec, err := c.DecodeBytes(enc2, nil)
	assert.Nil(t, err)
	assert.Equal(t, p, dec)

	// Ensure we're good with additional data too
	enc3, err := c.EncodeBytes(p, ad)
	assert.Nil(t, err)
	dec, err = c.DecodeBytes(enc3, ad)
	assert.Nil(t, err)
	assert.Equal(t, p, dec)

	_, err = c.DecodeBytes([]byte("x"), nil)
	assert.True(t, err != nil)
}

func TestAuthenticatingCodec(t *testing.T) {
	t.Parallel()
	c := AuthenticatingCodec{}.Init([]byte("foo"), []byte("salt"), 64)
	ProdCodec(c, t)

	p := []byte("data")
	enc, err := c.EncodeBytes(p, []byte("1"))
	assert.Nil(t, err)
	assert.Equal(t, len(enc), len(p)+cmacSize)

	_, err = c.DecodeBytes(enc, []byte("2"))
	assert.True(t, err != nil)

	enc[0] ^= 1
	_, err = c.DecodeBytes(enc, []byte("1"))
	assert.True(t, err != nil)
}

func TestCompressingCodec(t *testing.T) {
	t.Parallel()
	for _, ct := range []CompressionType{CompressionType_LZ4, CompressionType_SNAPPY, CompressionType_ZSTD} {
		c := CompressingCodec{}.Init(ct)
		ProdCodec(c, t)

		p := []byte(compressible)
		enc, err := c.EncodeBytes(p, nil)
		assert.Nil(t, err)
		assert.True(t, len(enc) < len(compressible), "no gain with", ct)
		assert.Equal(t, CompressionType(enc[0]), ct)

		// Random data does not compress; it should be stored as-is
		r := make([]byte, 64)
		rand.Read(r)
		enc, err = c.EncodeBytes(r, nil)
		assert.Nil(t, err)
		assert.Equal(t, CompressionType(enc[0]), CompressionType_PLAIN)
		assert.Equal(t, len(enc), len(r)+1)
	}
}

func TestCompressingCodecDecodesAny(t *testing.T) {
	t.Parallel()
	p := []byte(compressible)
	enc, err := CompressingCodec{}.Init(CompressionType_SNAPPY).EncodeBytes(p, nil)
	assert.Nil(t, err)
	dec, err := CompressingCodec{}.Init(CompressionType_LZ4).DecodeBytes(enc, nil)
	assert.Nil(t, err)
	assert.Equal(t, string(dec), compressible)

	_, err = CompressingCodec{}.Init(CompressionType_LZ4).DecodeBytes([]byte{42, 1}, nil)
	assert.True(t, err != nil)
}

func TestParseCompressionType(t *testing.T) {
	t.Parallel()
	ct, err := ParseCompressionType("zstd")
	assert.Nil(t, err)
	assert.Equal(t, ct, CompressionType_ZSTD)
	ct, err = ParseCompressionType("")
	assert.Nil(t, err)
	assert.Equal(t, ct, CompressionType_PLAIN)
	_, err = ParseCompressionType("gzip")
	assert.True(t, err != nil)
}

func TestNopCodecChain(t *testing.T) {
	t.Parallel()
	c := &CodecChain{}
	ProdCodec(c, t)
}

func TestCodecChain(t *testing.T) {
	t.Parallel()
	c1 := EncryptingCodec{}.Init([]byte("foo"), []byte("salt"), 64)
	c2 := CompressingCodec{}.Init(CompressionType_LZ4)
	c := CodecChain{}.Init(c1, c2)
	ProdCodec(c, t)

	p := []byte(compressible)
	enc, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)
	assert.True(t, len(enc) < len(compressible))
}

func BenchmarkCodec(b *testing.B) {
	runEncode := func(b *testing.B, c Codec, p []byte) {
		b.SetBytes(int64(len(p)))
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			enc, err := c.EncodeBytes(p, nil)
			if err != nil || enc == nil {
				log.Panic(err)
			}
		}
	}
	runDecode := func(b *testing.B, c Codec, p []byte) {
		b.SetBytes(int64(len(p)))
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			dec, err := c.DecodeBytes(p, nil)
			if err != nil || dec == nil {
				log.Panic(err)
			}
		}
	}
	add := func(c Codec, prefix string) {
		p1 := make([]byte, 4096)
		_, err := rand.Read(p1)
		if err != nil {
			log.Panic(err)
		}
		p2 := make([]byte, 4096)
		for _, v := range []struct {
			name string
			data []byte
		}{{"Random", p1}, {"Zeros", p2}} {
			data := v.data
			b.Run(fmt.Sprintf("Encode-%s-%s", prefix, v.name), func(b *testing.B) {
				runEncode(b, c, data)
			})
			enc, _ := c.EncodeBytes(data, nil)
			b.Run(fmt.Sprintf("Decode-%s-%s", prefix, v.name), func(b *testing.B) {
				runDecode(b, c, enc)
			})
		}
	}
	c1 := EncryptingCodec{}.Init([]byte("foo"), []byte("salt"), 64)
	c2 := CompressingCodec{}.Init(CompressionType_LZ4)
	c3 := CompressingCodec{}.Init(CompressionType_ZSTD)
	add(c1, "AES")
	add(c2, "LZ4")
	add(c3, "ZSTD")
	add(CodecChain{}.Init(c1, c2), "AES+LZ4")
}
