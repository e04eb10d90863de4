// Package pool reuses compression state across stream planning calls.
// Sampling runs on every mid-sized payload, so writer and buffer churn
// shows up directly in allocation profiles.
package pool

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// maxPooledBuffer keeps oversized buffers out of the pool so one huge
// payload does not pin memory forever.
const maxPooledBuffer = 1 << 20

var (
	bufferPool = sync.Pool{
		New: func() any {
			return new(bytes.Buffer)
		},
	}

	gzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
			return w
		},
	}

	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

// GetBuffer gets an empty buffer from the pool.
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns a buffer to the pool after resetting it.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// GetGzipWriter gets a BestSpeed gzip writer reset onto w.
func GetGzipWriter(w io.Writer) *gzip.Writer {
	gw := gzipPool.Get().(*gzip.Writer)
	gw.Reset(w)
	return gw
}

// PutGzipWriter returns a gzip writer to the pool. The writer must already
// be closed.
func PutGzipWriter(gw *gzip.Writer) {
	gzipPool.Put(gw)
}

// ZstdEncoder returns the shared zstd encoder. EncodeAll is safe for
// concurrent use on a single encoder.
func ZstdEncoder() *zstd.Encoder {
	initZstd()
	return zstdEnc
}

// ZstdDecoder returns the shared zstd decoder.
func ZstdDecoder() *zstd.Decoder {
	initZstd()
	return zstdDec
}

func initZstd() {
	zstdOnce.Do(func() {
		zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		zstdDec, _ = zstd.NewReader(nil)
	})
}
