package stream

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/flipsync/costwise/internal/pool"
)

// Codec names carried in a stream plan.
const (
	CodecNone = "none"
	CodecGzip = "gzip"
	CodecZstd = "zstd"
)

// SampleRatio compresses the sample at the fastest gzip level and returns
// compressed size over original size. A ratio near 1.0 means the payload is
// effectively incompressible.
func SampleRatio(sample []byte) (float64, error) {
	if len(sample) == 0 {
		return 1.0, nil
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := gzipInto(buf, sample); err != nil {
		return 0, err
	}
	return float64(buf.Len()) / float64(len(sample)), nil
}

// Compress encodes the payload with the named codec. CodecNone returns the
// payload unchanged.
func Compress(payload []byte, codec string) ([]byte, error) {
	switch codec {
	case CodecNone:
		return payload, nil
	case CodecGzip:
		buf := pool.GetBuffer()
		defer pool.PutBuffer(buf)
		if err := gzipInto(buf, payload); err != nil {
			return nil, err
		}
		out := make([]byte, buf.Len())
		copy(out, buf.Bytes())
		return out, nil
	case CodecZstd:
		return pool.ZstdEncoder().EncodeAll(payload, nil), nil
	default:
		return nil, fmt.Errorf("unknown codec: %s", codec)
	}
}

// Decompress decodes a payload produced by Compress.
func Decompress(payload []byte, codec string) ([]byte, error) {
	switch codec {
	case CodecNone:
		return payload, nil
	case CodecGzip:
		r, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CodecZstd:
		return pool.ZstdDecoder().DecodeAll(payload, nil)
	default:
		return nil, fmt.Errorf("unknown codec: %s", codec)
	}
}

func gzipInto(buf *bytes.Buffer, data []byte) error {
	w := pool.GetGzipWriter(buf)
	defer pool.PutGzipWriter(w)

	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}
