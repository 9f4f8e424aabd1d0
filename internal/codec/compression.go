package codec

import (
	"bytes"
	"io"
	"sync"

	ferrors "freesync/internal/errors"

	"github.com/klauspost/compress/zlib"
)

// Level is fixed; objects written by one build must decompress under any other.
const Level = zlib.BestCompression

var (
	writers = sync.Pool{
		New: func() interface{} {
			w, _ := zlib.NewWriterLevel(nil, Level)
			return w
		},
	}
	readers sync.Pool
)

// Compress deflates b into a zlib stream.
func Compress(b []byte) ([]byte, error) {
	w := writers.Get().(*zlib.Writer)
	defer writers.Put(w)

	var buf bytes.Buffer
	w.Reset(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, ferrors.Codec("compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, ferrors.Codec("compress", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream produced by Compress.
func Decompress(b []byte) ([]byte, error) {
	src := bytes.NewReader(b)

	var r io.ReadCloser
	if pooled, ok := readers.Get().(io.ReadCloser); ok {
		if err := pooled.(zlib.Resetter).Reset(src, nil); err != nil {
			return nil, ferrors.Codec("decompress", err)
		}
		r = pooled
	} else {
		fresh, err := zlib.NewReader(src)
		if err != nil {
			return nil, ferrors.Codec("decompress", err)
		}
		r = fresh
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ferrors.Codec("decompress", err)
	}
	if err := r.Close(); err != nil {
		return nil, ferrors.Codec("decompress", err)
	}
	readers.Put(r)
	return out, nil
}
