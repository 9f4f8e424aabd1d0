package codec

import (
	"bytes"
	"strconv"

	ferrors "freesync/internal/errors"
)

var blobPrefix = []byte("blob ")

// EncodeBlob wraps raw content in the blob header and compresses it:
// zlib("blob <size>\x00<raw>").
func EncodeBlob(raw []byte) ([]byte, error) {
	buf := make([]byte, 0, len(blobPrefix)+20+1+len(raw))
	buf = append(buf, blobPrefix...)
	buf = strconv.AppendInt(buf, int64(len(raw)), 10)
	buf = append(buf, 0)
	buf = append(buf, raw...)
	return Compress(buf)
}

// DecodeBlob reverses EncodeBlob. The declared size must match the number of
// bytes that follow the header.
func DecodeBlob(compressed []byte) ([]byte, error) {
	data, err := Decompress(compressed)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, blobPrefix) {
		return nil, ferrors.Format("decode", "", "missing blob header")
	}
	data = data[len(blobPrefix):]

	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return nil, ferrors.Format("decode", "", "blob header is not NUL terminated")
	}
	size, err := strconv.ParseUint(string(data[:nul]), 10, 64)
	if err != nil {
		return nil, ferrors.Format("decode", "", "invalid blob size %q", data[:nul])
	}
	raw := data[nul+1:]
	if uint64(len(raw)) != size {
		return nil, ferrors.Format("decode", "", "blob size mismatch: declared %d, found %d", size, len(raw))
	}
	return raw, nil
}
