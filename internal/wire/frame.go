package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// maxFrameBytes guards against a corrupt or hostile length prefix
// causing an unbounded allocation.
const maxFrameBytes = 16 << 20 // 16 MiB, comfortably above one captured image

// ErrEmptyFrame is returned by ReadFrame when the length prefix is
// zero; per §6 this causes the frame to be discarded.
var ErrEmptyFrame = errors.New("wire: zero-length frame")

// WriteFrame writes a 4-byte big-endian length prefix followed by
// body to w (§6).
func WriteFrame(w io.Writer, body []byte) error {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return errors.Wrap(err, "write length prefix")
	}
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, "write frame body")
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. A zero length, a
// truncated body (io.ErrUnexpectedEOF / io.EOF mid-frame) or an
// oversized length all surface as an error so the caller can drop the
// frame (§7); the link Listener then closes that connection.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if n > maxFrameBytes {
		return nil, errors.Errorf("wire: frame of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(err, "read frame body")
	}
	return body, nil
}
