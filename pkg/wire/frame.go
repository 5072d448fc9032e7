package wire

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
)

// TagSize is the length of the HMAC-SHA-256 authentication tag every frame
// carries (spec.md §6.2).
const TagSize = sha256.Size

// MaxFrameBody caps the (opcode+body) portion of a single frame, guarding
// against a malicious or corrupt length prefix causing an unbounded
// allocation on read.
const MaxFrameBody = 64 * 1024 * 1024

// WriteFrame writes one authenticated frame: a big-endian uint32 byte
// count of (4-byte opcode + body), the opcode, the body, then a 32-byte
// HMAC-SHA-256 tag over the prefix+opcode+body, keyed by secret (the
// cluster's network_password).
func WriteFrame(w io.Writer, secret []byte, op Opcode, body []byte) error {
	inner := 4 + len(body)
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(inner))

	var opBytes [4]byte
	binary.BigEndian.PutUint32(opBytes[:], uint32(op))

	mac := hmac.New(sha256.New, secret)
	mac.Write(prefix[:])
	mac.Write(opBytes[:])
	mac.Write(body)
	tag := mac.Sum(nil)

	buf := make([]byte, 0, 4+inner+TagSize)
	buf = append(buf, prefix[:]...)
	buf = append(buf, opBytes[:]...)
	buf = append(buf, body...)
	buf = append(buf, tag...)

	if _, err := w.Write(buf); err != nil {
		return mckoierr.Wrap(mckoierr.KindNetwork, "write frame", err)
	}
	return nil
}

// ReadFrame reads and authenticates one frame, returning its opcode and
// body. A tag mismatch is a KindNetwork error (authentication failure,
// spec.md §7) — the connection should be dropped by the caller, not
// retried on the same socket.
func ReadFrame(r io.Reader, secret []byte) (Opcode, []byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, nil, mckoierr.Wrap(mckoierr.KindNetwork, "read frame prefix", err)
	}
	inner := binary.BigEndian.Uint32(prefix[:])
	if inner < 4 || int64(inner) > MaxFrameBody {
		return 0, nil, mckoierr.New(mckoierr.KindNetwork, fmt.Sprintf("frame length %d out of bounds", inner))
	}

	payload := make([]byte, inner)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, mckoierr.Wrap(mckoierr.KindNetwork, "read frame payload", err)
	}

	var tag [TagSize]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return 0, nil, mckoierr.Wrap(mckoierr.KindNetwork, "read frame tag", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(prefix[:])
	mac.Write(payload)
	want := mac.Sum(nil)
	if !hmac.Equal(want, tag[:]) {
		return 0, nil, mckoierr.New(mckoierr.KindNetwork, "frame authentication failed")
	}

	op := Opcode(binary.BigEndian.Uint32(payload[0:4]))
	return op, payload[4:], nil
}
