package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	secret := []byte("shared-secret")
	var buf bytes.Buffer

	body := []byte("hello world")
	require.NoError(t, WriteFrame(&buf, secret, OpBlockRead, body))

	op, got, err := ReadFrame(&buf, secret)
	require.NoError(t, err)
	assert.Equal(t, OpBlockRead, op)
	assert.Equal(t, body, got)
}

func TestFrameRejectsBadTag(t *testing.T) {
	secret := []byte("shared-secret")
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, secret, OpBlockRead, []byte("data")))

	raw := buf.Bytes()
	tampered := make([]byte, len(raw))
	copy(tampered, raw)
	tampered[len(tampered)-1] ^= 0xFF // flip a bit in the HMAC tag

	_, _, err := ReadFrame(bytes.NewReader(tampered), secret)
	assert.Error(t, err)
}

func TestFrameWrongSecretFails(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("secret-a"), OpRootBegin, []byte("x")))
	_, _, err := ReadFrame(&buf, []byte("secret-b"))
	assert.Error(t, err)
}

func TestFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, _, err := ReadFrame(&buf, []byte("secret"))
	assert.Error(t, err)
}

func TestEncodeDecodeMessages(t *testing.T) {
	req := ManagerAllocateRequest{Count: 7}
	body, err := Encode(req)
	require.NoError(t, err)

	var got ManagerAllocateRequest
	require.NoError(t, Decode(body, &got))
	assert.Equal(t, req.Count, got.Count)
}
