package wire

import (
	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
)

var mpHandle = &codec.MsgpackHandle{}

// Encode msgpack-encodes v into a frame body.
func Encode(v interface{}) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, mpHandle)
	if err := enc.Encode(v); err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindInternal, "encode wire message", err)
	}
	return buf, nil
}

// Decode msgpack-decodes a frame body into v (a pointer).
func Decode(body []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(body, mpHandle)
	if err := dec.Decode(v); err != nil {
		return mckoierr.Wrap(mckoierr.KindInternal, "decode wire message", err)
	}
	return nil
}
