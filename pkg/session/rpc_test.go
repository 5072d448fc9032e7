package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/wire"
)

// echoOp is a stand-in opcode for these transport-level tests: the
// request/response content doesn't matter here, only that the frame
// round-trips and that callWithFailover's retry-on-error behavior is
// exercised against real TCP connections rather than mocked.
const echoOp = wire.OpRootCurrent

func serveEcho(t *testing.T, addr string) {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go wire.Serve(nc, testSecret, func(op wire.Opcode, body []byte) (wire.Opcode, []byte, error) {
				return echoOp, body, nil
			})
		}
	}()
	waitDialable(t, addr)
}

func serveErrorOnce(t *testing.T, addr string, kind, message string) {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go wire.Serve(nc, testSecret, func(op wire.Opcode, body []byte) (wire.Opcode, []byte, error) {
				resp, _ := wire.Encode(wire.ErrorResponse{Kind: kind, Message: message})
				return wire.OpError, resp, nil
			})
		}
	}()
	waitDialable(t, addr)
}

func TestCallOnceRoundTrips(t *testing.T) {
	addr := freeAddr(t)
	serveEcho(t, addr)

	respOp, respBody, err := callOnce(addr, testSecret, time.Second, echoOp, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, echoOp, respOp)
	assert.Equal(t, []byte("ping"), respBody)
}

func TestCallOnceFailsAgainstUnreachableAddress(t *testing.T) {
	addr := freeAddr(t) // nothing listens here
	_, _, err := callOnce(addr, testSecret, 100*time.Millisecond, echoOp, nil)
	assert.Error(t, err)
}

func TestCallWithFailoverSkipsDeadAddressesAndSucceeds(t *testing.T) {
	dead := freeAddr(t)
	live := freeAddr(t)
	serveEcho(t, live)

	respOp, respBody, err := callWithFailover([]string{dead, live}, testSecret, 200*time.Millisecond, "echo", echoOp, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, echoOp, respOp)
	assert.Equal(t, []byte("hi"), respBody)
}

func TestCallWithFailoverExhaustsAllAddresses(t *testing.T) {
	addrs := []string{freeAddr(t), freeAddr(t)}
	_, _, err := callWithFailover(addrs, testSecret, 100*time.Millisecond, "echo", echoOp, nil)
	require.Error(t, err)
	assert.Equal(t, mckoierr.KindNetwork, mckoierr.KindOf(err))
}

func TestCallWithFailoverUnwrapsErrorResponseAndMovesOn(t *testing.T) {
	bad := freeAddr(t)
	serveErrorOnce(t, bad, string(mckoierr.KindNotFound), "no such node")
	good := freeAddr(t)
	serveEcho(t, good)

	respOp, _, err := callWithFailover([]string{bad, good}, testSecret, 200*time.Millisecond, "echo", echoOp, nil)
	require.NoError(t, err, "a non-network OpError response should still fail over to the next address")
	assert.Equal(t, echoOp, respOp)
}

func TestCallWithFailoverReturnsErrorResponseWhenNoAddressLeft(t *testing.T) {
	addr := freeAddr(t)
	serveErrorOnce(t, addr, string(mckoierr.KindNotFound), "no such node")

	_, _, err := callWithFailover([]string{addr}, testSecret, 200*time.Millisecond, "echo", echoOp, nil)
	require.Error(t, err)
	assert.Equal(t, mckoierr.KindNotFound, mckoierr.KindOf(err))
}
