package session

import (
	"fmt"
	"time"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/metrics"
	"github.com/mckoi/mckoiddb/pkg/wire"
)

// callOnce dials addr, issues one (op, body) request, and closes the
// connection. One connection per call, per this package's doc.go note on
// why a kept-open pool isn't worth its lifecycle complexity here.
func callOnce(addr string, secret []byte, timeout time.Duration, op wire.Opcode, body []byte) (wire.Opcode, []byte, error) {
	conn, err := wire.Dial(addr, secret, timeout)
	if err != nil {
		return 0, nil, err
	}
	defer conn.Close()
	return conn.Call(op, body, timeout)
}

// callWithFailover tries addrs in order, moving to the next candidate on
// any error (timeout, refused connection, or a non-leader manager
// rejecting a write) until one succeeds or every address has been tried
// (spec.md §5: "on timeout, the client retries to a different
// replica/manager; on exhaustion, the calling transaction fails with a
// NetworkError"). respOp/respBody are decoded by the caller; an OpError
// response is unwrapped into a mckoierr here so callers only see Go errors.
// When the last address tried answered with an OpError, that error is
// returned as is, keeping the server-reported Kind; otherwise exhaustion is
// reported as KindNetwork.
func callWithFailover(addrs []string, secret []byte, timeout time.Duration, rpcName string, op wire.Opcode, body []byte) (respOp wire.Opcode, respBody []byte, err error) {
	if len(addrs) == 0 {
		return 0, nil, mckoierr.New(mckoierr.KindConfig, rpcName+": no candidate addresses configured")
	}
	var lastErr error
	lastWasResponse := false
	for i, addr := range addrs {
		if i > 0 {
			metrics.SessionRPCRetriesTotal.WithLabelValues(rpcName).Inc()
		}
		respOp, respBody, err = callOnce(addr, secret, timeout, op, body)
		if err != nil {
			lastErr = err
			lastWasResponse = false
			continue
		}
		if respOp == wire.OpError {
			var errResp wire.ErrorResponse
			if decErr := wire.Decode(respBody, &errResp); decErr != nil {
				lastErr = decErr
				lastWasResponse = false
				continue
			}
			lastErr = &mckoierr.Error{Kind: mckoierr.Kind(errResp.Kind), Message: errResp.Message}
			lastWasResponse = true
			continue
		}
		return respOp, respBody, nil
	}
	if lastWasResponse {
		return 0, nil, lastErr
	}
	return 0, nil, mckoierr.Wrap(mckoierr.KindNetwork, fmt.Sprintf("%s: exhausted %d candidate address(es)", rpcName, len(addrs)), lastErr)
}
