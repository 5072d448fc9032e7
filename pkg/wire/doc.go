/*
Package wire implements the length-prefixed, HMAC-authenticated binary
protocol of spec.md §6.2: every message is a 4-byte opcode plus a
msgpack-encoded body, framed behind a big-endian uint32 byte count and
followed by a 32-byte HMAC-SHA-256 tag computed over the whole frame using
the cluster's shared network_password.

Frames whose tag doesn't verify are rejected — this is the "secret-HMAC
handshake" spec.md §6.2 describes in place of TLS. No IP filtering is done:
neither this package nor any server in this tree checks the remote address
against connect_whitelist, which pkg/config parses but nothing reads.
*/
package wire
