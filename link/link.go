// Package link abstracts the byte-stream collaborator binlog's
// transport rides on (a UART, a USB-CDC endpoint, or in test code an
// in-memory pipe). It plays the role spec.md leaves implicit: the
// "link" whose tx_schedule() the transport calls and whose ISR feeds
// the server's RX side.
package link

import "context"

// Link is a bidirectional byte-stream collaborator.
type Link interface {
	// Write stages p for transmission, returning how much was
	// accepted. Implementations may accept less than len(p); the
	// caller retries the remainder.
	Write(ctx context.Context, p []byte) (int, error)

	// Schedule requests that any staged bytes start draining. It must
	// be safe to call when nothing is staged and safe to call
	// concurrently with an in-progress drain (idempotent).
	Schedule()

	// Read blocks until at least one byte has arrived (or ctx is
	// done), returning what's available up to len(p).
	Read(ctx context.Context, p []byte) (int, error)
}
