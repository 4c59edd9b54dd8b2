// Package george implements the George DB storage engine: a disk-backed,
// multi-model key/value/document store split into databases, views, and
// indexes, with two concrete index engines (a hashed disk trie and a dense
// sequence array) sharing one append-only view content log.
//
// This package is the storage core only. The gRPC surface, TLS/auth,
// wire codecs, CLI/config loading, and the page-cache TTL layer are
// external collaborators; george exposes their contracts (Cache, RPC) as
// interfaces without implementing the transport around them.
package george

import "errors"

// Sentinel errors returned by engine operations. Callers should compare
// with errors.Is; call sites wrap these with context via fmt.Errorf.
var (
	// ErrAlreadyExists is returned by Put on a unique index when the user
	// key already resolves to a live record and force was not requested.
	ErrAlreadyExists = errors.New("george: key already exists")

	// ErrNotFound is returned when a read resolves to no matching record.
	ErrNotFound = errors.New("george: key not found")

	// ErrKeyTypeMismatch is returned when a user key cannot be hashed
	// under the index's declared KeyType.
	ErrKeyTypeMismatch = errors.New("george: key does not match declared key type")

	// ErrShortRead is returned when a positional read hits EOF before the
	// requested length, outside a region known to be sparse.
	ErrShortRead = errors.New("george: short read")

	// ErrCorrupt is returned when slot or frame metadata decodes to an
	// impossible layout.
	ErrCorrupt = errors.New("george: corrupt data")

	// ErrUnsupportedVersion is returned when a file header carries a
	// magic or version this build cannot read.
	ErrUnsupportedVersion = errors.New("george: unsupported file version")

	// ErrIoFailure wraps an underlying filesystem error. The engine never
	// retries I/O; this is surfaced unchanged to the caller.
	ErrIoFailure = errors.New("george: io failure")

	// ErrConditionInvalid is returned when selector JSON carries an
	// unknown Cond operator or a malformed literal.
	ErrConditionInvalid = errors.New("george: invalid selector condition")

	// ErrClosed names the closed-engine condition. Close does not mark the
	// engine closed and no operation in this package returns ErrClosed.
	ErrClosed = errors.New("george: engine closed")

	// ErrNoSuchDatabase / ErrNoSuchView / ErrNoSuchIndex are returned when
	// a schema directory lookup misses.
	ErrNoSuchDatabase = errors.New("george: no such database")
	ErrNoSuchView     = errors.New("george: no such view")
	ErrNoSuchIndex    = errors.New("george: no such index")
)

// isNotFound reports whether err is (or wraps) ErrNotFound.
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
