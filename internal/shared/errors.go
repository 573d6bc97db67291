package shared

type Error string

// Implement the error interface
func (e Error) Error() string { return string(e) }

//------------
// Definitions
//------------

// ErrValidation covers bad caller input (empty or oversized title, blank
// query). Recoverable; surfaced to the caller, never logged as a fault.
const ErrValidation = Error("validation failed")

// ErrNotFound is returned when an operation references a video or principal
// that does not exist.
const ErrNotFound = Error("not found")

// ErrConflict is returned when a unique constraint would be violated by an
// operation that is not an explicit duplicate-resolution path. The caller
// must re-query and decide (replace, rename, or drop).
const ErrConflict = Error("unique constraint conflict")

// ErrStorageFault marks the store as unsafe to serve: failed integrity
// check, failed migration, or a post-migration layout mismatch. Fatal at
// startup, never retried.
const ErrStorageFault = Error("storage fault")
