package chain

import "fmt"

// Op identifies which ledger intent a failure belongs to.
type Op string

const (
	OpCreateStream   Op = "create_stream"
	OpCommitSnapshot Op = "commit_snapshot"
)

// ErrorKind separates a ledger that could not be reached from a ledger that
// refused the intent.
type ErrorKind int

const (
	// ErrorKindUnavailable is a transport failure, a relayer 5xx, or a
	// malformed receipt.
	ErrorKindUnavailable ErrorKind = iota
	// ErrorKindRejected is any other non-2xx relayer response.
	ErrorKindRejected
)

// Error is the failure surface of every Ledger implementation. Callers that
// need to tell a ledger outage apart from an application-level problem unwrap
// to it with errors.As.
type Error struct {
	Op      Op
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		if e.Message != "" {
			return fmt.Sprintf("relayer status %d: %s", e.Status, e.Message)
		}
		return fmt.Sprintf("relayer status %d", e.Status)
	}
	return e.Message
}
