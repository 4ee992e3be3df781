package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is a coarse-grained categorization for run failures.
type ErrorKind string

const (
	KindInputRead         ErrorKind = "input_read"
	KindLookupTransport   ErrorKind = "lookup_transport"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindOutputWrite       ErrorKind = "output_write"
	KindUpload            ErrorKind = "upload"
)

// OpError wraps an underlying error with the failing operation and its kind.
type OpError struct {
	Op   string
	Kind ErrorKind
	Path string // input/output path or request URL, when relevant
	Err  error
}

func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Path != "" {
		base += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsKind reports whether any OpError in err's chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		var oe *OpError
		if !errors.As(err, &oe) {
			return false
		}
		if oe.Kind == kind {
			return true
		}
		err = oe.Err
	}
	return false
}
