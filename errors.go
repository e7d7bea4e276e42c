package docodb

import "errors"

var (
	ErrNotFound     = errors.New("docodb: object not found")
	ErrAmbiguous    = errors.New("docodb: ambiguous object prefix")
	ErrUserAborted  = errors.New("docodb: iteration aborted by callback")
	ErrUnsupported  = errors.New("docodb: operation not supported")
	ErrUnavailable  = errors.New("docodb: document store unavailable")
	ErrInvalidID    = errors.New("docodb: invalid object id")
	ErrSizeMismatch = errors.New("docodb: object size mismatch")
	ErrShortChunk   = errors.New("docodb: short chunk")
	ErrStreamClosed = errors.New("docodb: write stream closed")

	// ErrStop is returned by a ForEach callback to end iteration early
	// without error.
	ErrStop = errors.New("docodb: stop iteration")
)

// Status is the outcome of a backend operation as reported to the host
// object database.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusAmbiguous
	StatusUserAborted
	StatusGenericError
)

// StatusOf classifies err.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrAmbiguous):
		return StatusAmbiguous
	case errors.Is(err, ErrUserAborted):
		return StatusUserAborted
	default:
		return StatusGenericError
	}
}

// Code returns the libgit2 return code for s.
func (s Status) Code() int {
	switch s {
	case StatusOK:
		return 0
	case StatusNotFound:
		return -3 // GIT_ENOTFOUND
	case StatusAmbiguous:
		return -5 // GIT_EAMBIGUOUS
	case StatusUserAborted:
		return -7 // GIT_EUSER
	default:
		return -1 // GIT_ERROR
	}
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	case StatusAmbiguous:
		return "ambiguous"
	case StatusUserAborted:
		return "user aborted"
	default:
		return "error"
	}
}
