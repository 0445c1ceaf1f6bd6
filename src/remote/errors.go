package remote

import "errors"

// Remote failures collapse into three kinds the core can branch on with
// errors.Is. Payload shape violations surface as
// record.MalformedRecordError instead.
var (
	// ErrNotFound means the backend has no record for the id.
	ErrNotFound = errors.New("record not found")
	// ErrValidation means the backend rejected the payload by business rule
	// (e.g. editing a locked record).
	ErrValidation = errors.New("rejected by backend")
	// ErrTransport covers network and infrastructure failures.
	ErrTransport = errors.New("transport failure")
)
