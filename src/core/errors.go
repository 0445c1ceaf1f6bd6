package core

import "errors"

// Guard-clause errors resolved inside the core, without touching the remote
// layer. Remote-layer failures pass through wrapped and are matched with the
// remote package's sentinels instead.
var (
	// ErrNoProfile means no authenticated actor profile is available yet;
	// every mutating action blocks on one.
	ErrNoProfile = errors.New("no actor profile available")
	// ErrEditWindowClosed means the submitter lost edit/delete rights when a
	// reviewer advanced the record's status.
	ErrEditWindowClosed = errors.New("edit window closed")
	// ErrReviewerFirst means a submitter tried to reply before any reviewer
	// had.
	ErrReviewerFirst = errors.New("conversation must be opened by a reviewer")
	// ErrBusy means another action is already in flight; callers are
	// expected to disable their triggers while the core is mutating.
	ErrBusy = errors.New("another action is in flight")
	// ErrDisposed means the core was torn down.
	ErrDisposed = errors.New("core disposed")
)
