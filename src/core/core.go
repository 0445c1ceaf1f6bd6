// Package core holds the single-record synchronization core: the stateful
// controller that owns one feedback record on the client. It applies
// optimistic local mutations, issues remote calls, merges push-driven
// snapshots and serializes conflicting user actions against the shared
// record.
package core

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/clearvoice-app/clearvoice/src/profile"
	"github.com/clearvoice-app/clearvoice/src/record"
	"github.com/clearvoice-app/clearvoice/src/remote"
)

// Phase is the core's own execution state, distinct from the record's
// status.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseMutating
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseMutating:
		return "mutating"
	}
	return "unknown"
}

// Backend is the remote surface the core consumes. remote.API satisfies it.
type Backend interface {
	FetchRecord(ctx context.Context, id string) (record.Record, error)
	UpdateRecord(ctx context.Context, ch remote.ChangePayload) (record.Record, error)
	DeleteRecord(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (<-chan record.Record, func(), error)
}

// Notifier receives the side-effect hooks fired after successful reply and
// meta mutations. notify.Emitter satisfies it.
type Notifier interface {
	OnStatusChange(prev, next record.Record)
	OnReviewerReply(rec record.Record, replyText string)
	OnSubmitterReply(rec record.Record, replyText string)
}

// Snapshot is the observable state handed to change listeners. Record is nil
// while nothing is loaded.
type Snapshot struct {
	Record  *record.Record
	Phase   Phase
	LastErr error
}

// Edits carries the fields a submitter wants to change; nil pointers are
// untouched. Set strings are trimmed; empty-after-trim means "clear".
type Edits struct {
	Title         *string
	Description   *string
	Suggestion    *string
	Rating        *int
	AttachmentRef *string
}

// Meta carries a reviewer's triage write.
type Meta struct {
	Status  record.Status
	Urgency int
	Notes   string
}

// Core synchronizes one record. One instance per open record view; create
// with New, start with Init, tear down with Dispose.
type Core struct {
	id       string
	backend  Backend
	notifier Notifier
	profiles profile.Source
	logger   *log.Logger

	mu           sync.Mutex
	rec          *record.Record
	phase        Phase
	lastErr      error
	disposed     bool
	gone         bool // deleted locally; later snapshots for the id are ignored
	lastRevision uint64
	inflight     map[uint64]struct{}
	observers    []func(Snapshot)
	cancelSub    func()
}

func New(id string, backend Backend, notifier Notifier, profiles profile.Source, logger *log.Logger) *Core {
	if logger == nil {
		logger = log.Default()
	}
	return &Core{
		id:       id,
		backend:  backend,
		notifier: notifier,
		profiles: profiles,
		logger:   logger,
		inflight: make(map[uint64]struct{}),
	}
}

// OnChange registers a listener invoked after every observable state change.
func (c *Core) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Snapshot returns a copy of the current observable state.
func (c *Core) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Core) snapshotLocked() Snapshot {
	snap := Snapshot{Phase: c.phase, LastErr: c.lastErr}
	if c.rec != nil {
		cp := *c.rec
		snap.Record = &cp
	}
	return snap
}

// publishLocked captures the state and listener list; the caller must invoke
// the returned closure after releasing the lock.
func (c *Core) publishLocked() func() {
	snap := c.snapshotLocked()
	obs := append(([]func(Snapshot))(nil), c.observers...)
	return func() {
		for _, fn := range obs {
			fn(snap)
		}
	}
}

// Init loads the record and opens the push stream. Push snapshots replace
// the record unconditionally, concurrent with any phase; the stream stays
// open until Dispose. A failed initial load leaves the record absent with
// LastErr set, and the stream is opened regardless so a later server-side
// write can still populate the slot.
func (c *Core) Init(ctx context.Context) error {
	loadErr := c.load(ctx)

	ch, cancel, err := c.backend.Subscribe(ctx, c.id)
	if err != nil {
		c.logger.Printf("core %s: subscribe failed: %v", c.id, err)
		return err
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		cancel()
		return ErrDisposed
	}
	c.cancelSub = cancel
	c.mu.Unlock()
	go c.applyLoop(ch)
	return loadErr
}

// Reload re-runs the load transition, for retry controls.
func (c *Core) Reload(ctx context.Context) error {
	return c.load(ctx)
}

func (c *Core) load(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.phase = PhaseLoading
	c.lastErr = nil
	emit := c.publishLocked()
	c.mu.Unlock()
	emit()

	rec, err := c.backend.FetchRecord(ctx, c.id)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.phase = PhaseIdle
	if err != nil {
		c.rec = nil
		c.lastErr = err
	} else {
		c.rec = &rec
		c.gone = false
		if rec.Revision > c.lastRevision {
			c.lastRevision = rec.Revision
		}
	}
	emit = c.publishLocked()
	c.mu.Unlock()
	emit()
	return err
}

func (c *Core) applyLoop(ch <-chan record.Record) {
	for rec := range ch {
		c.applySnapshot(rec)
	}
}

// applySnapshot replaces the record with a pushed snapshot. Never merged
// field-wise: delivery order across fields is not causal, so each emission
// stands in for the whole record. Snapshots older than the last applied
// revision are discarded; revision 0 keeps plain last-write-wins.
func (c *Core) applySnapshot(rec record.Record) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	if c.gone {
		c.mu.Unlock()
		c.logger.Printf("core %s: ignoring snapshot for locally deleted record", c.id)
		return
	}
	if rec.Revision != 0 && rec.Revision < c.lastRevision {
		c.mu.Unlock()
		c.logger.Printf("core %s: discarding stale snapshot rev %d < %d", c.id, rec.Revision, c.lastRevision)
		return
	}
	c.rec = &rec
	if rec.Revision > c.lastRevision {
		c.lastRevision = rec.Revision
	}
	emit := c.publishLocked()
	c.mu.Unlock()
	emit()
}

// beginMutation runs the shared guards plus the action's own guard, then
// flips the phase. Guard failures resolve locally: lastErr is set and the
// remote layer is never invoked.
func (c *Core) beginMutation(guard func(record.Record, profile.Profile) error) (record.Record, profile.Profile, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return record.Record{}, profile.Profile{}, ErrDisposed
	}
	if c.rec == nil {
		// nothing loaded; treated as "nothing to do", not an error
		c.mu.Unlock()
		return record.Record{}, profile.Profile{}, errNoRecord
	}
	prof, ok := c.profiles.Current()
	if !ok {
		c.lastErr = ErrNoProfile
		emit := c.publishLocked()
		c.mu.Unlock()
		emit()
		return record.Record{}, profile.Profile{}, ErrNoProfile
	}
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return record.Record{}, profile.Profile{}, ErrBusy
	}
	cur := *c.rec
	if guard != nil {
		if err := guard(cur, prof); err != nil {
			c.lastErr = err
			emit := c.publishLocked()
			c.mu.Unlock()
			emit()
			return record.Record{}, profile.Profile{}, err
		}
	}
	c.phase = PhaseMutating
	c.lastErr = nil
	emit := c.publishLocked()
	c.mu.Unlock()
	emit()
	return cur, prof, nil
}

// errNoRecord is internal: actions on an empty slot are silent no-ops.
var errNoRecord = errNoRecordType{}

type errNoRecordType struct{}

func (errNoRecordType) Error() string { return "no record loaded" }

// finishMutation restores Idle and applies the action's result. The phase
// guarantee holds on every path, including after Dispose (where the result
// itself is discarded).
func (c *Core) finishMutation(updated *record.Record, clear bool, err error) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return err
	}
	c.phase = PhaseIdle
	switch {
	case err != nil:
		c.lastErr = err
	case clear:
		c.rec = nil
		c.gone = true
	case updated != nil:
		c.rec = updated
		if updated.Revision > c.lastRevision {
			c.lastRevision = updated.Revision
		}
	}
	emit := c.publishLocked()
	c.mu.Unlock()
	emit()
	return err
}

// ReviewerSaveMeta writes a reviewer's triage fields (status, urgency,
// internal notes). On a status change the owner is notified as a side
// effect, not awaited.
func (c *Core) ReviewerSaveMeta(ctx context.Context, meta Meta) error {
	cur, _, err := c.beginMutation(nil)
	if err == errNoRecord {
		return nil
	}
	if err != nil {
		return err
	}

	status := meta.Status
	urgency := meta.Urgency
	notes := record.CleanText(meta.Notes)
	updated, err := c.backend.UpdateRecord(ctx, remote.ChangePayload{
		ID:            cur.ID,
		UpdatedAt:     time.Now().UTC(),
		Status:        &status,
		Urgency:       &urgency,
		InternalNotes: &notes,
	})
	if err != nil {
		return c.finishMutation(nil, false, err)
	}
	if err := c.finishMutation(&updated, false, nil); err != nil {
		return err
	}
	c.notifier.OnStatusChange(cur, updated)
	return nil
}

// SubmitterSaveEdits writes the submitter's content fields while the edit
// window is open.
func (c *Core) SubmitterSaveEdits(ctx context.Context, edits Edits) error {
	cur, _, err := c.beginMutation(func(r record.Record, _ profile.Profile) error {
		if !r.IsEditableBySubmitter() {
			return ErrEditWindowClosed
		}
		return nil
	})
	if err == errNoRecord {
		return nil
	}
	if err != nil {
		return err
	}

	ch := remote.ChangePayload{ID: cur.ID, UpdatedAt: time.Now().UTC()}
	ch.Title = cleanPtr(edits.Title)
	ch.Description = cleanPtr(edits.Description)
	ch.Suggestion = cleanPtr(edits.Suggestion)
	ch.AttachmentRef = cleanPtr(edits.AttachmentRef)
	ch.Rating = edits.Rating

	updated, err := c.backend.UpdateRecord(ctx, ch)
	if err != nil {
		return c.finishMutation(nil, false, err)
	}
	return c.finishMutation(&updated, false, nil)
}

func cleanPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := record.CleanText(*p)
	return &s
}

// Delete removes the record. Submitters may only delete inside the edit
// window; reviewers always may.
func (c *Core) Delete(ctx context.Context) error {
	cur, _, err := c.beginMutation(func(r record.Record, p profile.Profile) error {
		if p.Role == record.RoleSubmitter && !r.IsEditableBySubmitter() {
			return ErrEditWindowClosed
		}
		return nil
	})
	if err == errNoRecord {
		return nil
	}
	if err != nil {
		return err
	}

	if err := c.backend.DeleteRecord(ctx, cur.ID); err != nil {
		return c.finishMutation(nil, false, err)
	}
	return c.finishMutation(nil, true, nil)
}

// SendReply appends one conversation message, optimistically. The appended
// reply is published to observers before the remote call; on remote failure
// it stays visible (the text must not silently vanish) with LastErr set, and
// a retry re-sends the same content.
func (c *Core) SendReply(ctx context.Context, message string, role record.Role) error {
	msg := record.CleanText(message)
	if msg == "" {
		// nothing to send
		return nil
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.rec == nil {
		c.mu.Unlock()
		return nil
	}
	cur := *c.rec
	prof, ok := c.profiles.Current()
	if !ok {
		c.lastErr = ErrNoProfile
		emit := c.publishLocked()
		c.mu.Unlock()
		emit()
		return ErrNoProfile
	}
	if role == record.RoleSubmitter && len(cur.ReviewerReplies()) == 0 {
		c.lastErr = ErrReviewerFirst
		emit := c.publishLocked()
		c.mu.Unlock()
		emit()
		return ErrReviewerFirst
	}
	key := replyKey(role, msg, cur.UpdatedAt)
	if _, dup := c.inflight[key]; dup || c.phase != PhaseIdle {
		// double-tap protection: identical in-flight send, dropped silently
		c.mu.Unlock()
		return nil
	}

	var optimistic record.Record
	if c.lastErr != nil && tailReplyMatches(cur, role, msg, prof.ID) {
		// retry of a failed send: the optimistic reply is already in place,
		// re-send the same content instead of appending a duplicate
		optimistic = cur.With(record.Change{})
	} else {
		optimistic = cur.WithReply(record.Reply{
			AuthorRole: role,
			Message:    msg,
			AuthorID:   prof.ID,
			AuthorName: prof.DisplayName,
			At:         time.Now().UTC(),
		})
	}
	c.rec = &optimistic
	c.phase = PhaseMutating
	c.lastErr = nil
	c.inflight[key] = struct{}{}
	emit := c.publishLocked()
	c.mu.Unlock()
	emit()

	updated, err := c.backend.UpdateRecord(ctx, remote.ChangePayload{
		ID:        cur.ID,
		UpdatedAt: optimistic.UpdatedAt,
		Replies:   optimistic.Replies,
	})

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()

	if err != nil {
		// keep the optimistic record visible; only surface the error
		return c.finishMutation(nil, false, err)
	}
	if err := c.finishMutation(&updated, false, nil); err != nil {
		return err
	}
	switch role {
	case record.RoleReviewer:
		c.notifier.OnReviewerReply(updated, msg)
	case record.RoleSubmitter:
		c.notifier.OnSubmitterReply(updated, msg)
	}
	return nil
}

func tailReplyMatches(r record.Record, role record.Role, msg, authorID string) bool {
	if len(r.Replies) == 0 {
		return false
	}
	last := r.Replies[len(r.Replies)-1]
	return last.AuthorRole == role && last.Message == msg && last.AuthorID == authorID
}

// Dispose cancels the push subscription and freezes the core. In-flight
// remote calls finish in the background; their results are discarded.
func (c *Core) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	cancel := c.cancelSub
	c.cancelSub = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
