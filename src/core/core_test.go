package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/clearvoice-app/clearvoice/src/profile"
	"github.com/clearvoice-app/clearvoice/src/record"
	"github.com/clearvoice-app/clearvoice/src/remote"
	"github.com/go-playground/assert/v2"
)

type fakeBackend struct {
	mu          sync.Mutex
	rec         record.Record
	fetchErr    error
	updateErr   error
	deleteErr   error
	fetchCalls  int
	updateCalls int
	deleteCalls int
	lastChange  remote.ChangePayload
	gate        chan struct{} // non-nil: UpdateRecord blocks until closed
	push        chan record.Record
	cancelled   bool
}

func newFakeBackend(rec record.Record) *fakeBackend {
	return &fakeBackend{rec: rec, push: make(chan record.Record, 8)}
}

func (f *fakeBackend) FetchRecord(ctx context.Context, id string) (record.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return record.Record{}, f.fetchErr
	}
	return f.rec, nil
}

func applyChange(rec record.Record, ch remote.ChangePayload) record.Record {
	if ch.Title != nil {
		rec.Title = *ch.Title
	}
	if ch.Description != nil {
		rec.Description = *ch.Description
	}
	if ch.Suggestion != nil {
		rec.Suggestion = *ch.Suggestion
	}
	if ch.Rating != nil {
		rec.Rating = *ch.Rating
	}
	if ch.AttachmentRef != nil {
		rec.AttachmentRef = *ch.AttachmentRef
	}
	if ch.Status != nil {
		rec.Status = *ch.Status
	}
	if ch.Urgency != nil {
		rec.Urgency = *ch.Urgency
	}
	if ch.InternalNotes != nil {
		rec.InternalNotes = *ch.InternalNotes
	}
	if ch.Replies != nil {
		rec.Replies = append([]record.Reply(nil), ch.Replies...)
	}
	rec.UpdatedAt = ch.UpdatedAt
	rec.Revision++
	return rec
}

func (f *fakeBackend) UpdateRecord(ctx context.Context, ch remote.ChangePayload) (record.Record, error) {
	f.mu.Lock()
	f.updateCalls++
	f.lastChange = ch
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return record.Record{}, f.updateErr
	}
	f.rec = applyChange(f.rec, ch)
	return f.rec, nil
}

func (f *fakeBackend) DeleteRecord(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	return f.deleteErr
}

func (f *fakeBackend) Subscribe(ctx context.Context, id string) (<-chan record.Record, func(), error) {
	return f.push, func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeBackend) updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls
}

type fakeNotifier struct {
	mu              sync.Mutex
	statusCalls     int
	reviewerCalls   int
	submitterCalls  int
	lastPrev        record.Record
	lastNext        record.Record
	lastReplyRecord record.Record
	lastReplyText   string
}

func (n *fakeNotifier) OnStatusChange(prev, next record.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusCalls++
	n.lastPrev, n.lastNext = prev, next
}

func (n *fakeNotifier) OnReviewerReply(rec record.Record, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviewerCalls++
	n.lastReplyRecord, n.lastReplyText = rec, text
}

func (n *fakeNotifier) OnSubmitterReply(rec record.Record, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitterCalls++
	n.lastReplyRecord, n.lastReplyText = rec, text
}

func submitterProfile() profile.Source {
	return profile.Static{Profile: profile.Profile{ID: "user-1", DisplayName: "Sam", Role: record.RoleSubmitter}}
}

func reviewerProfile() profile.Source {
	return profile.Static{Profile: profile.Profile{ID: "rev-1", DisplayName: "Rita", Role: record.RoleReviewer}}
}

func testRecord() record.Record {
	return record.Record{
		ID:        "rec-1",
		OwnerID:   "user-1",
		Category:  record.CategoryBug,
		Rating:    3,
		Status:    record.StatusSubmitted,
		CreatedAt: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
		Revision:  1,
		Replies:   []record.Reply{},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func initCore(t *testing.T, f *fakeBackend, n Notifier, p profile.Source) *Core {
	t.Helper()
	c := New("rec-1", f, n, p, nil)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return c
}

func TestScenarioASubmitterEdits(t *testing.T) {
	f := newFakeBackend(testRecord())
	n := &fakeNotifier{}
	c := initCore(t, f, n, submitterProfile())
	defer c.Dispose()

	title, desc := "T", "D"
	err := c.SubmitterSaveEdits(context.Background(), Edits{Title: &title, Description: &desc})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, f.updates())
	assert.Equal(t, "T", *f.lastChange.Title)
	assert.Equal(t, "D", *f.lastChange.Description)

	snap := c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, "T", snap.Record.Title)
	assert.Equal(t, "D", snap.Record.Description)
	assert.Equal(t, true, snap.Record.IsFullSubmission())
}

func TestScenarioBNoProfile(t *testing.T) {
	f := newFakeBackend(testRecord())
	c := initCore(t, f, &fakeNotifier{}, profile.None{})
	defer c.Dispose()

	err := c.ReviewerSaveMeta(context.Background(), Meta{Status: record.StatusUnderReview, Urgency: 3})
	assert.Equal(t, true, errors.Is(err, ErrNoProfile))
	assert.Equal(t, 0, f.updates())

	snap := c.Snapshot()
	assert.Equal(t, record.StatusSubmitted, snap.Record.Status)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, true, errors.Is(snap.LastErr, ErrNoProfile))
}

func TestEditWindowClosed(t *testing.T) {
	rec := testRecord()
	rec.Status = record.StatusUnderReview
	f := newFakeBackend(rec)
	c := initCore(t, f, &fakeNotifier{}, submitterProfile())
	defer c.Dispose()

	title := "nope"
	err := c.SubmitterSaveEdits(context.Background(), Edits{Title: &title})
	assert.Equal(t, true, errors.Is(err, ErrEditWindowClosed))
	assert.Equal(t, 0, f.updates())

	err = c.Delete(context.Background())
	assert.Equal(t, true, errors.Is(err, ErrEditWindowClosed))
	assert.Equal(t, 0, f.deleteCalls)
	// the guard never flipped the phase
	assert.Equal(t, PhaseIdle, c.Snapshot().Phase)
}

func TestReviewerDeleteIgnoresEditWindow(t *testing.T) {
	rec := testRecord()
	rec.Status = record.StatusResolved
	f := newFakeBackend(rec)
	c := initCore(t, f, &fakeNotifier{}, reviewerProfile())
	defer c.Dispose()

	err := c.Delete(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, f.deleteCalls)
	assert.Equal(t, nil, c.Snapshot().Record)
}

func TestReviewerSaveMetaNotifies(t *testing.T) {
	f := newFakeBackend(testRecord())
	n := &fakeNotifier{}
	c := initCore(t, f, n, reviewerProfile())
	defer c.Dispose()

	err := c.ReviewerSaveMeta(context.Background(), Meta{Status: record.StatusUnderReview, Urgency: 3, Notes: " triage me "})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, f.updates())
	assert.Equal(t, record.StatusUnderReview, *f.lastChange.Status)
	assert.Equal(t, "triage me", *f.lastChange.InternalNotes)

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, 1, n.statusCalls)
	assert.Equal(t, record.StatusSubmitted, n.lastPrev.Status)
	assert.Equal(t, record.StatusUnderReview, n.lastNext.Status)
}

func TestScenarioCSubmitterReplyOptimistic(t *testing.T) {
	rec := testRecord()
	rec.Status = record.StatusUnderReview
	rec.LastUpdatedByID = "rev-1"
	rec.Replies = []record.Reply{{
		AuthorRole: record.RoleReviewer, Message: "Can you clarify?",
		AuthorID: "rev-1", At: time.Now().UTC(),
	}}
	f := newFakeBackend(rec)
	f.gate = make(chan struct{})
	n := &fakeNotifier{}
	c := initCore(t, f, n, submitterProfile())
	defer c.Dispose()

	done := make(chan error, 1)
	go func() { done <- c.SendReply(context.Background(), "Thanks", record.RoleSubmitter) }()

	waitFor(t, "update in flight", func() bool { return f.updates() == 1 })
	// optimistic record is visible while the remote call is pending
	snap := c.Snapshot()
	assert.Equal(t, PhaseMutating, snap.Phase)
	assert.Equal(t, 2, len(snap.Record.Replies))
	assert.Equal(t, "Thanks", snap.Record.Replies[1].Message)

	close(f.gate)
	assert.Equal(t, nil, <-done)

	snap = c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, 2, len(snap.Record.Replies))

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, 1, n.submitterCalls)
	assert.Equal(t, "Thanks", n.lastReplyText)
	assert.Equal(t, "rev-1", n.lastReplyRecord.LastUpdatedByID)
}

func TestScenarioDReviewerFirst(t *testing.T) {
	f := newFakeBackend(testRecord())
	c := initCore(t, f, &fakeNotifier{}, submitterProfile())
	defer c.Dispose()

	err := c.SendReply(context.Background(), "Hello", record.RoleSubmitter)
	assert.Equal(t, true, errors.Is(err, ErrReviewerFirst))
	assert.Equal(t, 0, f.updates())
	assert.Equal(t, 0, len(c.Snapshot().Record.Replies))
}

func TestEmptyReplyIsSilentNoop(t *testing.T) {
	f := newFakeBackend(testRecord())
	c := initCore(t, f, &fakeNotifier{}, reviewerProfile())
	defer c.Dispose()

	err := c.SendReply(context.Background(), "   \n\t", record.RoleReviewer)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, f.updates())
	assert.Equal(t, nil, c.Snapshot().LastErr)
}

func TestP1RepliesGrowByExactlyOne(t *testing.T) {
	f := newFakeBackend(testRecord())
	n := &fakeNotifier{}
	c := initCore(t, f, n, reviewerProfile())
	defer c.Dispose()

	for i, msg := range []string{"one", "two", "three"} {
		err := c.SendReply(context.Background(), msg, record.RoleReviewer)
		assert.Equal(t, nil, err)
		assert.Equal(t, i+1, len(c.Snapshot().Record.Replies))
	}
	snap := c.Snapshot()
	assert.Equal(t, "one", snap.Record.Replies[0].Message)
	assert.Equal(t, "two", snap.Record.Replies[1].Message)
	assert.Equal(t, "three", snap.Record.Replies[2].Message)

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, 3, n.reviewerCalls)
}

func TestP3DuplicateSendDropped(t *testing.T) {
	f := newFakeBackend(testRecord())
	f.gate = make(chan struct{})
	c := initCore(t, f, &fakeNotifier{}, reviewerProfile())
	defer c.Dispose()

	done := make(chan error, 1)
	go func() { done <- c.SendReply(context.Background(), "same text", record.RoleReviewer) }()
	waitFor(t, "update in flight", func() bool { return f.updates() == 1 })

	// identical key while the first is in flight: dropped, not queued
	err := c.SendReply(context.Background(), "same text", record.RoleReviewer)
	assert.Equal(t, nil, err)

	close(f.gate)
	assert.Equal(t, nil, <-done)
	assert.Equal(t, 1, f.updates())
	assert.Equal(t, 1, len(c.Snapshot().Record.Replies))
}

func TestSendReplyFailureKeepsOptimisticAndRetries(t *testing.T) {
	f := newFakeBackend(testRecord())
	f.updateErr = fmt.Errorf("%w: connection reset", remote.ErrTransport)
	c := initCore(t, f, &fakeNotifier{}, reviewerProfile())
	defer c.Dispose()

	err := c.SendReply(context.Background(), "hi there", record.RoleReviewer)
	assert.Equal(t, true, errors.Is(err, remote.ErrTransport))

	// no rollback: the text stays visible with the error alongside
	snap := c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, 1, len(snap.Record.Replies))
	assert.Equal(t, "hi there", snap.Record.Replies[0].Message)
	assert.Equal(t, true, errors.Is(snap.LastErr, remote.ErrTransport))

	// retry re-sends the same content without duplicating the reply
	f.mu.Lock()
	f.updateErr = nil
	f.mu.Unlock()
	err = c.SendReply(context.Background(), "hi there", record.RoleReviewer)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, f.updates())
	snap = c.Snapshot()
	assert.Equal(t, 1, len(snap.Record.Replies))
	assert.Equal(t, nil, snap.LastErr)
}

func TestP5PushReplacesNotMerges(t *testing.T) {
	rec := testRecord()
	rec.Replies = []record.Reply{
		{AuthorRole: record.RoleReviewer, Message: "a", At: time.Now().UTC()},
		{AuthorRole: record.RoleSubmitter, Message: "b", At: time.Now().UTC()},
	}
	f := newFakeBackend(rec)
	c := initCore(t, f, &fakeNotifier{}, reviewerProfile())
	defer c.Dispose()

	pushed := testRecord()
	pushed.Status = record.StatusResolved
	pushed.Revision = 9
	pushed.Replies = []record.Reply{{AuthorRole: record.RoleReviewer, Message: "a", At: time.Now().UTC()}}
	f.push <- pushed

	waitFor(t, "push applied", func() bool {
		snap := c.Snapshot()
		return snap.Record != nil && snap.Record.Status == record.StatusResolved
	})
	snap := c.Snapshot()
	// exactly the pushed snapshot, not a union
	assert.Equal(t, 1, len(snap.Record.Replies))
	assert.Equal(t, uint64(9), snap.Record.Revision)
}

func TestPushDuringMutationThenLastWriteWins(t *testing.T) {
	f := newFakeBackend(testRecord())
	f.gate = make(chan struct{})
	c := initCore(t, f, &fakeNotifier{}, reviewerProfile())
	defer c.Dispose()

	done := make(chan error, 1)
	go func() {
		done <- c.ReviewerSaveMeta(context.Background(), Meta{Status: record.StatusUnderReview})
	}()
	waitFor(t, "update in flight", func() bool { return f.updates() == 1 })

	pushed := testRecord()
	pushed.Status = record.StatusMoreInfoNeeded
	pushed.Revision = 50
	f.push <- pushed
	waitFor(t, "push applied mid-mutation", func() bool {
		snap := c.Snapshot()
		return snap.Record.Status == record.StatusMoreInfoNeeded
	})
	assert.Equal(t, PhaseMutating, c.Snapshot().Phase)

	// the in-flight action resolves and overwrites by completion order
	close(f.gate)
	assert.Equal(t, nil, <-done)
	assert.Equal(t, record.StatusUnderReview, c.Snapshot().Record.Status)
}

func TestStaleRevisionDiscarded(t *testing.T) {
	rec := testRecord()
	rec.Revision = 5
	f := newFakeBackend(rec)
	c := initCore(t, f, &fakeNotifier{}, reviewerProfile())
	defer c.Dispose()

	stale := testRecord()
	stale.Revision = 4
	stale.Status = record.StatusRejected
	f.push <- stale

	fresh := testRecord()
	fresh.Revision = 6
	fresh.Status = record.StatusInProgress
	f.push <- fresh

	waitFor(t, "fresh snapshot applied", func() bool {
		return c.Snapshot().Record.Status == record.StatusInProgress
	})
	// the stale one never showed: revision 4 < 5 was dropped before 6 landed
	assert.Equal(t, uint64(6), c.Snapshot().Record.Revision)
}

func TestRevisionZeroAlwaysApplies(t *testing.T) {
	rec := testRecord()
	rec.Revision = 5
	f := newFakeBackend(rec)
	c := initCore(t, f, &fakeNotifier{}, reviewerProfile())
	defer c.Dispose()

	unversioned := testRecord()
	unversioned.Revision = 0
	unversioned.Status = record.StatusUnderReview
	f.push <- unversioned

	waitFor(t, "unversioned snapshot applied", func() bool {
		return c.Snapshot().Record.Status == record.StatusUnderReview
	})
}

func TestScenarioEPushAfterLocalDeleteIgnored(t *testing.T) {
	f := newFakeBackend(testRecord())
	c := initCore(t, f, &fakeNotifier{}, reviewerProfile())
	defer c.Dispose()

	assert.Equal(t, nil, c.Delete(context.Background()))
	assert.Equal(t, nil, c.Snapshot().Record)

	resurrect := testRecord()
	resurrect.Revision = 99
	f.push <- resurrect

	// give the applier a chance; the record must stay absent
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, nil, c.Snapshot().Record)
}

func TestBusyRejectsSecondAction(t *testing.T) {
	f := newFakeBackend(testRecord())
	f.gate = make(chan struct{})
	c := initCore(t, f, &fakeNotifier{}, reviewerProfile())
	defer c.Dispose()

	done := make(chan error, 1)
	go func() {
		done <- c.ReviewerSaveMeta(context.Background(), Meta{Status: record.StatusUnderReview})
	}()
	waitFor(t, "update in flight", func() bool { return f.updates() == 1 })

	err := c.ReviewerSaveMeta(context.Background(), Meta{Status: record.StatusInProgress})
	assert.Equal(t, true, errors.Is(err, ErrBusy))

	close(f.gate)
	assert.Equal(t, nil, <-done)
	assert.Equal(t, 1, f.updates())
}

func TestActionsOnEmptySlotAreNoops(t *testing.T) {
	f := newFakeBackend(testRecord())
	f.fetchErr = fmt.Errorf("%w: gone", remote.ErrNotFound)
	c := New("rec-1", f, &fakeNotifier{}, reviewerProfile(), nil)
	err := c.Init(context.Background())
	assert.Equal(t, true, errors.Is(err, remote.ErrNotFound))
	defer c.Dispose()

	snap := c.Snapshot()
	assert.Equal(t, nil, snap.Record)
	assert.Equal(t, true, errors.Is(snap.LastErr, remote.ErrNotFound))

	title := "x"
	assert.Equal(t, nil, c.SubmitterSaveEdits(context.Background(), Edits{Title: &title}))
	assert.Equal(t, nil, c.ReviewerSaveMeta(context.Background(), Meta{Status: record.StatusResolved}))
	assert.Equal(t, nil, c.SendReply(context.Background(), "anyone there?", record.RoleReviewer))
	assert.Equal(t, 0, f.updates())
}

func TestLoadFailureThenPushPopulatesSlot(t *testing.T) {
	f := newFakeBackend(testRecord())
	f.fetchErr = fmt.Errorf("%w: gone", remote.ErrNotFound)
	c := New("rec-1", f, &fakeNotifier{}, reviewerProfile(), nil)
	_ = c.Init(context.Background())
	defer c.Dispose()

	pushed := testRecord()
	f.push <- pushed
	waitFor(t, "push filled the empty slot", func() bool {
		return c.Snapshot().Record != nil
	})
}

func TestDisposeCancelsSubscriptionAndFreezes(t *testing.T) {
	f := newFakeBackend(testRecord())
	c := initCore(t, f, &fakeNotifier{}, reviewerProfile())

	c.Dispose()
	f.mu.Lock()
	cancelled := f.cancelled
	f.mu.Unlock()
	assert.Equal(t, true, cancelled)

	err := c.SendReply(context.Background(), "too late", record.RoleReviewer)
	assert.Equal(t, true, errors.Is(err, ErrDisposed))
	assert.Equal(t, true, errors.Is(c.Reload(context.Background()), ErrDisposed))

	// double dispose is fine
	c.Dispose()
}

func TestObserversSeeEveryTransition(t *testing.T) {
	f := newFakeBackend(testRecord())
	c := New("rec-1", f, &fakeNotifier{}, reviewerProfile(), nil)

	var mu sync.Mutex
	var phases []Phase
	c.OnChange(func(snap Snapshot) {
		mu.Lock()
		phases = append(phases, snap.Phase)
		mu.Unlock()
	})

	assert.Equal(t, nil, c.Init(context.Background()))
	defer c.Dispose()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, len(phases))
	assert.Equal(t, PhaseLoading, phases[0])
	assert.Equal(t, PhaseIdle, phases[1])
}
