package remote

import (
	"context"
	"fmt"
	"log"

	"github.com/clearvoice-app/clearvoice/src/record"
	"github.com/redis/go-redis/v9"
)

const (
	recordChannelPrefix = "clearvoice.record."
	changedChannel      = "clearvoice.changed"
)

// RecordChannel is the pub/sub channel carrying full snapshots of one
// record.
func RecordChannel(id string) string { return recordChannelPrefix + id }

// Subscriber delivers push snapshots over Redis pub/sub. The transport
// reconnects internally, so a dropped connection is logged, never fatal.
type Subscriber struct {
	rdb    *redis.Client
	logger *log.Logger
}

func NewSubscriber(rdb *redis.Client, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = log.Default()
	}
	return &Subscriber{rdb: rdb, logger: logger}
}

// Subscribe opens a long-lived snapshot stream for one record id. Each
// emission is a full record; malformed payloads are logged and skipped. The
// stream never completes on its own — the caller must invoke the returned
// cancel func.
func (s *Subscriber) Subscribe(ctx context.Context, id string) (<-chan record.Record, func(), error) {
	ps := s.rdb.Subscribe(ctx, RecordChannel(id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("%w: subscribe %s: %v", ErrTransport, id, err)
	}
	out := make(chan record.Record, 8)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			rec, err := record.Decode([]byte(msg.Payload))
			if err != nil {
				s.logger.Printf("push: dropping snapshot for %s: %v", id, err)
				continue
			}
			out <- rec
		}
	}()
	cancel := func() { _ = ps.Close() }
	return out, cancel, nil
}

// SubscribeChanged opens the id-only "something changed" stream consumed by
// dashboard views.
func (s *Subscriber) SubscribeChanged(ctx context.Context) (<-chan string, func(), error) {
	ps := s.rdb.Subscribe(ctx, changedChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("%w: subscribe changed: %v", ErrTransport, err)
	}
	out := make(chan string, 32)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			out <- msg.Payload
		}
	}()
	cancel := func() { _ = ps.Close() }
	return out, cancel, nil
}

// API bundles the HTTP client and the push subscriber into the full backend
// surface the sync core consumes.
type API struct {
	*Client
	*Subscriber
}

func NewAPI(client *Client, sub *Subscriber) *API {
	return &API{Client: client, Subscriber: sub}
}
