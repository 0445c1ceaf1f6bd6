package data

import (
	"context"
	"log"

	"github.com/clearvoice-app/clearvoice/src/remote"
	"github.com/redis/go-redis/v9"
)

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

// PublishSnapshot pushes the full record snapshot to the per-record channel
// every subscribed client replaces its state with.
func PublishSnapshot(ctx context.Context, rdb *redis.Client, recordID string, snapshot []byte) error {
	return rdb.Publish(ctx, remote.RecordChannel(recordID), snapshot).Err()
}

// PublishChanged pushes the id-only ping consumed by dashboard views.
func PublishChanged(ctx context.Context, rdb *redis.Client, recordID string) error {
	return rdb.Publish(ctx, "clearvoice.changed", recordID).Err()
}
