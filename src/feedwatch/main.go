package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/clearvoice-app/clearvoice/src/config"
	"github.com/clearvoice-app/clearvoice/src/core"
	"github.com/clearvoice-app/clearvoice/src/notify"
	"github.com/clearvoice-app/clearvoice/src/profile"
	"github.com/clearvoice-app/clearvoice/src/record"
	"github.com/clearvoice-app/clearvoice/src/remote"
	"github.com/redis/go-redis/v9"
)

func mustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

// feedwatch opens a sync core on one record and tails its state changes;
// with -reply it also sends one message through the same path the mobile
// client uses.
func main() {
	recordID := flag.String("record", "", "record id to watch")
	reply := flag.String("reply", "", "optional reply to send after load")
	roleFlag := flag.String("role", "submitter", "actor role: submitter|reviewer")
	name := flag.String("name", "feedwatch", "actor display name")
	flag.Parse()

	if *recordID == "" {
		log.Fatal("usage: feedwatch -record <id> [-reply <text>] [-role reviewer]")
	}
	role, ok := record.ParseRole(*roleFlag)
	if !ok {
		log.Fatalf("unknown role %q", *roleFlag)
	}

	cfg := config.LoadClient()
	logger := log.New(os.Stdout, "feedwatch ", log.LstdFlags)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := remote.NewClient(cfg.APIURL, "", logger)
	if err := client.Login(ctx, cfg.UserID, cfg.Password); err != nil {
		logger.Fatalf("login: %v", err)
	}
	api := remote.NewAPI(client, remote.NewSubscriber(mustRedis(cfg.RedisURL), logger))

	profiles := profile.Static{Profile: profile.Profile{
		ID:          cfg.UserID,
		DisplayName: *name,
		Role:        role,
	}}
	emitter := notify.NewEmitter(client, logger)

	c := core.New(*recordID, api, emitter, profiles, logger)
	defer c.Dispose()

	c.OnChange(func(snap core.Snapshot) {
		switch {
		case snap.Record == nil && snap.LastErr != nil:
			logger.Printf("record absent (%v)", snap.LastErr)
		case snap.Record == nil:
			logger.Printf("record absent")
		default:
			logger.Printf("phase=%s status=%s replies=%d rev=%d err=%v",
				snap.Phase, snap.Record.Status, len(snap.Record.Replies),
				snap.Record.Revision, snap.LastErr)
		}
	})

	if err := c.Init(ctx); err != nil {
		logger.Printf("init: %v", err)
	}

	if *reply != "" {
		if err := c.SendReply(ctx, *reply, role); err != nil {
			logger.Printf("reply: %v", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
