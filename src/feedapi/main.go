package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearvoice-app/clearvoice/src/config"
	"github.com/clearvoice-app/clearvoice/src/feedapi/data"
	"github.com/clearvoice-app/clearvoice/src/feedapi/discord"
	"github.com/clearvoice-app/clearvoice/src/feedapi/types"
	"github.com/clearvoice-app/clearvoice/src/feedapi/webserver"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var allModels = []interface{}{
	&types.User{}, &types.FeedbackRecord{},
	&types.FeedbackReply{}, &types.Notification{},
}

func migrate(db *gorm.DB) {
	if err := db.AutoMigrate(allModels...); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

// seedDemoUsers gives a fresh deployment one account per role so the CLI and
// the mobile client have something to log into.
func seedDemoUsers(db *gorm.DB) {
	seed := []struct {
		id, name, role, password string
	}{
		{"demo-submitter", "Demo Submitter", "submitter", "submitter-pass"},
		{"demo-reviewer", "Demo Reviewer", "reviewer", "reviewer-pass"},
	}
	for _, s := range seed {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("bcrypt: %v", err)
		}
		_ = db.FirstOrCreate(&types.User{
			ID:           s.id,
			DisplayName:  s.name,
			Role:         s.role,
			PasswordHash: string(hash),
		}, types.User{ID: s.id}).Error
	}
}

func main() {
	cfg := config.LoadServer()

	db := data.MustMySQL(cfg.MySQLDSN)
	migrate(db)
	seedDemoUsers(db)

	rdb := data.MustRedis(cfg.RedisURL)

	var alerts webserver.Alerts
	if cfg.DiscordToken != "" && cfg.DiscordChannelID != "" {
		a, err := discord.NewAlerter(cfg.DiscordToken, cfg.DiscordChannelID, log.Default())
		if err != nil {
			log.Printf("discord alerts disabled: %v", err)
		} else {
			alerts = a
		}
	}

	router := webserver.New(cfg, db, rdb, alerts)
	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()
	log.Printf("feedapi listening on %s", cfg.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	_ = httpSrv.Shutdown(shutCtx)
}
