package config

import (
	"log"
	"os"
)

// Server configures the feedapi service.
type Server struct {
	MySQLDSN         string
	RedisURL         string
	JWTSecret        string
	Port             string
	DiscordToken     string
	DiscordChannelID string
}

// Client configures feedwatch and other API consumers.
type Client struct {
	APIURL   string
	RedisURL string
	UserID   string
	Password string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

func LoadServer() Server {
	return Server{
		MySQLDSN:         getenv("MYSQL_DSN", "clearvoice:clearvoice@tcp(127.0.0.1:3306)/clearvoice?parseTime=true"),
		RedisURL:         getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		JWTSecret:        getenv("JWT_SECRET", "dev-only-secret"),
		Port:             getenv("PORT", "8080"),
		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
	}
}

func LoadClient() Client {
	return Client{
		APIURL:   getenv("CLEARVOICE_API", "http://127.0.0.1:8080"),
		RedisURL: getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		UserID:   getenv("CLEARVOICE_USER", ""),
		Password: getenv("CLEARVOICE_PASSWORD", ""),
	}
}
