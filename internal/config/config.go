package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Presence PresenceConfig
	Stream   StreamConfig
	Render   RenderConfig
	CORS     CORSConfig
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	BodyLimit    int
}

// AuthConfig configures credential issuance.
type AuthConfig struct {
	JWTSecret     string
	TokenValidity time.Duration
}

// RedisConfig configures the cache/presence Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PresenceConfig configures watcher tracking.
type PresenceConfig struct {
	// Window is how long after its last heartbeat a watcher still counts
	// as active.
	Window time.Duration
}

// StreamConfig configures the live stroke stream.
type StreamConfig struct {
	// RetryInterval is the reconnect hint sent on the first stream event.
	RetryInterval time.Duration
	// SubscriberBuffer is the per-subscriber stroke channel capacity; a
	// subscriber that falls this far behind is evicted and must catch up
	// from the store.
	SubscriberBuffer int
}

// RenderConfig locates derived static render artifacts.
type RenderConfig struct {
	// ImageDir holds pre-rendered room SVGs, invalidated on every stroke.
	ImageDir string
}

// CORSConfig configures cross-origin settings.
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// Load reads configuration from environment variables.
func Load() *Config {
	// .env is optional; plain environment variables win.
	if err := godotenv.Load(); err != nil {
		log.Println("[Config] No .env file found, using environment variables")
	}

	jwtSecret := getRequiredEnv("JWT_SECRET")

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
			BodyLimit:    getInt("BODY_LIMIT", 1024*1024),
		},
		Auth: AuthConfig{
			JWTSecret:     jwtSecret,
			TokenValidity: getDuration("TOKEN_VALIDITY", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Presence: PresenceConfig{
			Window: getDuration("WATCHER_WINDOW", 3*time.Second),
		},
		Stream: StreamConfig{
			RetryInterval:    getDuration("STREAM_RETRY_INTERVAL", 500*time.Millisecond),
			SubscriberBuffer: getInt("STREAM_SUBSCRIBER_BUFFER", 64),
		},
		Render: RenderConfig{
			ImageDir: getEnv("RENDER_IMAGE_DIR", "./img"),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, X-CSRF-Token"),
		},
	}
}

// getRequiredEnv fetches a mandatory environment variable.
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("[Config] Required environment variable %s is not set", key)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// A bare number is taken as seconds.
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
