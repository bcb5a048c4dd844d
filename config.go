package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"strings"
	"time"
)

// Application configuration.
type config struct {
	ListenAddr        string
	QRSecret          string
	JWTSecret         string
	QRTTL             time.Duration
	DBPath            string
	RedisAddr         string
	RefreshInterval   time.Duration
	ReconcileInterval time.Duration
	EventCacheMaxAge  time.Duration
	AllowedOrigins    []string
	Debug             bool
}

// Parse command-line arguments.
// Returns a config struct with the parsed arguments.
func parseArguments() (config, error) {
	addr := flag.String("addr", "0.0.0.0:8080", "Address on which to listen to HTTP requests")
	qrSecret := flag.String("qr-secret", "", "The service secret the QR token key is derived from")
	jwtSecret := flag.String("jwt-secret", "", "The secret used to sign and verify API access tokens")
	qrTTL := flag.String("qr-ttl", "300s", "The duration after which an issued QR token expires, eg, 300s")
	dbPath := flag.String("db-path", "db.sqlite3", "sqlite3 database path")
	redisAddr := flag.String("redis-addr", "127.0.0.1:6379", "Address of the Redis attendance store")
	refreshInterval := flag.String("refresh-interval", "60s", "How often to reload the event catalog cache")
	reconcileInterval := flag.String("reconcile-interval", "300s", "How often to run the attendance reconciliation pass")
	eventCacheMaxAge := flag.String("event-cache-max-age", "120s", "How long the event catalog cache is trusted before lookups fall back to the database")
	allowedOrigins := flag.String("allowed-origins", "*", "Comma-separated list of allowed CORS origins")
	debug := flag.Bool("debug", false, "Whether to enable verbose logging")
	flag.Parse()

	if *qrSecret == "" {
		return config{}, errors.New("invalid -qr-secret argument")
	}

	if *jwtSecret == "" {
		return config{}, errors.New("invalid -jwt-secret argument")
	}

	qrTTLDuration, err := time.ParseDuration(*qrTTL)
	if err != nil || qrTTLDuration <= 0 {
		return config{}, fmt.Errorf("invalid -qr-ttl argument: %v", err)
	}

	if _, _, err := net.SplitHostPort(*redisAddr); err != nil {
		return config{}, fmt.Errorf("invalid -redis-addr argument: %v", err)
	}

	refreshDuration, err := time.ParseDuration(*refreshInterval)
	if err != nil || refreshDuration <= 0 {
		return config{}, fmt.Errorf("invalid -refresh-interval argument: %v", err)
	}

	reconcileDuration, err := time.ParseDuration(*reconcileInterval)
	if err != nil || reconcileDuration <= 0 {
		return config{}, fmt.Errorf("invalid -reconcile-interval argument: %v", err)
	}

	cacheMaxAge, err := time.ParseDuration(*eventCacheMaxAge)
	if err != nil || cacheMaxAge <= 0 {
		return config{}, fmt.Errorf("invalid -event-cache-max-age argument: %v", err)
	}

	return config{
		ListenAddr:        *addr,
		QRSecret:          *qrSecret,
		JWTSecret:         *jwtSecret,
		QRTTL:             qrTTLDuration,
		DBPath:            *dbPath,
		RedisAddr:         *redisAddr,
		RefreshInterval:   refreshDuration,
		ReconcileInterval: reconcileDuration,
		EventCacheMaxAge:  cacheMaxAge,
		AllowedOrigins:    strings.Split(*allowedOrigins, ","),
		Debug:             *debug,
	}, nil
}
