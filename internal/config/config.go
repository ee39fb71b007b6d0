package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	HTTPAddr   string // LOGBRIDGE_HTTP_ADDR (default ":5173"; stream, proxy and query API)
	IngestAddr string // LOGBRIDGE_INGEST_ADDR (default ":9999"; POST /log only)
	GRPCAddr   string // LOGBRIDGE_GRPC_ADDR (optional, empty = no gRPC health server)

	LogDir   string // LOGBRIDGE_LOG_DIR (default "logs")
	LogFile  string // LOGBRIDGE_LOG_FILE (default "agent-logs.txt")
	LogLevel string // LOGBRIDGE_LOG_LEVEL (default "info")

	DatabaseURL string // LOGBRIDGE_DATABASE_URL (optional, empty = no postgres mirror)
	NATSURL     string // LOGBRIDGE_NATS_URL (optional, empty = no events)
	NATSSubject string // LOGBRIDGE_NATS_SUBJECT (default "logbridge.logs")
	UpstreamURL string // LOGBRIDGE_UPSTREAM_URL (default "http://localhost:8888/generate")

	KeepaliveInterval time.Duration // LOGBRIDGE_KEEPALIVE_INTERVAL (default 15s)
	HistorySize       int           // LOGBRIDGE_HISTORY_SIZE (default 1000)
	AgentIdleAfter    time.Duration // LOGBRIDGE_AGENT_IDLE_AFTER (default 15m)

	// Archive settings
	ArchiveInterval   time.Duration // LOGBRIDGE_ARCHIVE_INTERVAL (default 0 = disabled)
	ArchiveS3Bucket   string        // LOGBRIDGE_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // LOGBRIDGE_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // LOGBRIDGE_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Key      string        // LOGBRIDGE_ARCHIVE_S3_KEY (default "logbridge/agent-logs.txt")
	ArchiveGitRepo    string        // LOGBRIDGE_ARCHIVE_GIT_REPO (enables git when set; path to clone)
	ArchiveGitFile    string        // LOGBRIDGE_ARCHIVE_GIT_FILE (default "agent-logs.txt")
	ArchiveGitBranch  string        // LOGBRIDGE_ARCHIVE_GIT_BRANCH (default "main")
}

// fileConfig mirrors Config for the optional TOML file named by
// LOGBRIDGE_CONFIG. Durations are written as Go duration strings ("15s").
type fileConfig struct {
	HTTPAddr          string `toml:"http_addr"`
	IngestAddr        string `toml:"ingest_addr"`
	GRPCAddr          string `toml:"grpc_addr"`
	LogDir            string `toml:"log_dir"`
	LogFile           string `toml:"log_file"`
	LogLevel          string `toml:"log_level"`
	DatabaseURL       string `toml:"database_url"`
	NATSURL           string `toml:"nats_url"`
	NATSSubject       string `toml:"nats_subject"`
	UpstreamURL       string `toml:"upstream_url"`
	KeepaliveInterval string `toml:"keepalive_interval"`
	HistorySize       int    `toml:"history_size"`
	AgentIdleAfter    string `toml:"agent_idle_after"`

	Archive struct {
		Interval   string `toml:"interval"`
		S3Bucket   string `toml:"s3_bucket"`
		S3Endpoint string `toml:"s3_endpoint"`
		S3Region   string `toml:"s3_region"`
		S3Key      string `toml:"s3_key"`
		GitRepo    string `toml:"git_repo"`
		GitFile    string `toml:"git_file"`
		GitBranch  string `toml:"git_branch"`
	} `toml:"archive"`
}

// Load builds the configuration from defaults, then the TOML file named by
// LOGBRIDGE_CONFIG (if any), then LOGBRIDGE_* environment variables.
func Load() (*Config, error) {
	f := fileConfig{
		HTTPAddr:          ":5173",
		IngestAddr:        ":9999",
		LogDir:            "logs",
		LogFile:           "agent-logs.txt",
		LogLevel:          "info",
		NATSSubject:       "logbridge.logs",
		UpstreamURL:       "http://localhost:8888/generate",
		KeepaliveInterval: "15s",
		HistorySize:       1000,
		AgentIdleAfter:    "15m",
	}
	f.Archive.Interval = "0"
	f.Archive.S3Region = "us-east-1"
	f.Archive.S3Key = "logbridge/agent-logs.txt"
	f.Archive.GitFile = "agent-logs.txt"
	f.Archive.GitBranch = "main"

	if path := os.Getenv("LOGBRIDGE_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("LOGBRIDGE_CONFIG %s: %w", path, err)
		}
	}

	c := &Config{
		HTTPAddr:          envOrDefault("LOGBRIDGE_HTTP_ADDR", f.HTTPAddr),
		IngestAddr:        envOrDefault("LOGBRIDGE_INGEST_ADDR", f.IngestAddr),
		GRPCAddr:          envOrDefault("LOGBRIDGE_GRPC_ADDR", f.GRPCAddr),
		LogDir:            envOrDefault("LOGBRIDGE_LOG_DIR", f.LogDir),
		LogFile:           envOrDefault("LOGBRIDGE_LOG_FILE", f.LogFile),
		LogLevel:          envOrDefault("LOGBRIDGE_LOG_LEVEL", f.LogLevel),
		DatabaseURL:       envOrDefault("LOGBRIDGE_DATABASE_URL", f.DatabaseURL),
		NATSURL:           envOrDefault("LOGBRIDGE_NATS_URL", f.NATSURL),
		NATSSubject:       envOrDefault("LOGBRIDGE_NATS_SUBJECT", f.NATSSubject),
		UpstreamURL:       envOrDefault("LOGBRIDGE_UPSTREAM_URL", f.UpstreamURL),
		ArchiveS3Bucket:   envOrDefault("LOGBRIDGE_ARCHIVE_S3_BUCKET", f.Archive.S3Bucket),
		ArchiveS3Endpoint: envOrDefault("LOGBRIDGE_ARCHIVE_S3_ENDPOINT", f.Archive.S3Endpoint),
		ArchiveS3Region:   envOrDefault("LOGBRIDGE_ARCHIVE_S3_REGION", f.Archive.S3Region),
		ArchiveS3Key:      envOrDefault("LOGBRIDGE_ARCHIVE_S3_KEY", f.Archive.S3Key),
		ArchiveGitRepo:    envOrDefault("LOGBRIDGE_ARCHIVE_GIT_REPO", f.Archive.GitRepo),
		ArchiveGitFile:    envOrDefault("LOGBRIDGE_ARCHIVE_GIT_FILE", f.Archive.GitFile),
		ArchiveGitBranch:  envOrDefault("LOGBRIDGE_ARCHIVE_GIT_BRANCH", f.Archive.GitBranch),
	}

	var err error
	if c.KeepaliveInterval, err = parseDuration("LOGBRIDGE_KEEPALIVE_INTERVAL", f.KeepaliveInterval); err != nil {
		return nil, err
	}
	if c.KeepaliveInterval <= 0 {
		return nil, fmt.Errorf("LOGBRIDGE_KEEPALIVE_INTERVAL: must be positive, got %s", c.KeepaliveInterval)
	}
	if c.AgentIdleAfter, err = parseDuration("LOGBRIDGE_AGENT_IDLE_AFTER", f.AgentIdleAfter); err != nil {
		return nil, err
	}
	if c.ArchiveInterval, err = parseDuration("LOGBRIDGE_ARCHIVE_INTERVAL", f.Archive.Interval); err != nil {
		return nil, err
	}

	sizeStr := envOrDefault("LOGBRIDGE_HISTORY_SIZE", strconv.Itoa(f.HistorySize))
	c.HistorySize, err = strconv.Atoi(sizeStr)
	if err != nil {
		return nil, fmt.Errorf("LOGBRIDGE_HISTORY_SIZE: %w", err)
	}
	if c.HistorySize < 0 {
		return nil, fmt.Errorf("LOGBRIDGE_HISTORY_SIZE: must not be negative, got %d", c.HistorySize)
	}

	return c, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
