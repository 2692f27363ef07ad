package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config covers both binaries. Each reads the fields it needs.
type Config struct {
	LogLevel string
	Env      string

	// Command service
	CommandPort   int
	SafeBasesFile string // optional YAML seed
	WSSendBuffer  int    // per-subscriber fan-out buffer

	// Database. Empty DBHost selects the in-memory repository.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// SQS sink for resolved alerts. Disabled when SQSQueueURL is empty.
	SQSRegion   string
	SQSQueueURL string

	// Relay
	RelayPort       int
	CommandURL      string
	ForwardTimeout  time.Duration
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RateLimitPerMin int

	// Redis. Empty RedisHost selects the in-memory relay store and disables
	// rate limiting.
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Circuit breaker around forwards. Disabled when BreakerMaxFailures is 0.
	BreakerMaxFailures int
	BreakerRecovery    time.Duration

	// SMS ack replies
	SMSReplyEnabled bool
	SNSRegion       string
	SNSSenderID     string

	// AWS endpoint override (LocalStack)
	AWSRegion   string
	AWSEndpoint string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Env:      "development",

		CommandPort:  8000,
		WSSendBuffer: 16,

		DBPort:    5432,
		DBUser:    "beacon",
		DBName:    "beacon",
		DBSSLMode: "disable",

		RelayPort:       8001,
		CommandURL:      "http://localhost:8000",
		ForwardTimeout:  5 * time.Second,
		RetryBaseDelay:  time.Second,
		RetryMaxDelay:   60 * time.Second,
		RateLimitPerMin: 60,

		RedisPort: 6379,

		BreakerRecovery: 30 * time.Second,

		AWSRegion: "ap-south-1",
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Command service
	if port := os.Getenv("COMMAND_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid COMMAND_PORT: %w", err)
		}
		cfg.CommandPort = p
	}

	if path := os.Getenv("SAFE_BASES_FILE"); path != "" {
		cfg.SafeBasesFile = path
	}

	if size := os.Getenv("WS_SEND_BUFFER"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid WS_SEND_BUFFER: %q", size)
		}
		cfg.WSSendBuffer = n
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// AWS
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		cfg.AWSEndpoint = endpoint
	}

	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}

	// Relay
	if port := os.Getenv("RELAY_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_PORT: %w", err)
		}
		cfg.RelayPort = p
	}

	if url := os.Getenv("COMMAND_URL"); url != "" {
		cfg.CommandURL = url
	}

	var err error
	if cfg.ForwardTimeout, err = durationEnv("FORWARD_TIMEOUT", cfg.ForwardTimeout); err != nil {
		return nil, err
	}
	if cfg.RetryBaseDelay, err = durationEnv("RETRY_BASE_DELAY", cfg.RetryBaseDelay); err != nil {
		return nil, err
	}
	if cfg.RetryMaxDelay, err = durationEnv("RETRY_MAX_DELAY", cfg.RetryMaxDelay); err != nil {
		return nil, err
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return nil, fmt.Errorf("RETRY_MAX_DELAY (%s) must not be below RETRY_BASE_DELAY (%s)", cfg.RetryMaxDelay, cfg.RetryBaseDelay)
	}

	if limit := os.Getenv("RATE_LIMIT_PER_MINUTE"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimitPerMin = n
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Circuit breaker
	if n := os.Getenv("BREAKER_MAX_FAILURES"); n != "" {
		v, err := strconv.Atoi(n)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid BREAKER_MAX_FAILURES: %q", n)
		}
		cfg.BreakerMaxFailures = v
	}
	if cfg.BreakerRecovery, err = durationEnv("BREAKER_RECOVERY", cfg.BreakerRecovery); err != nil {
		return nil, err
	}

	// SNS config for SMS
	if enabled := os.Getenv("SMS_REPLY_ENABLED"); enabled != "" {
		b, err := strconv.ParseBool(enabled)
		if err != nil {
			return nil, fmt.Errorf("invalid SMS_REPLY_ENABLED: %w", err)
		}
		cfg.SMSReplyEnabled = b
	}

	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	if sender := os.Getenv("SNS_SENDER_ID"); sender != "" {
		cfg.SNSSenderID = sender
	}

	return cfg, nil
}

// UseDatabase reports whether the command service should use Postgres.
func (c *Config) UseDatabase() bool {
	return c.DBHost != ""
}

// UseRedis reports whether the relay should use Redis.
func (c *Config) UseRedis() bool {
	return c.RedisHost != ""
}

// durationEnv parses a Go duration ("5s", "1m") from key, or returns def.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
