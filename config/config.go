package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Environment string

	// Chat fabric (NATS) configuration
	NatsURL        string
	NatsClientName string

	// Bot identity
	BotUserID     string
	ServerName    string
	CommandPrefix string

	// Tutoring queue configuration
	ConfirmationTimeout time.Duration

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Moodle web service configuration
	MoodleURL     string
	MoodleToken   string
	MoodleTimeout time.Duration

	// PubNub configuration (live dashboard feed)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	RealtimeSigningKey string

	// Rate limiting
	CommandsPerMinute int
	OutboundSendRate  float64
	OutboundSendBurst int

	// Dashboard sessions
	DashboardSessionTTL time.Duration

	// Background services
	QuestionPollInterval time.Duration
	PresenceTTL          time.Duration

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// NATS
		NatsURL:        getEnv("NATS_URL", "nats://localhost:4222"),
		NatsClientName: getEnv("NATS_CLIENT_NAME", "chatroom-manager"),

		// Bot identity
		BotUserID:     getEnv("BOT_USER_ID", "@tutorbot:ugr.es"),
		ServerName:    getEnv("SERVER_NAME", "ugr.es"),
		CommandPrefix: getEnv("COMMAND_PREFIX", "!"),

		// Tutoring queue
		ConfirmationTimeout: getEnvAsDuration("CONFIRMATION_TIMEOUT", "60s"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Moodle
		MoodleURL:     getEnv("MOODLE_URL", ""),
		MoodleToken:   getEnv("MOODLE_TOKEN", ""),
		MoodleTimeout: getEnvAsDuration("MOODLE_TIMEOUT", "10s"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		RealtimeSigningKey: getEnv("REALTIME_SIGNING_KEY", ""),

		// Rate limiting
		CommandsPerMinute: getEnvAsInt("COMMANDS_PER_MINUTE", 20),
		OutboundSendRate:  getEnvAsFloat("OUTBOUND_SEND_RATE", 10),
		OutboundSendBurst: getEnvAsInt("OUTBOUND_SEND_BURST", 20),

		// Dashboard sessions
		DashboardSessionTTL: getEnvAsDuration("DASHBOARD_SESSION_TTL", "12h"),

		// Background services
		QuestionPollInterval: getEnvAsDuration("QUESTION_POLL_INTERVAL", "30s"),
		PresenceTTL:          getEnvAsDuration("PRESENCE_TTL", "2m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
