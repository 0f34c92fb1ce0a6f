package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// Campaign timing
	CallDelay     time.Duration // cool-down before each automated dial
	CountdownTick time.Duration // live status tick granularity
	DialGrace     time.Duration // pause after a failed dial before advancing

	// Heartbeat
	HeartbeatInterval time.Duration

	// Dialer
	DialerMode       string // "noop" or "twilio"
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// WebSocket
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:             getEnv("PORT", "8080"),
		AllowedOrigins:   strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DialerMode:       getEnv("DIALER_MODE", "noop"),
		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
	}

	callDelayMS, err := strconv.Atoi(getEnv("CALL_DELAY_MS", "5000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CALL_DELAY_MS: %w", err)
	}
	if callDelayMS < 0 {
		return nil, fmt.Errorf("CALL_DELAY_MS must not be negative")
	}
	config.CallDelay = time.Duration(callDelayMS) * time.Millisecond

	countdownTickMS, err := strconv.Atoi(getEnv("COUNTDOWN_TICK_MS", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid COUNTDOWN_TICK_MS: %w", err)
	}
	if countdownTickMS <= 0 {
		return nil, fmt.Errorf("COUNTDOWN_TICK_MS must be positive")
	}
	config.CountdownTick = time.Duration(countdownTickMS) * time.Millisecond

	dialGraceMS, err := strconv.Atoi(getEnv("DIAL_GRACE_MS", "2000"))
	if err != nil {
		return nil, fmt.Errorf("invalid DIAL_GRACE_MS: %w", err)
	}
	config.DialGrace = time.Duration(dialGraceMS) * time.Millisecond

	heartbeatS, err := strconv.Atoi(getEnv("HEARTBEAT_INTERVAL_S", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEARTBEAT_INTERVAL_S: %w", err)
	}
	if heartbeatS <= 0 {
		return nil, fmt.Errorf("HEARTBEAT_INTERVAL_S must be positive")
	}
	config.HeartbeatInterval = time.Duration(heartbeatS) * time.Second

	if config.DialerMode == "twilio" && (config.TwilioAccountSID == "" || config.TwilioAuthToken == "" || config.TwilioFromNumber == "") {
		return nil, fmt.Errorf("DIALER_MODE=twilio requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER")
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
