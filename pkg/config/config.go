// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	envUpstreamURL            = "MCP_UPSTREAM_URL"
	envJWTSecret              = "MCP_JWT_SECRET"
	envJWTAlgorithm           = "MCP_JWT_ALGORITHM"
	envKeepAliveInterval      = "MCP_KEEPALIVE_INTERVAL"
	envConnectTimeout         = "MCP_CONNECT_TIMEOUT"
	envCallTimeout            = "MCP_CALL_TIMEOUT"
	envRequireUpstream        = "MCP_REQUIRE_UPSTREAM"
	envListenAddr             = "MCP_LISTEN_ADDR"
	envLogLevel               = "MCP_LOG_LEVEL"
	envUpstreamAPIKey         = "MCP_UPSTREAM_API_KEY"
	envUpstreamAPISecret      = "MCP_UPSTREAM_API_SECRET"
	envSessionHeader          = "MCP_UPSTREAM_SESSION_HEADER"
	envSessionValue           = "MCP_UPSTREAM_SESSION_VALUE"
	envInsecureSkipVerify     = "MCP_UPSTREAM_INSECURE"
	envServerReadTimeout      = "MCP_SERVER_READ_TIMEOUT"
	envServerWriteTimeout     = "MCP_SERVER_WRITE_TIMEOUT"
	envServerIdleTimeout      = "MCP_SERVER_IDLE_TIMEOUT"
	envGracefulShutdown       = "MCP_GRACEFUL_SHUTDOWN"
	envMaxBodyBytes           = "MCP_MAX_BODY_BYTES"
	defaultJWTAlgorithm       = "HS256"
	defaultKeepAliveInterval  = 300 * time.Second
	defaultConnectTimeout     = 5 * time.Second
	defaultCallTimeout        = 30 * time.Second
	defaultListenAddr         = "0.0.0.0:5000"
	defaultLogLevel           = "info"
	defaultSessionHeader      = "x-session-id"
	defaultServerReadTimeout  = 30 * time.Second
	defaultServerWriteTimeout = 60 * time.Second
	defaultServerIdleTimeout  = 120 * time.Second
	defaultGracefulShutdown   = 10 * time.Second
	defaultMaxBodyBytes       = 1 << 20
)

// Config captures runtime settings for the gateway. It is loaded once at
// startup and treated as immutable afterwards.
type Config struct {
	Upstream           *url.URL      `validate:"required"`
	JWTSecret          string        `validate:"required"`
	JWTAlgorithm       string        `validate:"required,oneof=HS256 HS384 HS512 RS256 RS384 RS512 PS256 PS384 PS512 ES256 ES384 ES512 EdDSA"`
	KeepAliveInterval  time.Duration `validate:"gt=0"`
	ConnectTimeout     time.Duration `validate:"gt=0"`
	CallTimeout        time.Duration `validate:"gt=0"`
	RequireUpstream    bool
	ListenAddr         string `validate:"required,hostname_port"`
	LogLevel           string `validate:"required,oneof=trace debug info warn error fatal panic disabled"`
	UpstreamAPIKey     string `validate:"required_with=UpstreamAPISecret"`
	UpstreamAPISecret  string `validate:"required_with=UpstreamAPIKey"`
	SessionHeader      string `validate:"required"`
	SessionValue       string
	InsecureSkipVerify bool
	ServerReadTimeout  time.Duration `validate:"gte=0"`
	ServerWriteTimeout time.Duration `validate:"gte=0"`
	ServerIdleTimeout  time.Duration `validate:"gte=0"`
	// GracefulShutdownTimeout also bounds the keepalive join on exit.
	GracefulShutdownTimeout time.Duration `validate:"gt=0"`
	MaxBodyBytes            int64         `validate:"gt=0"`
}

// SigningEnabled reports whether outbound upstream requests carry HMAC headers.
func (c Config) SigningEnabled() bool {
	return c.UpstreamAPIKey != "" && c.UpstreamAPISecret != ""
}

// Load reads configuration from environment variables and validates it.
func Load() (Config, error) {
	upstreamRaw := strings.TrimSpace(os.Getenv(envUpstreamURL))
	if upstreamRaw == "" {
		return Config{}, errors.New("MCP_UPSTREAM_URL is required")
	}

	upstream, err := url.Parse(upstreamRaw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MCP_UPSTREAM_URL: %w", err)
	}
	if !upstream.IsAbs() {
		return Config{}, errors.New("MCP_UPSTREAM_URL must be absolute (scheme://host)")
	}

	cfg := Config{
		Upstream:                upstream,
		JWTSecret:               os.Getenv(envJWTSecret),
		JWTAlgorithm:            getString(envJWTAlgorithm, defaultJWTAlgorithm),
		KeepAliveInterval:       getDuration(envKeepAliveInterval, defaultKeepAliveInterval),
		ConnectTimeout:          getDuration(envConnectTimeout, defaultConnectTimeout),
		CallTimeout:             getDuration(envCallTimeout, defaultCallTimeout),
		RequireUpstream:         getBool(envRequireUpstream, false),
		ListenAddr:              getString(envListenAddr, defaultListenAddr),
		LogLevel:                strings.ToLower(getString(envLogLevel, defaultLogLevel)),
		UpstreamAPIKey:          strings.TrimSpace(os.Getenv(envUpstreamAPIKey)),
		UpstreamAPISecret:       strings.TrimSpace(os.Getenv(envUpstreamAPISecret)),
		SessionHeader:           getString(envSessionHeader, defaultSessionHeader),
		SessionValue:            strings.TrimSpace(os.Getenv(envSessionValue)),
		InsecureSkipVerify:      getBool(envInsecureSkipVerify, false),
		ServerReadTimeout:       getDuration(envServerReadTimeout, defaultServerReadTimeout),
		ServerWriteTimeout:      getDuration(envServerWriteTimeout, defaultServerWriteTimeout),
		ServerIdleTimeout:       getDuration(envServerIdleTimeout, defaultServerIdleTimeout),
		GracefulShutdownTimeout: getDuration(envGracefulShutdown, defaultGracefulShutdown),
		MaxBodyBytes:            getInt64(envMaxBodyBytes, defaultMaxBodyBytes),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints and renders violations as one message.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// envNames maps struct fields back to the variables users actually set.
var envNames = map[string]string{
	"Upstream":                envUpstreamURL,
	"JWTSecret":               envJWTSecret,
	"JWTAlgorithm":            envJWTAlgorithm,
	"KeepAliveInterval":       envKeepAliveInterval,
	"ConnectTimeout":          envConnectTimeout,
	"CallTimeout":             envCallTimeout,
	"ListenAddr":              envListenAddr,
	"LogLevel":                envLogLevel,
	"UpstreamAPIKey":          envUpstreamAPIKey,
	"UpstreamAPISecret":       envUpstreamAPISecret,
	"SessionHeader":           envSessionHeader,
	"ServerReadTimeout":       envServerReadTimeout,
	"ServerWriteTimeout":      envServerWriteTimeout,
	"ServerIdleTimeout":       envServerIdleTimeout,
	"GracefulShutdownTimeout": envGracefulShutdown,
	"MaxBodyBytes":            envMaxBodyBytes,
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		name, ok := envNames[e.Field()]
		if !ok {
			name = e.Field()
		}
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", name))
		case "required_with":
			messages = append(messages, fmt.Sprintf("%s must be set together with %s", name, envNames[e.Param()]))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", name, e.Param()))
		case "hostname_port":
			messages = append(messages, fmt.Sprintf("%s must be a valid host:port", name))
		case "gt", "gte":
			messages = append(messages, fmt.Sprintf("%s must be positive", name))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", name, e.Tag()))
		}
	}
	return errors.New(strings.Join(messages, "; "))
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt64(key string, fallback int64) int64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getDuration accepts Go durations ("90s") and bare integers, read as seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
