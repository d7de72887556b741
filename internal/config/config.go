package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfiguration is returned for values that cannot be used.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Transport kinds accepted by Transport.
const (
	TransportWebSocket = "websocket"
	TransportTCP       = "tcp"
	TransportMemory    = "memory"
)

// Config holds client configuration values.
type Config struct {
	Username string   `mapstructure:"username" yaml:"username"`
	Token    string   `mapstructure:"token" yaml:"token,omitempty"`
	Rooms    []string `mapstructure:"rooms" yaml:"rooms"`

	Transport string `mapstructure:"transport" yaml:"transport"`
	// Addr overrides the default endpoint of Transport.
	Addr string `mapstructure:"addr" yaml:"addr"`

	// MessageLifetime is in seconds; <= 0 keeps messages forever.
	MessageLifetime int `mapstructure:"message_lifetime" yaml:"message_lifetime"`
	// SweepInterval is in seconds; <= 0 disables the sweep task.
	SweepInterval int `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	MaxMessages   int `mapstructure:"max_messages" yaml:"max_messages"`

	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	AuthTimeout       time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	ReconnectMaxDelay time.Duration `mapstructure:"reconnect_max_delay" yaml:"reconnect_max_delay"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval" yaml:"keep_alive_interval"`

	RateCapacity int           `mapstructure:"rate_capacity" yaml:"rate_capacity"`
	RatePeriod   time.Duration `mapstructure:"rate_period" yaml:"rate_period"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`

	// StatusAddr enables the status API when set.
	StatusAddr        string        `mapstructure:"status_addr" yaml:"status_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Rooms:             []string{},
		Transport:         TransportWebSocket,
		MessageLifetime:   600,
		SweepInterval:     60,
		MaxMessages:       1000,
		MaxRetries:        5,
		DialTimeout:       10 * time.Second,
		AuthTimeout:       10 * time.Second,
		RequestTimeout:    10 * time.Second,
		ReconnectDelay:    time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		KeepAliveInterval: time.Minute,
		RateCapacity:      20,
		RatePeriod:        30 * time.Second,
		LogLevel:          "info",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// MessageLifetimeDuration converts MessageLifetime; zero means unbounded.
func (c Config) MessageLifetimeDuration() time.Duration {
	if c.MessageLifetime <= 0 {
		return 0
	}
	return time.Duration(c.MessageLifetime) * time.Second
}

// SweepEvery converts SweepInterval; zero disables sweeping.
func (c Config) SweepEvery() time.Duration {
	if c.SweepInterval <= 0 {
		return 0
	}
	return time.Duration(c.SweepInterval) * time.Second
}

// Validate rejects values the client cannot run with.
func (c Config) Validate() error {
	var problems []string
	switch c.Transport {
	case TransportWebSocket, TransportTCP, TransportMemory, "":
	default:
		problems = append(problems, fmt.Sprintf("unknown transport %q", c.Transport))
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "max_retries must be >= 0")
	}
	if c.MaxMessages < 0 {
		problems = append(problems, "max_messages must be >= 0")
	}
	if c.RateCapacity < 0 || c.RatePeriod < 0 {
		problems = append(problems, "rate limit must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"dial_timeout":        c.DialTimeout,
		"auth_timeout":        c.AuthTimeout,
		"request_timeout":     c.RequestTimeout,
		"reconnect_delay":     c.ReconnectDelay,
		"reconnect_max_delay": c.ReconnectMaxDelay,
	} {
		if d < 0 {
			problems = append(problems, name+" must not be negative")
		}
	}
	for _, room := range c.Rooms {
		if strings.Trim(strings.TrimSpace(room), "#") == "" {
			problems = append(problems, "rooms must not contain blank names")
			break
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(problems, "; "))
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Username != "" {
		c.Username = other.Username
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if len(other.Rooms) > 0 {
		c.Rooms = other.Rooms
	}
	if other.Transport != "" {
		c.Transport = other.Transport
	}
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFile != "" {
		c.LogFile = other.LogFile
	}
	if other.StatusAddr != "" {
		c.StatusAddr = other.StatusAddr
	}
	if other.MessageLifetime != 0 {
		c.MessageLifetime = other.MessageLifetime
	}
	if other.SweepInterval != 0 {
		c.SweepInterval = other.SweepInterval
	}
	if other.MaxRetries != 0 {
		c.MaxRetries = other.MaxRetries
	}
}
