// Package config loads ocdscope's configuration surface (spec.md §6.6)
// from environment variables, the way the teacher's own config package
// loads its server settings: typed fields with sane defaults, silently
// kept when an environment value fails to parse.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Method is the acquisition backend selected for a session.
type Method string

const (
	MethodSimulated Method = "simulated"
	MethodMemory    Method = "memory"
	MethodRTT       Method = "rtt"
)

// ServerConfig holds the global configuration for the status/control HTTP
// surface and the profile store. Per-session acquisition settings live in
// SessionConfig below.
type ServerConfig struct {
	// HTTPPort is the port the status/control API listens on.
	HTTPPort int
	// ProfileDBPath is the file path to the SQLite profile store.
	ProfileDBPath string
}

// DefaultServerConfig returns ocdscope's out-of-the-box server settings.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		HTTPPort:      8080,
		ProfileDBPath: "ocdscope.db",
	}
}

// LoadServerConfig reads OCDSCOPE_HTTP_PORT and OCDSCOPE_PROFILE_DB_PATH,
// falling back to the default for any variable that is unset or
// unparseable.
func LoadServerConfig() *ServerConfig {
	cfg := DefaultServerConfig()

	if v := os.Getenv("OCDSCOPE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = port
		}
	}
	if v := os.Getenv("OCDSCOPE_PROFILE_DB_PATH"); v != "" {
		cfg.ProfileDBPath = v
	}

	return cfg
}

// SessionConfig is the enumerated configuration surface from spec.md
// §6.6: which acquisition backend to run and its parameters. Fields that
// don't apply to the selected Method are simply ignored.
type SessionConfig struct {
	Method Method

	// Memory / Simulated
	SampleRateHz float64

	// Memory
	GDBEndpoint string
	ElfPath     string

	// RTT. The memory sampler does not read TelnetEndpoint.
	TelnetEndpoint string

	// RTT. These are loaded and persisted but not passed to the RTT
	// sampler, which polls at a fixed 10 ms and has no relative-time
	// option.
	PollingIntervalMS int
	RelativeTime      bool

	// Buffer
	AutoTruncate    bool
	KeepLastSeconds float64
}

// DefaultSessionConfig returns a runnable Simulated-backend configuration.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		Method:            MethodSimulated,
		SampleRateHz:      100,
		TelnetEndpoint:    "127.0.0.1:4444",
		GDBEndpoint:       "127.0.0.1:3333",
		PollingIntervalMS: 10,
		AutoTruncate:      false,
		KeepLastSeconds:   60,
	}
}

// LoadSessionConfig reads the OCDSCOPE_* session variables, falling back
// to DefaultSessionConfig()'s values for anything unset or unparseable.
func LoadSessionConfig() *SessionConfig {
	cfg := DefaultSessionConfig()

	if v := os.Getenv("OCDSCOPE_METHOD"); v != "" {
		switch Method(strings.ToLower(v)) {
		case MethodSimulated, MethodMemory, MethodRTT:
			cfg.Method = Method(strings.ToLower(v))
		}
	}
	if v := os.Getenv("OCDSCOPE_SAMPLE_RATE_HZ"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SampleRateHz = f
		}
	}
	if v := os.Getenv("OCDSCOPE_GDB_ENDPOINT"); v != "" {
		cfg.GDBEndpoint = v
	}
	if v := os.Getenv("OCDSCOPE_TELNET_ENDPOINT"); v != "" {
		cfg.TelnetEndpoint = v
	}
	if v := os.Getenv("OCDSCOPE_ELF_PATH"); v != "" {
		cfg.ElfPath = v
	}
	if v := os.Getenv("OCDSCOPE_POLLING_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollingIntervalMS = n
		}
	}
	if v := os.Getenv("OCDSCOPE_RELATIVE_TIME"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RelativeTime = b
		}
	}
	if v := os.Getenv("OCDSCOPE_AUTO_TRUNCATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoTruncate = b
		}
	}
	if v := os.Getenv("OCDSCOPE_KEEP_LAST_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.KeepLastSeconds = f
		}
	}

	return cfg
}
