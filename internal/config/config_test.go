package config

import (
	"os"
	"testing"
)

func TestLoadServerConfig(t *testing.T) {
	origPort := os.Getenv("OCDSCOPE_HTTP_PORT")
	origDB := os.Getenv("OCDSCOPE_PROFILE_DB_PATH")
	defer func() {
		os.Setenv("OCDSCOPE_HTTP_PORT", origPort)
		os.Setenv("OCDSCOPE_PROFILE_DB_PATH", origDB)
	}()

	t.Run("Defaults", func(t *testing.T) {
		os.Unsetenv("OCDSCOPE_HTTP_PORT")
		os.Unsetenv("OCDSCOPE_PROFILE_DB_PATH")

		cfg := LoadServerConfig()
		if cfg.HTTPPort != 8080 {
			t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
		}
		if cfg.ProfileDBPath != "ocdscope.db" {
			t.Errorf("ProfileDBPath = %q, want ocdscope.db", cfg.ProfileDBPath)
		}
	})

	t.Run("EnvironmentVariables", func(t *testing.T) {
		os.Setenv("OCDSCOPE_HTTP_PORT", "9090")
		os.Setenv("OCDSCOPE_PROFILE_DB_PATH", "/tmp/test.db")

		cfg := LoadServerConfig()
		if cfg.HTTPPort != 9090 {
			t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
		}
		if cfg.ProfileDBPath != "/tmp/test.db" {
			t.Errorf("ProfileDBPath = %q, want /tmp/test.db", cfg.ProfileDBPath)
		}
	})

	t.Run("InvalidPortKeepsDefault", func(t *testing.T) {
		os.Setenv("OCDSCOPE_HTTP_PORT", "not-a-port")

		cfg := LoadServerConfig()
		if cfg.HTTPPort != 8080 {
			t.Errorf("HTTPPort = %d, want 8080 (default kept on parse failure)", cfg.HTTPPort)
		}
	})
}

func TestLoadSessionConfig(t *testing.T) {
	for _, key := range []string{
		"OCDSCOPE_METHOD", "OCDSCOPE_SAMPLE_RATE_HZ", "OCDSCOPE_GDB_ENDPOINT",
		"OCDSCOPE_TELNET_ENDPOINT", "OCDSCOPE_ELF_PATH", "OCDSCOPE_POLLING_INTERVAL_MS",
		"OCDSCOPE_RELATIVE_TIME", "OCDSCOPE_AUTO_TRUNCATE", "OCDSCOPE_KEEP_LAST_SECONDS",
	} {
		orig := os.Getenv(key)
		k := key
		defer os.Setenv(k, orig)
	}

	t.Run("Defaults", func(t *testing.T) {
		for _, key := range []string{
			"OCDSCOPE_METHOD", "OCDSCOPE_SAMPLE_RATE_HZ", "OCDSCOPE_GDB_ENDPOINT",
			"OCDSCOPE_TELNET_ENDPOINT", "OCDSCOPE_ELF_PATH", "OCDSCOPE_POLLING_INTERVAL_MS",
			"OCDSCOPE_RELATIVE_TIME", "OCDSCOPE_AUTO_TRUNCATE", "OCDSCOPE_KEEP_LAST_SECONDS",
		} {
			os.Unsetenv(key)
		}

		cfg := LoadSessionConfig()
		if cfg.Method != MethodSimulated {
			t.Errorf("Method = %v, want %v", cfg.Method, MethodSimulated)
		}
		if cfg.SampleRateHz != 100 {
			t.Errorf("SampleRateHz = %v, want 100", cfg.SampleRateHz)
		}
	})

	t.Run("EnvironmentVariables", func(t *testing.T) {
		os.Setenv("OCDSCOPE_METHOD", "RTT")
		os.Setenv("OCDSCOPE_POLLING_INTERVAL_MS", "25")
		os.Setenv("OCDSCOPE_AUTO_TRUNCATE", "true")

		cfg := LoadSessionConfig()
		if cfg.Method != MethodRTT {
			t.Errorf("Method = %v, want %v", cfg.Method, MethodRTT)
		}
		if cfg.PollingIntervalMS != 25 {
			t.Errorf("PollingIntervalMS = %d, want 25", cfg.PollingIntervalMS)
		}
		if !cfg.AutoTruncate {
			t.Error("AutoTruncate = false, want true")
		}
	})

	t.Run("UnknownMethodKeepsDefault", func(t *testing.T) {
		os.Setenv("OCDSCOPE_METHOD", "quantum")

		cfg := LoadSessionConfig()
		if cfg.Method != MethodSimulated {
			t.Errorf("Method = %v, want default %v", cfg.Method, MethodSimulated)
		}
	})
}
