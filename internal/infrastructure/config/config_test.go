package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
service:
  instance_id: "kr-test"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
  port: 8080
capture:
  ceiling_ms: 10000
mqtt:
  broker:
    host: "broker.local"
  qos: 0
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.InstanceID != "kr-test" {
		t.Errorf("Service.InstanceID = %q, want %q", cfg.Service.InstanceID, "kr-test")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
	if got := cfg.Capture.Ceiling(); got != 10*time.Second {
		t.Errorf("Capture.Ceiling() = %v, want 10s", got)
	}
	// Unset keys keep their defaults.
	if got := cfg.Capture.Refresh(); got != 50*time.Millisecond {
		t.Errorf("Capture.Refresh() = %v, want 50ms", got)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.QoS != 0 {
		t.Errorf("MQTT.QoS = %d, want 0", cfg.MQTT.QoS)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/test.db"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error for missing jwt secret, got nil")
	}
	if !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Errorf("Load() error = %v, want mention of security.jwt.secret", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 8080
`)
	t.Setenv("KEYRHYTHM_JWT_SECRET", validJWTSecret)
	t.Setenv("KEYRHYTHM_API_PORT", "9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults with secret", mutate: func(*Config) {}},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "tls without files",
			mutate:  func(c *Config) { c.API.TLS.Enabled = true },
			wantErr: "api.tls",
		},
		{
			name:    "zero ceiling",
			mutate:  func(c *Config) { c.Capture.CeilingMS = 0 },
			wantErr: "capture.ceiling_ms",
		},
		{
			name:    "refresh above ceiling",
			mutate:  func(c *Config) { c.Capture.RefreshMS = 20000 },
			wantErr: "capture.refresh_ms",
		},
		{
			name:    "negative reset delay",
			mutate:  func(c *Config) { c.Capture.ResetDelayMS = -1 },
			wantErr: "capture.reset_delay_ms",
		},
		{
			name:   "zero reset delay allowed",
			mutate: func(c *Config) { c.Capture.ResetDelayMS = 0 },
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name: "mqtt enabled without host",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker.Host = ""
			},
			wantErr: "mqtt.broker.host",
		},
		{
			name:   "mqtt disabled without host",
			mutate: func(c *Config) { c.MQTT.Broker.Host = "" },
		},
		{
			name: "nats enabled without subject",
			mutate: func(c *Config) {
				c.NATS.Enabled = true
				c.NATS.Subject = ""
			},
			wantErr: "nats.url",
		},
		{
			name:    "influxdb enabled without org",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "http://localhost:8086" },
			wantErr: "influxdb.url",
		},
		{
			name:    "file logging without path",
			mutate:  func(c *Config) { c.Logging.Output = "file" },
			wantErr: "logging.file.path",
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "KEYRHYTHM_JWT_SECRET",
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = validJWTSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Path = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	for _, want := range []string{"database.path", "api.port", "security.jwt.secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, missing %q", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("KEYRHYTHM_DATABASE_PATH", "/custom/path.db")
	t.Setenv("KEYRHYTHM_MQTT_HOST", "mqtt.example.com")
	t.Setenv("KEYRHYTHM_MQTT_USERNAME", "testuser")
	t.Setenv("KEYRHYTHM_MQTT_PASSWORD", "testpass")
	t.Setenv("KEYRHYTHM_API_HOST", "192.168.1.1")
	t.Setenv("KEYRHYTHM_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("KEYRHYTHM_JWT_SECRET", "jwt-secret")
	t.Setenv("KEYRHYTHM_NATS_ENABLED", "true")
	t.Setenv("KEYRHYTHM_MQTT_ENABLED", "not-a-bool")

	applyEnvOverrides(cfg)

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}

	if !cfg.NATS.Enabled {
		t.Error("NATS.Enabled = false, want true")
	}
	if cfg.MQTT.Enabled {
		t.Error("malformed KEYRHYTHM_MQTT_ENABLED should be ignored")
	}
}

func TestApplyEnvOverrides_MalformedPort(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("KEYRHYTHM_API_PORT", "eighty")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 5000 {
		t.Errorf("API.Port = %d, want default 5000", cfg.API.Port)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("KEYRHYTHM_CONFIG", "")
	if got := Path(); got != "configs/config.yaml" {
		t.Errorf("Path() = %q, want configs/config.yaml", got)
	}

	t.Setenv("KEYRHYTHM_CONFIG", "/etc/keyrhythm.yaml")
	if got := Path(); got != "/etc/keyrhythm.yaml" {
		t.Errorf("Path() = %q, want /etc/keyrhythm.yaml", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.API.Port != 5000 {
		t.Errorf("defaultConfig API.Port = %d, want 5000", cfg.API.Port)
	}
	if got := cfg.Capture.Ceiling(); got != 15*time.Second {
		t.Errorf("defaultConfig Capture.Ceiling() = %v, want 15s", got)
	}
	if got := cfg.Capture.ResetDelay(); got != 2*time.Second {
		t.Errorf("defaultConfig Capture.ResetDelay() = %v, want 2s", got)
	}
	if got := cfg.Security.JWT.TokenTTL(); got != 15*time.Minute {
		t.Errorf("defaultConfig TokenTTL() = %v, want 15m", got)
	}
	if cfg.MQTT.Enabled || cfg.NATS.Enabled || cfg.InfluxDB.Enabled {
		t.Error("defaultConfig should leave telemetry sinks disabled")
	}
}
