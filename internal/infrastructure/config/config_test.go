package config

import (
	"os"
	"path/filepath"
	"testing"
)

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
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
automation:
  link_store: "excel"
  excel_path: "/tmp/links.xlsx"
  persist_retries: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Automation.LinkStore != LinkStoreExcel {
		t.Errorf("Automation.LinkStore = %q, want %q", cfg.Automation.LinkStore, LinkStoreExcel)
	}
	if cfg.Automation.PersistRetries != 2 {
		t.Errorf("Automation.PersistRetries = %d, want 2", cfg.Automation.PersistRetries)
	}
	// Untouched sections keep their defaults.
	if cfg.Automation.Redis.Key != "graylogic:automation:links" {
		t.Errorf("Automation.Redis.Key = %q, want default", cfg.Automation.Redis.Key)
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
site:
  id: ""
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "unknown link store", mutate: func(c *Config) { c.Automation.LinkStore = "csv" }, wantErr: true},
		{
			name: "excel store without path",
			mutate: func(c *Config) {
				c.Automation.LinkStore = LinkStoreExcel
				c.Automation.ExcelPath = ""
			},
			wantErr: true,
		},
		{
			name: "redis store without addr",
			mutate: func(c *Config) {
				c.Automation.LinkStore = LinkStoreRedis
				c.Automation.Redis.Addr = ""
			},
			wantErr: true,
		},
		{name: "redis store with defaults", mutate: func(c *Config) { c.Automation.LinkStore = LinkStoreRedis }},
		{name: "negative retries", mutate: func(c *Config) { c.Automation.PersistRetries = -1 }, wantErr: true},
		{
			name: "simulation with zero interval",
			mutate: func(c *Config) {
				c.Simulation.Enabled = true
				c.Simulation.Interval = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
		Simulation: SimulationConfig{Interval: 7},
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
	if got := cfg.GetSimulationInterval().Seconds(); got != 7 {
		t.Errorf("GetSimulationInterval() = %v, want 7", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_API_HOST", "192.168.1.1")
	t.Setenv("GRAYLOGIC_API_PORT", "9090")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_LINK_STORE", "redis")
	t.Setenv("GRAYLOGIC_REDIS_ADDR", "redis:6379")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v, want testuser/testpass", cfg.MQTT.Auth)
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Automation.LinkStore != LinkStoreRedis {
		t.Errorf("Automation.LinkStore = %q, want %q", cfg.Automation.LinkStore, LinkStoreRedis)
	}
	if cfg.Automation.Redis.Addr != "redis:6379" {
		t.Errorf("Automation.Redis.Addr = %q, want %q", cfg.Automation.Redis.Addr, "redis:6379")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GRAYLOGIC_TEST_ENVFILE=from-file\n"), 0600); err != nil {
		t.Fatalf("writing env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("GRAYLOGIC_TEST_ENVFILE") }) //nolint:errcheck // test cleanup

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	if got := os.Getenv("GRAYLOGIC_TEST_ENVFILE"); got != "from-file" {
		t.Errorf("GRAYLOGIC_TEST_ENVFILE = %q, want %q", got, "from-file")
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("LoadEnvFile() on missing file error = %v, want nil", err)
	}
	if err := LoadEnvFile(""); err != nil {
		t.Errorf("LoadEnvFile(\"\") error = %v, want nil", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Automation.LinkStore != LinkStoreSQLite {
		t.Errorf("defaultConfig Automation.LinkStore = %q, want sqlite", cfg.Automation.LinkStore)
	}
	if cfg.Automation.PersistRetries != 1 {
		t.Errorf("defaultConfig Automation.PersistRetries = %d, want 1", cfg.Automation.PersistRetries)
	}
}
