package influxdb

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-automation/internal/infrastructure/config"
)

func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "graylogic-dev-token",
		Org:           "graylogic",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		client, err := Connect(testConfig())
		if err != nil {
			t.Skip("InfluxDB not available, skipping integration test")
		}
		client.Close() //nolint:errcheck // probe only
	}
}

// ─── Unit tests ─────────────────────────────────────────────────────

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestBatchSettings(t *testing.T) {
	tests := []struct {
		name          string
		batch, flush  int
		wantB, wantFl int
	}{
		{"configured", 50, 2, 50, 2},
		{"zero uses defaults", 0, 0, defaultBatchSize, defaultFlushInterval},
		{"negative uses defaults", -5, -1, defaultBatchSize, defaultFlushInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, fl := batchSettings(config.InfluxDBConfig{BatchSize: tt.batch, FlushInterval: tt.flush})
			if b != tt.wantB || fl != tt.wantFl {
				t.Errorf("batchSettings() = %d, %d; want %d, %d", b, fl, tt.wantB, tt.wantFl)
			}
		})
	}
}

func TestSensorReadingPoint(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	line := write.PointToLineProtocol(sensorReadingPoint("lux-hall", "light", 212.5, ts), time.Second)

	want := "sensor_reading,sensor_id=lux-hall,sensor_type=light value=212.5 1700000000\n"
	if line != want {
		t.Errorf("line protocol = %q, want %q", line, want)
	}
}

func TestTransitionPoint(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	line := write.PointToLineProtocol(transitionPoint("L1", "S1", true, 200, "automation", ts), time.Second)
	if !strings.HasPrefix(line, "automation_transition,device_id=L1,sensor_id=S1,source=automation ") {
		t.Errorf("unexpected tags: %q", line)
	}
	if !strings.Contains(line, "on=1i") || !strings.Contains(line, "reading=200") {
		t.Errorf("unexpected fields: %q", line)
	}

	// Manual transitions carry no sensor tag.
	line = write.PointToLineProtocol(transitionPoint("L1", "", false, 0, "manual", ts), time.Second)
	if strings.Contains(line, "sensor_id") {
		t.Errorf("manual transition should not tag a sensor: %q", line)
	}
	if !strings.Contains(line, "on=0i") {
		t.Errorf("off transition should write on=0: %q", line)
	}
}

func TestWrites_Disconnected(t *testing.T) {
	c := &Client{}

	// None of these may panic on a client without a write API.
	c.WriteSensorReading("lux-hall", "light", 1)
	c.WriteTransition("L1", "S1", true, 1, "automation")
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1})
	c.Flush()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// ─── Integration tests ──────────────────────────────────────────────

func TestConnect(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // test cleanup

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWriteTelemetry(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // test cleanup

	var writeErr error
	client.SetOnError(func(err error) { writeErr = err })

	client.WriteSensorReading("test-sensor", "light", 512)
	client.WriteTransition("test-device", "test-sensor", true, 512, "automation")
	client.Flush()

	if writeErr != nil {
		t.Errorf("async write error = %v", writeErr)
	}
}
