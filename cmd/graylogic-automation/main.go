// Gray Logic Automation - sensor-driven device automation service.
//
// This is the main entry point for the automation service. It loads the
// device and sensor inventory, restores automation links from the link
// store, and then evaluates sensor readings arriving over MQTT, the HTTP
// API or the built-in simulator against each linked device's thresholds.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/pflag"

	_ "github.com/nerrad567/gray-logic-automation/migrations"

	"github.com/nerrad567/gray-logic-automation/internal/api"
	"github.com/nerrad567/gray-logic-automation/internal/audit"
	"github.com/nerrad567/gray-logic-automation/internal/automation"
	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-automation/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-automation/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-automation/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-automation/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
	"github.com/nerrad567/gray-logic-automation/internal/simulation"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = ""        // Semantic version; falls back to VCS info when empty
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options are the command-line flags.
type options struct {
	configPath string
	envFile    string
	logLevel   string

	// Schema maintenance; both exit without starting the service.
	migrateStatus bool
	migrateDown   bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses the command line. The config path falls back to
// GRAYLOGIC_CONFIG and then to the default path.
func parseFlags(args []string) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("graylogic-automation", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default: $GRAYLOGIC_CONFIG or "+defaultConfigPath+")")
	flagSet.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before environment overrides")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	flagSet.BoolVar(&opts.migrateStatus, "migrate-status", false, "print applied and pending migrations, then exit")
	flagSet.BoolVar(&opts.migrateDown, "migrate-down", false, "roll back the most recent migration, then exit")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildVersion returns the ldflags version, or the module/VCS version
// recorded by the Go toolchain when none was injected.
func buildVersion() string {
	if version != "" {
		return version
	}
	return versioninfo.Short()
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Parsed command-line flags
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts options) error { //nolint:gocognit,gocyclo // linear startup sequence
	ver := buildVersion()

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Automation",
		"version", ver,
		"commit", commit,
		"build_date", date,
	)

	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	log.Info("configuration loaded", "path", opts.configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, ver)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if opts.migrateStatus || opts.migrateDown {
		return runMigrationCommand(ctx, db, opts, os.Stdout)
	}

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Load inventory into the registries
	deviceRepo := device.NewSQLiteRepository(db.DB)
	sensorRepo := sensor.NewSQLiteRepository(db.DB)
	historyRepo := device.NewSQLiteHistoryRepository(db.DB)

	devices := device.NewRegistry()
	devices.SetLogger(log)
	if loadErr := devices.Load(ctx, deviceRepo); loadErr != nil {
		return loadErr
	}
	sensors := sensor.NewRegistry()
	sensors.SetLogger(log)
	if loadErr := sensors.Load(ctx, sensorRepo); loadErr != nil {
		return loadErr
	}

	store, closeStore, err := openLinkStore(ctx, cfg, db, log)
	if err != nil {
		return fmt.Errorf("opening link store: %w", err)
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			log.Error("error closing link store", "error", closeErr)
		}
	}()
	log.Info("link store ready", "backend", cfg.Automation.LinkStore)

	hub := api.NewHub(cfg.WebSocket, log)
	sinks := automation.Sinks{Hub: hub, History: historyRepo}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		sinks.MQTT = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks.Telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	engine := automation.NewEngine(devices, sensors, sinks, log)
	manager := automation.NewManager(engine, store, cfg.Automation.PersistRetries, log)

	report, err := manager.RestoreLinks(ctx)
	if err != nil {
		return fmt.Errorf("restoring automation links: %w", err)
	}
	log.Info("automation links restored",
		"rows", report.Rows,
		"restored", len(report.Restored),
		"skipped", len(report.Skipped),
		"placeholders", len(report.Placeholders),
		"repaired", len(report.Repaired),
		"pruned", report.Pruned,
	)

	if mqttClient != nil {
		handler := readingHandler(ctx, engine, sensorRepo, log)
		if subErr := mqttClient.Subscribe(mqtt.Topics{}.AllSensorReadings(), byte(cfg.MQTT.QoS), handler); subErr != nil {
			return fmt.Errorf("subscribing to sensor readings: %w", subErr)
		}
	}

	if cfg.Simulation.Enabled {
		sim := simulation.New(simulation.Config{
			Interval: cfg.GetSimulationInterval(),
			MaxStep:  cfg.Simulation.MaxStep,
		}, sensors, engine)
		sim.SetLogger(log)
		sim.Start(ctx)
		defer func() {
			log.Info("stopping simulator")
			sim.Stop()
		}()
		log.Info("sensor simulation started", "interval", cfg.GetSimulationInterval())
	}

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Devices:    devices,
		Sensors:    sensors,
		Engine:     engine,
		Manager:    manager,
		DeviceRepo: deviceRepo,
		SensorRepo: sensorRepo,
		History:    historyRepo,
		Audit:      audit.NewSQLiteRepository(db.DB),
		DB:         db,
		Hub:        hub,
		Version:    ver,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Gray Logic Automation stopped")
	return nil
}

// runMigrationCommand handles --migrate-down and --migrate-status, then
// prints the resulting schema state to out.
func runMigrationCommand(ctx context.Context, db *database.DB, opts options, out io.Writer) error {
	if opts.migrateDown {
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, m := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}

// openLinkStore builds the configured link store backend. The returned
// close function releases any connection the backend holds.
func openLinkStore(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (automation.LinkStore, func() error, error) {
	noClose := func() error { return nil }

	switch cfg.Automation.LinkStore {
	case config.LinkStoreSQLite:
		return automation.NewSQLiteLinkStore(db.DB), noClose, nil

	case config.LinkStoreExcel:
		return automation.NewExcelLinkStore(cfg.Automation.ExcelPath, log), noClose, nil

	case config.LinkStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Automation.Redis.Addr,
			Password: cfg.Automation.Redis.Password,
			DB:       cfg.Automation.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Automation.Redis.Addr, err)
		}
		return automation.NewRedisLinkStore(client, cfg.Automation.Redis.Key, log), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown link store %q", cfg.Automation.LinkStore)
	}
}

// readingHandler returns the MQTT handler for graylogic/sensor/+/reading.
// Each message is evaluated immediately; the inventory copy of the reading
// is updated best-effort.
func readingHandler(ctx context.Context, engine *automation.Engine, repo sensor.Repository, log *logging.Logger) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		sensorID, ok := mqtt.SensorIDFromTopic(topic)
		if !ok {
			return fmt.Errorf("unexpected sensor topic %q", topic)
		}

		value, err := sensor.DecodeReading(payload)
		if err != nil {
			return fmt.Errorf("sensor %s: %w", sensorID, err)
		}

		transitions := engine.Evaluate(ctx, sensorID, value)
		if len(transitions) > 0 {
			log.Debug("reading applied", "sensor_id", sensorID, "reading", value, "transitions", len(transitions))
		}

		if repo != nil {
			if err := repo.UpdateReading(ctx, sensorID, value); err != nil && !errors.Is(err, sensor.ErrSensorNotFound) {
				log.Warn("persisting sensor reading", "sensor_id", sensorID, "error", err)
			}
		}
		return nil
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
