// AquaSense Core - Water Quality Telemetry Broker
//
// This is the main entry point for the AquaSense Core application.
// AquaSense brokers real-time telemetry between water-quality sensor
// devices (producers) and monitoring dashboards (observers), and persists
// calibrated readings for historical queries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	_ "github.com/tirtalab/aquasense-core/migrations"

	"github.com/tirtalab/aquasense-core/internal/api"
	"github.com/tirtalab/aquasense-core/internal/broker"
	"github.com/tirtalab/aquasense-core/internal/calibration"
	"github.com/tirtalab/aquasense-core/internal/device"
	"github.com/tirtalab/aquasense-core/internal/infrastructure/config"
	"github.com/tirtalab/aquasense-core/internal/infrastructure/database"
	"github.com/tirtalab/aquasense-core/internal/infrastructure/influxdb"
	"github.com/tirtalab/aquasense-core/internal/infrastructure/logging"
	"github.com/tirtalab/aquasense-core/internal/infrastructure/mqtt"
	"github.com/tirtalab/aquasense-core/internal/sensor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit // Startup wiring is linear
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting AquaSense Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device repository and producer credential directory
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceDirectory := device.NewDirectory(deviceRepo, log)

	// Session registry: Redis for multi-instance deployments, in-memory
	// otherwise.
	hub := broker.NewHub(log)
	var (
		registry    broker.Registry
		bus         broker.Bus = broker.NopBus{}
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing redis", "error", closeErr)
			}
		}()
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			return fmt.Errorf("connecting to redis: %w", pingErr)
		}
		registry = broker.NewRedisRegistry(redisClient)
		redisBus := broker.NewRedisBus(redisClient, hub, registry, log)
		defer func() {
			if closeErr := redisBus.Close(); closeErr != nil {
				log.Error("error closing redis bus", "error", closeErr)
			}
		}()
		bus = redisBus
		log.Info("session registry: redis", "addr", cfg.Redis.Addr)
	} else {
		registry = broker.NewMemoryRegistry()
		log.Info("session registry: in-memory (single instance)")
	}

	// Broker core
	brokerDirectory := api.NewBrokerDirectory(deviceDirectory, cfg.Security.JWT.Secret)
	lifecycle := broker.NewLifecycle(registry, brokerDirectory, hub, bus, log)
	router := broker.NewRouter(registry, hub, bus, log)

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Sensor persistence pipeline
	readingRepo := sensor.NewSQLiteRepository(db.DB)
	sensorService := sensor.NewService(readingRepo, deviceRepo, calibration.NewEngine(), influxClient, log)

	// MQTT telemetry ingest (optional)
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		ingest := sensor.NewIngest(mqttClient, sensorService, log)
		if startErr := ingest.Start(); startErr != nil {
			return fmt.Errorf("starting telemetry ingest: %w", startErr)
		}
		defer func() {
			if stopErr := ingest.Stop(); stopErr != nil {
				log.Error("error stopping telemetry ingest", "error", stopErr)
			}
		}()
	} else {
		log.Info("MQTT ingest disabled")
	}

	// HTTP API and WebSocket transport
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log,
		Devices:   deviceRepo,
		Sensors:   sensorService,
		Registry:  registry,
		Hub:       hub,
		Lifecycle: lifecycle,
		Router:    router,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (closes live WebSocket sessions)
	// 2. MQTT ingest + client (if enabled)
	// 3. InfluxDB (if enabled)
	// 4. Redis bus + client (if enabled)
	// 5. Database

	log.Info("AquaSense Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AQUASENSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AQUASENSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
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
