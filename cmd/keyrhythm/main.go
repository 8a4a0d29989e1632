// KeyRhythm Core - keystroke-timing authentication service.
//
// This is the main entry point. It loads configuration, opens the credential
// store, wires the attempt telemetry sinks and serves the HTTP API and the
// browser capture page until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/keyrhythm-core/internal/api"
	"github.com/nerrad567/keyrhythm-core/internal/audit"
	"github.com/nerrad567/keyrhythm-core/internal/auth"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/config"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/database"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/logging"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/nats"
	"github.com/nerrad567/keyrhythm-core/internal/telemetry"
	"github.com/nerrad567/keyrhythm-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting KeyRhythm Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close() //nolint:errcheck // closing on exit
	log = log.With("instance", cfg.Service.InstanceID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, cfg.Database)
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	auditRepo := audit.NewSQLiteRepository(db.DB)
	sinks := []telemetry.Sink{telemetry.AuditSink{Repo: auditRepo}}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
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
		sinks = append(sinks, telemetry.MQTTSink{
			Client:   mqttClient,
			Topic:    mqttClient.Topics().Attempt,
			Instance: cfg.Service.InstanceID,
		})
	} else {
		log.Info("MQTT disabled")
	}

	var natsPub *nats.Publisher
	if cfg.NATS.Enabled {
		natsPub, err = nats.Connect(cfg.NATS)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer func() {
			log.Info("draining NATS connection")
			if closeErr := natsPub.Close(); closeErr != nil {
				log.Error("error closing NATS", "error", closeErr)
			}
		}()
		log.Info("NATS connected", "url", cfg.NATS.URL, "subject", natsPub.Subject())
		sinks = append(sinks, telemetry.NATSSink{Publisher: natsPub, Instance: cfg.Service.InstanceID})
	} else {
		log.Info("NATS disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, telemetry.InfluxSink{Writer: influxClient})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Sinks close after the dispatcher drains.
	dispatcher := telemetry.NewDispatcher(cfg.Telemetry.BufferSize, log, sinks...)
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(dispatchCtx)
	}()
	defer func() {
		stopDispatch()
		<-dispatchDone
		log.Info("attempt telemetry drained", "sinks", dispatcher.Sinks())
	}()

	service := auth.NewService(auth.NewCredentialRepository(db.DB), log, auth.WithRecorder(dispatcher))

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		Capture:   cfg.Capture,
		Security:  cfg.Security,
		Logger:    log,
		Service:   service,
		AuditRepo: auditRepo,
		Telemetry: dispatcher,
		DB:        db,
		MQTT:      mqttClient,
		NATS:      natsPub,
		InfluxDB:  influxClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// healthCheck verifies the components startup cannot continue without.
// Telemetry backends are reported by /api/v1/health instead.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
