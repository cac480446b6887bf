// TV Bridge - Samsung TV control adapter
//
// This is the main entry point for the TV Bridge service. TV Bridge
// manages one local control session per television and exposes them
// over MQTT and a REST API:
//   - Power-state reconciliation (socket liveness + REST probe + cloud)
//   - Wake-on-LAN power-on sequences with guard windows
//   - Key dispatch, app launch, and input switching
//
// For architecture details, see the package documentation in
// internal/tv and internal/bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/slatehome/tvbridge/migrations"

	"github.com/slatehome/tvbridge/internal/api"
	"github.com/slatehome/tvbridge/internal/bridge"
	"github.com/slatehome/tvbridge/internal/cloud"
	"github.com/slatehome/tvbridge/internal/device"
	"github.com/slatehome/tvbridge/internal/infrastructure/config"
	"github.com/slatehome/tvbridge/internal/infrastructure/database"
	"github.com/slatehome/tvbridge/internal/infrastructure/influxdb"
	"github.com/slatehome/tvbridge/internal/infrastructure/logging"
	"github.com/slatehome/tvbridge/internal/infrastructure/mqtt"
	"github.com/slatehome/tvbridge/internal/samsung"
	"github.com/slatehome/tvbridge/internal/tv"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting TV Bridge",
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

	// Initialise device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log)

	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}

	// Seed configured devices that don't exist yet. Existing records
	// are never overwritten; pairing tokens live in the database.
	if seedErr := seedDevices(ctx, registry, cfg.Devices, log); seedErr != nil {
		return fmt.Errorf("seeding devices: %w", seedErr)
	}
	log.Info("device registry initialised", "devices", registry.Count())

	historyRepo := device.NewSQLiteStateHistoryRepository(db.DB)

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build one control session per registered device
	sessions, err := buildSessions(ctx, cfg, registry, log)
	if err != nil {
		return fmt.Errorf("building sessions: %w", err)
	}
	defer func() {
		log.Info("closing device sessions")
		sessions.CloseAll()
	}()
	log.Info("device sessions created", "count", sessions.Count())

	// Start MQTT bridge (if MQTT is enabled)
	if mqttClient != nil {
		bridgeOpts := bridge.Options{
			MQTT:     mqttClient,
			Sessions: sessions,
			History:  historyRepo,
			Logger:   log,
			QoS:      byte(cfg.MQTT.QoS),
		}
		if influxClient != nil {
			bridgeOpts.Metrics = influxClient
		}
		mqttBridge, bridgeErr := bridge.New(bridgeOpts)
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		if startErr := mqttBridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			mqttBridge.Stop()
		}()
		log.Info("MQTT bridge started")
	}

	// Start REST API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Registry: registry,
			Sessions: sessions,
			History:  historyRepo,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	// Kick off initial connections. A refused handshake means the TV
	// is off; the per-session poll loop takes over from there.
	for _, s := range sessions.List() {
		go func(s *tv.Session) {
			if connectErr := s.Connect(ctx); connectErr != nil {
				log.Warn("initial connect failed",
					"device", s.DeviceID(), "error", connectErr)
			}
		}(s)
	}

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. MQTT bridge
	// 3. Device sessions
	// 4. InfluxDB (if enabled)
	// 5. MQTT (if enabled)
	// 6. Database

	log.Info("TV Bridge stopped")
	return nil
}

// seedDevices ensures every configured device exists in the store.
// Records that already exist are left untouched.
func seedDevices(ctx context.Context, registry *device.Registry, seeds []config.DeviceSeed, log *logging.Logger) error {
	for _, seed := range seeds {
		_, err := registry.Get(ctx, seed.Identifier)
		if err == nil {
			continue
		}
		if !errors.Is(err, device.ErrNotFound) {
			return fmt.Errorf("checking device %q: %w", seed.Identifier, err)
		}

		cfg := &device.Config{
			Identifier:        seed.Identifier,
			Name:              seed.Name,
			Address:           seed.Address,
			MACAddress:        seed.MACAddress,
			AuthToken:         seed.AuthToken,
			ReportsPowerState: seed.ReportsPowerState,
			SupportsArtMode:   seed.SupportsArtMode,
			SupportsCloudWake: seed.SupportsCloudWake,
			CloudAccessToken:  seed.CloudAccessToken,
			CloudRefreshToken: seed.CloudRefreshToken,
		}
		if err := registry.Create(ctx, cfg); err != nil {
			return fmt.Errorf("creating device %q: %w", seed.Identifier, err)
		}
		log.Info("device seeded from config", "identifier", seed.Identifier)
	}
	return nil
}

// buildSessions creates a control session for every registered device.
func buildSessions(ctx context.Context, cfg *config.Config, registry *device.Registry, log *logging.Logger) (*tv.SessionRegistry, error) {
	sessions := tv.NewSessionRegistry()

	devices, err := registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	dialer := &samsung.Dialer{
		Name:   cfg.TV.RemoteName,
		Logger: log,
	}
	prober := &samsung.Prober{}

	for i := range devices {
		dev := devices[i].Copy()

		opts := tv.Options{
			Dialer:       dialer,
			Prober:       prober,
			Store:        registry,
			Logger:       log.With("device", dev.Identifier),
			ProbeTimeout: cfg.GetProbeTimeout(),
			PollInterval: cfg.GetPollInterval(),
			CloudTimeout: cfg.GetCloudTimeout(),
		}

		// Cloud fallback is per-device: only linked sets get a client.
		if cfg.Cloud.Enabled && dev.CloudRefreshToken != "" {
			opts.Cloud = cloud.NewClient(dev, cloud.Options{
				BaseURL:      cfg.Cloud.BaseURL,
				TokenURL:     cfg.Cloud.TokenURL,
				ClientID:     cfg.Cloud.ClientID,
				ClientSecret: cfg.Cloud.ClientSecret,
				HTTPClient:   &http.Client{Timeout: cfg.GetCloudTimeout()},
				Store:        registry,
				Logger:       log.With("device", dev.Identifier),
			})
		}

		session, err := tv.NewSession(dev, opts)
		if err != nil {
			return nil, fmt.Errorf("creating session for %q: %w", dev.Identifier, err)
		}
		if err := sessions.Add(session); err != nil {
			sessions.CloseAll()
			return nil, fmt.Errorf("registering session for %q: %w", dev.Identifier, err)
		}
	}

	return sessions, nil
}

// getConfigPath returns the configuration file path.
// Uses TVBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TVBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
// MQTT and InfluxDB are skipped when disabled.
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
