// Light bridge
//
// Bridges MQTT light commands to a lighting controller that speaks a fixed
// hex frame protocol over TCP, and publishes the controller's status frames
// back to MQTT as retained state.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/lightbridge/migrations"

	"github.com/nerrad567/lightbridge/internal/api"
	"github.com/nerrad567/lightbridge/internal/bridges/lighting"
	"github.com/nerrad567/lightbridge/internal/infrastructure/config"
	"github.com/nerrad567/lightbridge/internal/infrastructure/database"
	"github.com/nerrad567/lightbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/lightbridge/internal/infrastructure/logging"
	"github.com/nerrad567/lightbridge/internal/infrastructure/metrics"
	"github.com/nerrad567/lightbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/lightbridge/internal/lightstate"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// seedTimeout bounds the startup read of last-known states.
const seedTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting light bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close() //nolint:errcheck
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database and state history
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
	log.Info("database connected", "path", db.Path())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	stateRepo := lightstate.NewSQLiteRepository(db.DB)
	recorders := lighting.Recorders{stateRepo}
	checks := map[string]api.HealthChecker{"database": db}

	// InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, influxRecorder{client: influxClient})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Metrics
	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	// Controller links
	link := lighting.NewCommandLink(lighting.LinkConfig{
		Address:        cfg.ControllerAddress(),
		ConnectTimeout: cfg.GetConnectTimeout(),
		RetryDelay:     cfg.GetRetryDelay(),
		MaxRetries:     cfg.Controller.MaxRetries,
		WriteTimeout:   cfg.GetControllerWriteTimeout(),
	})
	link.SetLogger(log)
	link.SetMetrics(m)
	m.WatchPending(func() int { return len(link.Pending()) })

	var listener *lighting.StatusListener
	if cfg.Listener.Enabled {
		listener = lighting.NewStatusListener(lighting.ListenerConfig{
			Address:        cfg.ListenerAddress(),
			ConnectTimeout: cfg.GetConnectTimeout(),
			ReadTimeout:    cfg.GetListenerReadTimeout(),
			RetryBackoff:   cfg.GetListenerRetryBackoff(),
			BufferSize:     cfg.Listener.BufferSize,
			LogEvery:       cfg.Listener.LogEvery,
		})
		listener.SetLogger(log)
		listener.SetMetrics(m)
	} else {
		log.Info("status listener disabled")
	}

	heartbeat := lighting.NewHeartbeat(link, cfg.GetHeartbeatInterval())
	heartbeat.SetLogger(log)

	// MQTT and bridge
	topics := lighting.Topics{
		Prefix:          cfg.MQTT.Topics.Prefix,
		DiscoveryPrefix: cfg.MQTT.Topics.DiscoveryPrefix,
	}
	mqttClient := mqtt.New(cfg.MQTT, topics.Status())
	mqttClient.SetLogger(log)
	checks["mqtt"] = mqttClient
	log.Info("MQTT last will configured", "topic", mqttClient.StatusTopic())

	bridge, err := lighting.NewBridge(buildBridgeOptions(cfg, bridgeDeps{
		bus:       &mqttBridgeAdapter{client: mqttClient},
		link:      link,
		listener:  listener,
		heartbeat: heartbeat,
		recorder:  recorders,
		logger:    log,
		metrics:   m,
		topics:    topics,
	}))
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	seedCtx, cancelSeed := context.WithTimeout(ctx, seedTimeout)
	lastKnown, err := stateRepo.LastKnown(seedCtx)
	cancelSeed()
	if err != nil {
		log.Warn("could not load last known light states", "error", err)
	} else {
		bridge.SeedState(lastKnown)
	}

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
		bridge.OnBusConnect()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		go bridge.OnBusDisconnect(err)
	})

	if connErr := mqttClient.Connect(); connErr != nil {
		// Not fatal: the bridge's bounded reconnect loop takes over.
		log.Error("initial MQTT connection failed", "error", connErr)
		go bridge.OnBusDisconnect(connErr)
	} else {
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	bridge.Start(ctx)

	// HTTP API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := startAPI(ctx, cfg, api.Deps{
			Logger:  log,
			Lights:  bridge,
			Queue:   link,
			History: stateRepo,
			Checks:  checks,
			Metrics: metrics.Handler(registry),
			Version: version,
		}, listener)
		if apiErr != nil {
			return apiErr
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("HTTP API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Bridge (offline marker, MQTT, command link)
	// 3. InfluxDB (if enabled)
	// 4. Database

	log.Info("light bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LIGHTBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LIGHTBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

type bridgeDeps struct {
	bus       lighting.BusClient
	link      lighting.Link
	listener  *lighting.StatusListener
	heartbeat lighting.Runner
	recorder  lighting.StateRecorder
	logger    lighting.Logger
	metrics   lighting.Metrics
	topics    lighting.Topics
}

// buildBridgeOptions maps configuration onto bridge options.
func buildBridgeOptions(cfg *config.Config, deps bridgeDeps) lighting.BridgeOptions {
	opts := lighting.BridgeOptions{
		Bus:       deps.bus,
		Link:      deps.link,
		Heartbeat: deps.heartbeat,
		Recorder:  deps.recorder,
		Logger:    deps.logger,
		Metrics:   deps.metrics,
		Topics:    deps.topics,
		Discovery: lighting.DiscoveryConfig{
			Enabled:      cfg.MQTT.Discovery.Enabled,
			NodeID:       cfg.MQTT.Discovery.NodeID,
			DeviceID:     cfg.MQTT.Discovery.DeviceID,
			DeviceName:   cfg.MQTT.Discovery.DeviceName,
			Manufacturer: cfg.MQTT.Discovery.Manufacturer,
			Model:        cfg.MQTT.Discovery.Model,
		},
		QoS:               byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		ReconnectDelay:    cfg.GetMQTTReconnectDelay(),
		ReconnectAttempts: cfg.MQTT.Reconnect.MaxAttempts,
	}
	// A nil *StatusListener must not become a non-nil interface.
	if deps.listener != nil {
		opts.Listener = deps.listener
	}
	return opts
}

// startAPI creates and starts the HTTP API server.
func startAPI(ctx context.Context, cfg *config.Config, deps api.Deps, listener *lighting.StatusListener) (*api.Server, error) {
	deps.Config = cfg.API
	if listener != nil {
		deps.StatusLink = listener
	}

	srv, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return srv, nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// BusClient interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements lighting.BusClient. Retained state and liveness go out
// at the client's configured QoS, which is the same value the bridge uses.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if retained {
		return a.client.PublishRetained(topic, payload)
	}
	return a.client.Publish(topic, payload, qos, false)
}

// Subscribe implements lighting.BusClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements lighting.BusClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Reconnect implements lighting.BusClient.
func (a *mqttBridgeAdapter) Reconnect() error {
	return a.client.Reconnect()
}

// Disconnect implements lighting.BusClient. The bridge owns the MQTT
// lifecycle, so this is the only place the client is disconnected.
func (a *mqttBridgeAdapter) Disconnect(quiesce uint) {
	a.client.Disconnect(quiesce)
}

// influxRecorder writes each published state as an InfluxDB point.
// Writes are batched and non-blocking; failures surface via SetOnError.
type influxRecorder struct {
	client *influxdb.Client
}

// RecordState implements lighting.StateRecorder.
func (r influxRecorder) RecordState(_ context.Context, device lighting.Device, action lighting.Action, source string) error {
	r.client.WriteLightState(string(device), string(action), source)
	return nil
}
