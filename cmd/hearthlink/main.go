// HearthLink - Cloud Security Camera Bridge
//
// This is the main entry point for the HearthLink daemon. HearthLink
// mirrors a vendor's cloud-managed camera and hub estate onto local
// infrastructure:
//   - Authenticates against the vendor cloud (2FA trusted-device flow)
//   - Polls the device directory and event history on fixed intervals
//   - Republishes state and events on a local MQTT broker
//   - Archives events and poll statistics to InfluxDB
//   - Persists session, directory, and cursor state in SQLite
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/quennel-io/hearthlink/internal/account"
	"github.com/quennel-io/hearthlink/internal/bridge"
	"github.com/quennel-io/hearthlink/internal/cloud"
	"github.com/quennel-io/hearthlink/internal/directory"
	"github.com/quennel-io/hearthlink/internal/history"
	"github.com/quennel-io/hearthlink/internal/infrastructure/config"
	"github.com/quennel-io/hearthlink/internal/infrastructure/database"
	"github.com/quennel-io/hearthlink/internal/infrastructure/influxdb"
	"github.com/quennel-io/hearthlink/internal/infrastructure/logging"
	"github.com/quennel-io/hearthlink/internal/infrastructure/mqtt"
	"github.com/quennel-io/hearthlink/internal/store"
	"github.com/quennel-io/hearthlink/migrations"
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

// verifyCodeEnv carries the 2FA email code into a restart. The cloud
// emails a code on the first login from an untrusted device; the
// operator sets this variable and restarts to complete elevation.
const verifyCodeEnv = "HEARTHLINK_VERIFY_CODE"

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
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting HearthLink",
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
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Persistence for session, directory mirror, and event cursor
	sessions := store.NewSessionStore(db.DB)
	snapshots := store.NewDirectoryStore(db.DB)
	cursor := store.NewCursorStore(db.DB)

	// Establish the cloud session
	session, err := startSession(ctx, cfg, sessions, log)
	if err != nil {
		return fmt.Errorf("starting cloud session: %w", err)
	}

	// Request pipeline shared by all cloud services
	dispatcher := cloud.NewDispatcher(session, &http.Client{})
	dispatcher.SetLogger(log)

	// Directory mirror, seeded from the last persisted snapshot so
	// device metadata is available before the first refresh completes
	dir := directory.New(dispatcher)
	dir.SetLogger(log)
	if devices, hubs, loadErr := snapshots.Load(ctx); loadErr != nil {
		log.Warn("loading directory snapshot", "error", loadErr)
	} else if len(devices) > 0 || len(hubs) > 0 {
		dir.Seed(devices, hubs)
		log.Info("directory seeded from snapshot",
			"devices", len(devices),
			"hubs", len(hubs),
		)
	}

	hist := history.New(dispatcher)

	// Account service: surface pending shared-device invites at startup
	accounts := account.New(dispatcher)
	if invites, invErr := accounts.ListInvites(ctx); invErr != nil {
		log.Warn("listing invites", "error", invErr)
	} else if len(invites) > 0 {
		log.Info("pending device invites", "count", len(invites))
	}

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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
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

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// A nil *mqtt.Client must stay a nil interface inside the bridge,
	// so the assignment only happens when the client exists.
	var broker bridge.Broker
	if mqttClient != nil {
		broker = mqttClient
	}
	var archive bridge.Archive
	if influxClient != nil {
		archive = influxClient
	}

	b := bridge.New(cfg.Bridge, dir, hist, session,
		broker, archive,
		sessions, snapshots, cursor,
		byte(cfg.MQTT.QoS), log)

	log.Info("initialisation complete, starting poll loop")

	// Blocks until the shutdown signal cancels ctx
	if err := b.Run(ctx); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. InfluxDB (if enabled)
	// 2. MQTT (if enabled)
	// 3. Database

	log.Info("HearthLink stopped")
	return nil
}

// startSession builds the session manager, restores any persisted
// session, and authenticates when the restored token is unusable.
//
// The renew outcome is followed exactly once: the cloud redirects a
// login to the account's home domain and expects a single retry, and a
// second redirect indicates a misconfigured endpoint rather than a
// migration. A verification-required outcome means the cloud has
// emailed a code; the operator supplies it via HEARTHLINK_VERIFY_CODE
// and restarts.
//
// Parameters:
//   - ctx: Context for the login calls
//   - cfg: Application configuration
//   - sessions: Persisted session snapshots
//   - log: Logger instance
//
// Returns:
//   - *cloud.SessionManager: Authenticated session manager
//   - error: If authentication cannot complete
func startSession(ctx context.Context, cfg *config.Config, sessions *store.SessionStore, log *logging.Logger) (*cloud.SessionManager, error) {
	creds := cloud.Credentials{
		Username: cfg.Cloud.Username,
		Password: cfg.Cloud.Password,
	}
	identity := cloud.Identity{
		Country:  cfg.Cloud.Identity.Country,
		Language: cfg.Cloud.Identity.Language,
		Timezone: cfg.Cloud.Identity.Timezone,
		OpenUDID: cfg.Cloud.Identity.OpenUDID,
		Serial:   cfg.Cloud.Identity.Serial,
	}

	session, err := cloud.NewSessionManager(creds, identity, cfg.Cloud.APIBase, nil)
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}
	session.SetLogger(log)
	session.SetOnConnect(func() {
		log.Info("cloud session established")
	})
	session.SetOnClose(func() {
		log.Warn("cloud session dropped")
	})

	if snap, ok, loadErr := sessions.Load(ctx); loadErr != nil {
		log.Warn("loading session snapshot", "error", loadErr)
	} else if ok {
		session.Restore(snap)
		log.Info("session restored", "state", session.State().String())
	}

	if session.State() == cloud.StateAuthenticated || session.State() == cloud.StateTrusted {
		return session, nil
	}

	if err := authenticate(ctx, session, log); err != nil {
		return nil, err
	}

	// Persist immediately so a crash before the first directory
	// refresh does not force a fresh login
	if saveErr := sessions.Save(ctx, session.Snapshot()); saveErr != nil {
		log.Warn("saving session snapshot", "error", saveErr)
	}

	return session, nil
}

// authenticate performs the login flow, following a domain renew once
// and completing 2FA when a verification code is available.
func authenticate(ctx context.Context, session *cloud.SessionManager, log *logging.Logger) error {
	renewed := false
	for {
		result, err := session.Authenticate(ctx)
		if err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}

		switch result {
		case cloud.AuthOK:
			return nil

		case cloud.AuthRenew:
			if renewed {
				return fmt.Errorf("login redirected twice, check cloud.api_base (now %q)", session.APIBase())
			}
			renewed = true
			log.Info("login redirected to home domain", "api_base", session.APIBase())

		case cloud.AuthSendVerifyCode:
			code := os.Getenv(verifyCodeEnv)
			if code == "" {
				return fmt.Errorf("account requires verification: a code has been emailed, set %s and restart", verifyCodeEnv)
			}
			if err := session.ConfirmTwoFactor(ctx, code); err != nil {
				return fmt.Errorf("confirming verification code: %w", err)
			}
			log.Info("two-factor verification complete, device trusted")
			return nil

		default:
			return fmt.Errorf("unexpected login outcome %v", result)
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses HEARTHLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HEARTHLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
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
