package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/gadgetcare/repairbot/internal/api"
	"github.com/gadgetcare/repairbot/internal/assistant"
	"github.com/gadgetcare/repairbot/internal/catalog"
	"github.com/gadgetcare/repairbot/internal/cloudapi"
	"github.com/gadgetcare/repairbot/internal/flow"
	"github.com/gadgetcare/repairbot/internal/jobsheet"
	"github.com/gadgetcare/repairbot/internal/knowledge"
	"github.com/gadgetcare/repairbot/internal/messaging"
	"github.com/gadgetcare/repairbot/internal/router"
	"github.com/gadgetcare/repairbot/internal/session"
	"github.com/gadgetcare/repairbot/internal/store"
	"github.com/gadgetcare/repairbot/internal/twiliowhatsapp"
	"github.com/gadgetcare/repairbot/internal/util"
	"github.com/gadgetcare/repairbot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for repairbot state data.
	DefaultStateDir = "/var/lib/repairbot"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "repairbot.db"
	// DefaultWhatsmeowDBFileName is the whatsmeow session database filename.
	DefaultWhatsmeowDBFileName = "whatsmeow.db"
	// DefaultCatalogFileName is the repair price catalog filename.
	DefaultCatalogFileName = "catalog.json"
)

func main() {
	initializeLogger()
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping repairbot", "transport", *flags.transport, "state_dir", *flags.stateDir)
	if err := run(config, flags); err != nil {
		slog.Error("Repairbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Repairbot exited successfully")
}

// Config holds environment configuration.
type Config struct {
	Transport     string
	StateDir      string
	DBDSN         string
	CatalogPath   string
	KBPath        string
	OpenAIKey     string
	APIAddr       string
	AdminToken    string
	JobSheetDir   string
	WhatsAppToken string
	PhoneNumberID string
	VerifyToken   string
	AppSecret     string
	TwilioFrom    string
	TwilioMedia   string
}

// Flags holds command line flag values.
type Flags struct {
	transport   *string
	stateDir    *string
	dbDSN       *string
	catalogPath *string
	kbPath      *string
	openaiKey   *string
	apiAddr     *string
	qrOutput    *string
	numeric     *bool
}

// initializeLogger sets up structured logging. REPAIRBOT_DEBUG raises the
// level to debug.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("REPAIRBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and
// the optional .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Transport:     util.EnvOrDefault("TRANSPORT", "whatsmeow"),
		StateDir:      os.Getenv("REPAIRBOT_STATE_DIR"),
		DBDSN:         os.Getenv("DATABASE_URL"),
		CatalogPath:   os.Getenv("CATALOG_PATH"),
		KBPath:        os.Getenv("KB_PATH"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		APIAddr:       util.EnvOrDefault("API_ADDR", ":8080"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		JobSheetDir:   os.Getenv("JOBSHEET_DIR"),
		WhatsAppToken: os.Getenv("WHATSAPP_TOKEN"),
		PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		VerifyToken:   os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		AppSecret:     os.Getenv("WHATSAPP_APP_SECRET"),
		TwilioFrom:    os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioMedia:   os.Getenv("TWILIO_MEDIA_BASE"),
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No REPAIRBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DBDSN == "" {
		config.DBDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DBDSN)
	}
	if config.CatalogPath == "" {
		config.CatalogPath = filepath.Join(config.StateDir, DefaultCatalogFileName)
	}
	slog.Debug("environment variables loaded",
		"TRANSPORT", config.Transport,
		"REPAIRBOT_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DBDSN != "",
		"CATALOG_PATH", config.CatalogPath,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"ADMIN_TOKEN_SET", config.AdminToken != "")
	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		transport:   flag.String("transport", config.Transport, "messaging transport: whatsmeow, cloudapi or twilio (overrides $TRANSPORT)"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for repairbot data (overrides $REPAIRBOT_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DBDSN, "database DSN for the appointment store (overrides $DATABASE_URL)"),
		catalogPath: flag.String("catalog", config.CatalogPath, "path to the repair price catalog JSON (overrides $CATALOG_PATH)"),
		kbPath:      flag.String("kb", config.KBPath, "path to a troubleshooting knowledge base TOML (overrides $KB_PATH)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "admin API server address (overrides $API_ADDR)"),
		qrOutput:    flag.String("qr-output", "", "path to write login QR code"),
		numeric:     flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
	}
	flag.Parse()
	return flags
}

// ensureDirectoriesExist creates directories backing file-based storage.
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		if err := os.MkdirAll(filepath.Dir(*flags.dbDSN), 0o755); err != nil {
			return err
		}
	}
	return os.MkdirAll(*flags.stateDir, 0o755)
}

// run wires every module together and serves until a shutdown signal.
func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Appointment and message store.
	var storeOpts []store.Option
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	} else {
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	st, err := store.Open(storeOpts...)
	if err != nil {
		return err
	}
	defer st.Close()

	// Repair price catalog. A missing file is tolerated: flows reload it on
	// entry, so the shop can drop the catalog in later without a restart.
	cat, err := catalog.Load(*flags.catalogPath)
	if err != nil {
		slog.Warn("Catalog unavailable at startup, starting empty", "path", *flags.catalogPath, "error", err)
		cat = catalog.NewAtPath(*flags.catalogPath)
	}

	// Messaging transport.
	gateway, webhook, err := buildTransport(config, flags)
	if err != nil {
		return err
	}
	recording := messaging.NewRecordingGateway(gateway, st)

	// Flow engine collaborators.
	sessions := session.NewMemoryRepository()
	var engineOpts []flow.Option
	var routerOpts []router.Option
	if *flags.openaiKey != "" {
		assist, err := assistant.NewClient(assistant.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, flow.WithAssistant(assist))
		routerOpts = append(routerOpts, router.WithAssistant(assist))
	} else {
		slog.Warn("No OpenAI API key configured; assistant features disabled")
	}
	if *flags.kbPath != "" {
		kb, err := knowledge.LoadFile(*flags.kbPath)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, flow.WithKnowledgeBase(kb))
	}
	renderer, err := jobsheet.NewRenderer(jobsheet.Opts{Dir: config.JobSheetDir})
	if err != nil {
		return err
	}
	engineOpts = append(engineOpts, flow.WithRenderer(renderer))

	engine := flow.NewEngine(sessions, cat, recording, st, engineOpts...)
	rt := router.New(sessions, engine, cat, recording, st, routerOpts...)

	// Inbound pump and admin API.
	if err := gateway.Start(ctx); err != nil {
		return err
	}
	defer gateway.Stop()
	dispatcher := messaging.NewDispatcher(recording, rt, st)
	dispatcher.Start(ctx)

	apiOpts := []api.Option{api.WithAddr(*flags.apiAddr)}
	if config.AdminToken != "" {
		apiOpts = append(apiOpts, api.WithAdminToken(config.AdminToken))
	}
	if webhook != nil {
		apiOpts = append(apiOpts, api.WithWebhook(webhook))
	}
	server := api.NewServer(st, recording, apiOpts...)
	return server.Run(ctx)
}

// buildTransport constructs the configured messaging gateway and, for
// webhook-driven transports, the handler to mount on the admin server.
func buildTransport(config Config, flags Flags) (messaging.Gateway, http.Handler, error) {
	switch *flags.transport {
	case "cloudapi":
		gw, err := cloudapi.NewGateway(
			cloudapi.WithAccessToken(config.WhatsAppToken),
			cloudapi.WithPhoneNumberID(config.PhoneNumberID),
			cloudapi.WithVerifyToken(config.VerifyToken),
			cloudapi.WithAppSecret(config.AppSecret),
		)
		if err != nil {
			return nil, nil, err
		}
		return gw, gw.WebhookHandler(), nil
	case "twilio":
		gw, err := twiliowhatsapp.NewGateway(
			twiliowhatsapp.WithFromWhats(config.TwilioFrom),
			twiliowhatsapp.WithMediaBase(config.TwilioMedia),
		)
		if err != nil {
			return nil, nil, err
		}
		return gw, gw.WebhookHandler(), nil
	default:
		waOpts := []whatsapp.Option{
			whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, DefaultWhatsmeowDBFileName)),
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		gw, err := whatsapp.NewGateway(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return gw, nil, nil
	}
}
