package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BTreeMap/CareLine/internal/api"
	"github.com/BTreeMap/CareLine/internal/dataset"
	"github.com/BTreeMap/CareLine/internal/flow"
	"github.com/BTreeMap/CareLine/internal/genai"
	"github.com/BTreeMap/CareLine/internal/knowledge"
	"github.com/BTreeMap/CareLine/internal/nlu"
	"github.com/BTreeMap/CareLine/internal/records"
	"github.com/BTreeMap/CareLine/internal/respond"
	"github.com/BTreeMap/CareLine/internal/scheduling"
	"github.com/BTreeMap/CareLine/internal/store"
	"github.com/BTreeMap/CareLine/internal/voice"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CareLine state data
	DefaultStateDir = "/var/lib/careline"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "careline.db"
	// DefaultDataDir is the default directory holding the clinic datasets
	DefaultDataDir = "data"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping CareLine with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"data_dir", *flags.dataDir,
		"dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr)

	if err := run(flags); err != nil {
		slog.Error("CareLine failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CareLine exited successfully")
}

func run(flags Flags) error {
	loader := dataset.NewLoader(*flags.dataDir)

	recordsStore, err := records.NewStore(loader)
	if err != nil {
		return err
	}
	schedulingStore, err := scheduling.NewStore(loader)
	if err != nil {
		return err
	}
	knowledgeBase, err := knowledge.NewBase(loader)
	if err != nil {
		return err
	}

	// Without an API key the classifier, responder, and judge all run on
	// their deterministic fallbacks.
	var client genai.ClientInterface
	if *flags.openaiKey != "" {
		c, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		client = c
	} else {
		slog.Warn("No OpenAI API key configured, using deterministic fallbacks")
	}

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	cfg := flow.DefaultConfig()
	cfg.EscalationPhone = *flags.escalationPhone
	cfg.DemoMode = *flags.demoMode

	responder := respond.NewGenerator(client)
	orchestrator := flow.NewOrchestrator(cfg, flow.Deps{
		Classifier: nlu.NewClassifier(client),
		Records:    recordsStore,
		Scheduling: schedulingStore,
		Knowledge:  knowledgeBase,
		Responder:  responder,
		GenAI:      client,
		Store:      st,
	})

	voiceClient := voice.NewClient(
		voice.WithAuthToken(*flags.twilioToken),
		voice.WithBaseURL(*flags.voiceBaseURL),
	)

	server := api.NewServer(*flags.apiAddr, api.Deps{
		Orchestrator: orchestrator,
		Store:        st,
		Voice:        voiceClient,
		GenAI:        client,
		Responder:    responder,
	})
	return server.Run()
}

// buildStore selects the persistence backend from the DSN.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	DataDir         string
	OpenAIKey       string
	APIAddr         string
	TwilioToken     string
	VoiceBaseURL    string
	EscalationPhone string
	DemoMode        bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir        *string
	dataDir         *string
	dbDSN           *string
	openaiKey       *string
	apiAddr         *string
	twilioToken     *string
	voiceBaseURL    *string
	escalationPhone *string
	demoMode        *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("CARELINE_STATE_DIR"),
		DataDir:         os.Getenv("CARELINE_DATA_DIR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		TwilioToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		VoiceBaseURL:    os.Getenv("VOICE_BASE_URL"),
		EscalationPhone: os.Getenv("ESCALATION_PHONE"),
	}
	// Demo mode defaults on; set DEMO_MODE=false for production phrasing.
	config.DemoMode = strings.ToLower(os.Getenv("DEMO_MODE")) != "false"

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CARELINE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DataDir == "" {
		config.DataDir = DefaultDataDir
		slog.Debug("No CARELINE_DATA_DIR set, using default", "default_data_dir", config.DataDir)
	}
	if config.EscalationPhone == "" {
		config.EscalationPhone = flow.DefaultEscalationPhone
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CARELINE_STATE_DIR", config.StateDir,
		"CARELINE_DATA_DIR", config.DataDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"TWILIO_AUTH_TOKEN_SET", config.TwilioToken != "",
		"DEMO_MODE", config.DemoMode)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for CareLine data (overrides $CARELINE_STATE_DIR)"),
		dataDir:         flag.String("data-dir", config.DataDir, "directory holding the clinic datasets (overrides $CARELINE_DATA_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN for the persistence store (overrides $DATABASE_URL)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		twilioToken:     flag.String("twilio-auth-token", config.TwilioToken, "Twilio auth token for webhook validation (overrides $TWILIO_AUTH_TOKEN)"),
		voiceBaseURL:    flag.String("voice-base-url", config.VoiceBaseURL, "externally visible base URL for Twilio webhooks (overrides $VOICE_BASE_URL)"),
		escalationPhone: flag.String("escalation-phone", config.EscalationPhone, "phone number offered when recovery is exhausted (overrides $ESCALATION_PHONE)"),
		demoMode:        flag.Bool("demo-mode", config.DemoMode, "use the verbose demo prompts (overrides $DEMO_MODE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dataDir", *flags.dataDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"demoMode", *flags.demoMode)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" && *flags.dbDSN != "" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}
