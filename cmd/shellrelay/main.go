package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"shellrelay/internal/config"
	"shellrelay/internal/console"
	"shellrelay/internal/convstate"
	"shellrelay/internal/credentials"
	"shellrelay/internal/executor"
	"shellrelay/internal/gateway"
	"shellrelay/internal/gemini"
	"shellrelay/internal/llm"
	"shellrelay/internal/llm/mockclient"
	"shellrelay/internal/logging"
	"shellrelay/internal/openrouter"
	"shellrelay/internal/osprofile"
	"shellrelay/internal/planner"
	"shellrelay/internal/relay"
	"shellrelay/internal/runner"
	"shellrelay/internal/sandbox"
)

// Version is set via -ldflags during build
var Version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "Path to config.yaml (default: ~/.shellrelay/config.yaml)")
		sandboxPath = flag.String("sandbox", "", "Override the sandbox root directory")
		addrFlag    = flag.String("addr", "", "Override the HTTP listen address")
		consoleFlag = flag.Bool("console", false, "Run the interactive console instead of the HTTP gateway")
		setupFlag   = flag.Bool("setup", false, "Manage provider API keys and exit")
		versionFlag = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Printf("shellrelay version %s\n", Version)
		return
	}

	credMgr, err := credentials.NewManager()
	if err != nil {
		log.Fatalf("Failed to initialize credential manager: %v", err)
	}
	if *setupFlag {
		if err := credentials.SetupMenu(credMgr); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	var cfg config.Config
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadUserConfig()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if root := strings.TrimSpace(*sandboxPath); root != "" {
		cfg.SandboxRoot = root
	}
	if addr := strings.TrimSpace(*addrFlag); addr != "" {
		cfg.ListenAddr = addr
	}

	// Set up logging with rotation
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		log.Fatalf("Failed to prepare log directory: %v", err)
	}
	logSink := &lumberjack.Logger{
		Filename:   cfg.LogPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	defer logSink.Close()
	logger := log.New(logSink, "shellrelay ", log.LstdFlags|log.Lmicroseconds)
	if !*consoleFlag {
		logging.SetOutput(logSink)
	}

	profile := osprofile.Resolve()
	logger.Printf("host profile: %s (%s)", profile.DisplayName(), profile.ShellPath)

	// Set up the sandbox
	if err := os.MkdirAll(cfg.SandboxRoot, 0o755); err != nil {
		log.Fatalf("Failed to create sandbox root: %v", err)
	}
	paths, err := sandbox.New(cfg.SandboxRoot)
	if err != nil {
		log.Fatalf("Failed to resolve sandbox root: %v", err)
	}

	// Durable conversation state with in-memory fallback
	defaultMode := convstate.Mode(cfg.DefaultMode)
	var states convstate.Store
	durable, err := convstate.OpenSQLite(cfg.StateDBPath, defaultMode)
	if err != nil {
		logger.Printf("Warning: state store unavailable, running on defaults: %v", err)
		logging.ErrorLog("state store unavailable, running on defaults: %v", err)
		states = convstate.NewMemory(defaultMode)
	} else {
		states = convstate.NewFallback(durable, convstate.NewMemory(defaultMode))
	}
	defer states.Close()

	// Build the translation client
	client, providerName := buildClient(cfg, credMgr, logger)
	var translator relay.Translator
	if client != nil {
		model := cfg.ModelFor(providerName)
		translator = planner.New(client, model, cfg.Temperature, cfg.MaxPlanSteps, profile)
		logger.Printf("%s provider ready (model %s)", providerName, model)
	} else {
		logger.Println("no provider configured; chat mode disabled")
		if defaultMode == convstate.ModeChat {
			log.Fatal("default_mode is chat but no provider is configured. Set GEMINI_API_KEY or OPENROUTER_API_KEY, or run with -setup.")
		}
	}

	run := runner.New(profile, cfg.OutputLimitBytes)
	exe := executor.New(run, paths, states, cfg.CommandTimeout())
	engine := relay.NewEngine(states, exe, paths, relay.Options{
		Translator:           translator,
		AllowedConversations: cfg.AllowedConversations,
		PlanWallClock:        cfg.PlanTimeout(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Println("received shutdown signal, stopping")
		cancel()
	}()

	if *consoleFlag {
		if err := console.New(engine, "console").Run(ctx); err != nil {
			log.Fatalf("Console failed: %v", err)
		}
		return
	}

	server := gateway.NewServer(engine, gateway.Options{
		Addr:              cfg.ListenAddr,
		InlineReportLimit: cfg.InlineReportLimit,
		AttachmentDir:     cfg.AttachmentDir,
		Logger:            logger,
	})
	fmt.Printf("shellrelay listening on http://%s (sandbox %s)\n", cfg.ListenAddr, paths.Root())
	if err := server.Run(ctx); err != nil {
		log.Fatalf("Gateway failed: %v", err)
	}
}

// buildClient selects the LLM client from config, environment, and the
// credentials file. A nil client means chat mode is unavailable.
func buildClient(cfg config.Config, credMgr *credentials.Manager, logger *log.Logger) (llm.Client, string) {
	if os.Getenv("SHELLRELAY_MOCK_LLM") == "1" {
		logger.Println("SHELLRELAY_MOCK_LLM=1 detected; using mock LLM client")
		return mockclient.New(), "mock"
	}

	creds, err := credMgr.Load()
	if err != nil {
		logger.Printf("Warning: failed to load credentials file: %v", err)
		creds = &credentials.Credentials{}
	}

	apiKey := func(name string) string {
		if key := config.APIKeyFor(name); key != "" {
			return key
		}
		return creds.GetAPIKey(name)
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "mock" {
		return mockclient.New(), "mock"
	}
	if apiKey(provider) == "" && creds.DefaultProvider != "" && creds.DefaultProvider != provider {
		logger.Printf("no key for configured provider %q; falling back to %s from credentials file", provider, creds.DefaultProvider)
		provider = creds.DefaultProvider
	}

	switch provider {
	case "gemini":
		key := apiKey("gemini")
		if key == "" {
			return nil, ""
		}
		return gemini.NewClient(cfg.GeminiBaseURL, key, cfg.RequestTimeout(), logger), "gemini"
	case "openrouter":
		key := apiKey("openrouter")
		if key == "" {
			return nil, ""
		}
		return openrouter.NewClient(cfg.OpenRouterBaseURL, key, cfg.RequestTimeout(), logger), "openrouter"
	default:
		logger.Printf("unknown provider %q", provider)
		return nil, ""
	}
}
