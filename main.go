// Command ghosttab is a Neovim RPC plugin serving incremental AI completions:
// it registers completion strategies, tracks streaming generation sessions
// across keystrokes, and renders suggestions as ghost text.
package main

import (
	"context"
	"os"

	"ghosttab/editor"
	"ghosttab/logger"
	"ghosttab/metrics"
	"ghosttab/model/openai"
	"ghosttab/session"
	"ghosttab/strategies/editpredict"
	"ghosttab/strategies/fim"
	"ghosttab/strategies/rewrite"
	"ghosttab/strategy"
	"ghosttab/types"

	"github.com/neovim/go-client/nvim"
)

const version = "0.1.0"

func main() {
	cfg := loadConfig()

	level := logger.ParseLevel(cfg.logLevel)
	if cfg.logFile != "" {
		f, err := os.OpenFile(cfg.logFile, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
		if err != nil {
			logger.Fatal("failed to open log file %s: %v", cfg.logFile, err)
		}
		defer f.Close()
		logger.Init(f, level)
	} else {
		logger.Init(os.Stderr, level)
	}

	if cfg.stateDir != "" {
		if err := os.MkdirAll(cfg.stateDir, 0755); err != nil {
			logger.Warn("failed to create state dir %s: %v", cfg.stateDir, err)
			cfg.stateDir = ""
		}
	}
	deviceID, err := deviceIdentity(cfg.stateDir)
	if err != nil {
		logger.Warn("device id not persisted: %v", err)
	}

	m := openai.New(openai.Config{
		BaseURL:         cfg.apiURL,
		APIKey:          cfg.apiKey,
		ModelName:       cfg.modelName,
		Temperature:     cfg.temperature,
		MaxTokens:       cfg.maxTokens,
		TimeoutMs:       cfg.requestTimeout,
		FIM:             cfg.fim,
		InputPricePerM:  cfg.inputPricePerM,
		OutputPricePerM: cfg.outputPricePerM,
	})

	scfg := &types.StrategyConfig{
		APIURL:      cfg.apiURL,
		APIKey:      cfg.apiKey,
		ModelName:   cfg.modelName,
		Temperature: cfg.temperature,
		MaxTokens:   cfg.maxTokens,
		TimeoutMs:   cfg.requestTimeout,
		Version:     version,
		PrivacyMode: cfg.privacyMode,
		DeviceID:    deviceID,
	}

	tracker := session.NewTracker()
	catalog := strategy.NewCatalog()

	if err := catalog.Register(fim.New(tracker, scfg)); err != nil {
		logger.Fatal("failed to register fim strategy: %v", err)
	}
	if err := catalog.Register(rewrite.New(tracker, scfg)); err != nil {
		logger.Fatal("failed to register rewrite strategy: %v", err)
	}

	var sender metrics.Sender
	if cfg.editsURL != "" {
		ecfg := *scfg
		ecfg.APIURL = cfg.editsURL
		ecfg.APIKey = cfg.editsKey
		pred := editpredict.New(&ecfg)
		if err := catalog.Register(pred.Strategy()); err != nil {
			logger.Fatal("failed to register editpredict strategy: %v", err)
		}
		sender = pred
	}

	ctx := context.Background()
	if err := catalog.InitializeAll(ctx); err != nil {
		logger.Warn("strategy initialization: %v", err)
	}

	var fallback *types.Strategy
	if cfg.fallbackStrategy != "" {
		s, ok := catalog.Get(cfg.fallbackStrategy)
		if !ok {
			logger.Warn("unknown fallback strategy %q, continuing without fallback", cfg.fallbackStrategy)
		} else {
			fallback = s
		}
	}
	coordinator := strategy.NewCoordinator(catalog, fallback)

	ed := editor.New(coordinator, tracker, m, &types.GenerationContext{}, sender, editor.Config{
		CompletionTimeout:   cfg.completionTimeout,
		IdleCompletionDelay: cfg.idleDelay,
		TextChangeDebounce:  cfg.textChangeDebounce,
		StrategyOverride:    cfg.strategyOverride,
	})

	v, err := nvim.New(os.Stdin, os.Stdout, os.Stdout, logger.Debug)
	if err != nil {
		logger.Fatal("failed to connect to nvim: %v", err)
	}

	if err := ed.Attach(v); err != nil {
		logger.Fatal("failed to attach to nvim: %v", err)
	}

	if err := v.RegisterHandler("ghosttabEvent", func(name string) {
		ed.Notify(name)
	}); err != nil {
		logger.Fatal("failed to register event handler: %v", err)
	}

	ed.Start(ctx)
	defer func() {
		ed.Stop()
		if err := catalog.DisposeAll(context.Background()); err != nil {
			logger.Warn("strategy disposal: %v", err)
		}
	}()

	logger.Info("ghosttab %s connected (model=%s, device=%s)", version, m.ID(), deviceID)

	if err := v.Serve(); err != nil {
		logger.Error("rpc serve: %v", err)
	}
}
