package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kaenova/chatd/src/agent"
	"github.com/kaenova/chatd/src/attachment"
	"github.com/kaenova/chatd/src/blobstore"
	"github.com/kaenova/chatd/src/chattools"
	"github.com/kaenova/chatd/src/chattools/tool_generateimage"
	"github.com/kaenova/chatd/src/checkpoint"
	"github.com/kaenova/chatd/src/config"
	"github.com/kaenova/chatd/src/history"
	"github.com/kaenova/chatd/src/modelclient"
	"github.com/kaenova/chatd/src/server"
	"github.com/kaenova/chatd/src/turn"
)

// ServeCmd runs the HTTP server until interrupted.
type ServeCmd struct {
	Addr string `help:"Listen address override"`
}

// Run executes the serve command
func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.NewLoader().Load(cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	store, err := openCheckpointStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer store.Close()

	db, err := attachment.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open attachment database: %w", err)
	}
	defer db.Close()

	blobs, err := openBlobStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	client, err := modelclient.NewClient(modelclient.Config{
		APIKey:  cfg.Model.APIKey,
		BaseURL: cfg.Model.BaseURL,
		Model:   cfg.Model.Name,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	toolbox, err := buildToolbox(cfg, client, blobs, db)
	if err != nil {
		return fmt.Errorf("failed to build toolbox: %w", err)
	}

	systemPrompt := cfg.Agent.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = chattools.GenerateSystemPrompt(toolbox)
	}

	gate := turn.NewGate(cfg.Agent.SensitiveTools)
	machine := turn.NewMachine(turn.Config{
		Store: store,
		Agent: &agent.Agent{
			SystemPrompt: systemPrompt,
			Model:        client,
			Toolbox:      toolbox,
		},
		Gate:        gate,
		Resolver:    attachment.NewResolver(db, blobs, server.DefaultOwner, logger),
		MaxTurns:    cfg.Agent.MaxTurns,
		TokenBudget: cfg.Agent.TokenBudget,
		Logger:      logger,
	})

	srv := server.New(server.Options{
		Addr:        cfg.Server.Addr,
		Store:       store,
		Machine:     machine,
		Gate:        gate,
		History:     history.NewReconstructor(store, logger),
		Attachments: db,
		Blobs:       blobs,
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Listen(); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
	}
	logger.Info("server listening",
		"addr", srv.Addr().String(),
		"model", cfg.Model.Name,
		"storage", cfg.Storage.Backend)
	return srv.Serve(ctx)
}

func openCheckpointStore(cfg *config.Config, logger *slog.Logger) (checkpoint.Store, error) {
	if cfg.Storage.Backend == "memory" {
		return checkpoint.NewMemoryStore(), nil
	}
	return checkpoint.OpenPebble(filepath.Join(cfg.Storage.DataDir, "checkpoints"), logger)
}

func openBlobStore(cfg *config.Config, logger *slog.Logger) (*blobstore.Store, error) {
	key := []byte(cfg.Blob.SigningKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		logger.Warn("no blob signing key configured, signed links will not survive a restart")
	}
	ttl := time.Duration(cfg.Blob.LinkTTLSeconds) * time.Second
	return blobstore.NewOS(cfg.Blob.Dir, blobstore.NewSigner(key, ttl), logger)
}

func buildToolbox(cfg *config.Config, client *modelclient.Client, blobs *blobstore.Store, db *attachment.DB) (*agent.DefaultToolbox, error) {
	toolbox := agent.NewToolbox[agent.Tool]()

	currentTime, err := chattools.CurrentTimeTool()
	if err != nil {
		return nil, err
	}
	if err := toolbox.RegisterTool(currentTime); err != nil {
		return nil, err
	}

	weather, err := chattools.WeatherTool()
	if err != nil {
		return nil, err
	}
	if err := toolbox.RegisterTool(weather); err != nil {
		return nil, err
	}

	if cfg.Tools.SearchURL != "" {
		search, err := chattools.WebSearchTool(cfg.Tools.SearchURL)
		if err != nil {
			return nil, err
		}
		if err := toolbox.RegisterTool(search); err != nil {
			return nil, err
		}
	}

	generateImage, err := chattools.GenerateImageTool(tool_generateimage.Deps{
		Generator: chattools.NewModelGenerator(client, cfg.Model.ImageModel),
		Blobs:     blobs,
		DB:        db,
		Owner:     server.DefaultOwner,
	})
	if err != nil {
		return nil, err
	}
	if err := toolbox.RegisterTool(generateImage); err != nil {
		return nil, err
	}

	return toolbox, nil
}
