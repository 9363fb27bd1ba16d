package main

import (
	"fmt"

	"github.com/kaenova/chatd/src/attachment"
	"github.com/kaenova/chatd/src/config"
)

// MigrateCmd manages database migrations
type MigrateCmd struct {
	Up MigrateUpCmd `cmd:"" help:"Run pending migrations"`
}

// MigrateUpCmd runs pending migrations
type MigrateUpCmd struct {
	DBPath string `help:"Database path (defaults to config)"`
}

// Run executes the migrate up command
func (c *MigrateUpCmd) Run(cli *CLI) error {
	dbPath := c.DBPath
	if dbPath == "" {
		cfg, err := config.NewLoader().Load(cli.Config)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		dbPath = cfg.Storage.SQLitePath
	}

	db, err := attachment.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	fmt.Printf("Database migrated: %s\n", dbPath)
	return nil
}
