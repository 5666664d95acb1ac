package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"marketsync/internal/app"
	"marketsync/pkg/banner"
	"marketsync/pkg/config"
	"marketsync/pkg/logger"
	"marketsync/pkg/shutdown"
)

var version = "dev"

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, _, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithLevel(cfg.Logging.Level)

	// flags win over config/env when provided explicitly
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrVal
	}
	dbPath := dbVal
	if !setFlags["db"] && cfg.Storage.DBPath != "" {
		dbPath = cfg.Storage.DBPath
	}
	cfg.Storage.DBPath = dbPath

	banner.Print(cfg, version)

	a, err := app.New(cfg, addr, dbPath)
	if err != nil {
		shutdown.Abort("engine startup failed", err, dbPath)
	}
	defer a.Close()

	ctx, stop := shutdown.SetupSignalHandler(context.Background())
	defer stop()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("engine run failed", err, dbPath)
	}
	logger.Info("shutdown_complete")
}
