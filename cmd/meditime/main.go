package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gmsas95/meditime/internal/app"
	"github.com/gmsas95/meditime/internal/cli"
	"github.com/gmsas95/meditime/internal/config"
	"github.com/gmsas95/meditime/internal/store"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	flag.Usage = func() { cli.PrintExtendedHelp(os.Stderr) }
	flag.Parse()
	cli.Version = version

	args := flag.Args()
	command := "serve"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "help", "--help", "-h":
		cli.PrintExtendedHelp(os.Stdout)
		return
	case "version", "--version", "-v":
		fmt.Printf("MediTime version %s\n", version)
		return
	}

	if err := config.LoadEnvFiles(); err != nil {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg, command == "serve")
	defer logger.Sync()

	st, err := store.Open(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close()

	if command == "serve" {
		logger.Info("Starting MediTime", zap.String("version", version))
		application := app.New(cfg, st, logger, version)
		if err := application.RunServer(); err != nil {
			logger.Error("Server stopped", zap.Error(err))
			st.Close()
			os.Exit(1)
		}
		return
	}

	ctx := context.Background()
	env, err := cli.NewEnv(ctx, cfg, st, logger, os.Stdout)
	if err != nil {
		cli.PrintError(os.Stderr, err)
		st.Close()
		os.Exit(1)
	}

	switch command {
	case "user":
		err = cli.HandleUserCommand(ctx, env, args)
	case "schedule":
		err = cli.HandleScheduleCommand(ctx, env, args)
	case "next":
		err = cli.HandleNextCommand(env)
	case "time":
		err = cli.HandleTimeCommand(env, args)
	case "export":
		err = cli.HandleExportCommand(ctx, env, args)
	case "import":
		err = cli.HandleImportCommand(ctx, env, args)
	case "status":
		err = cli.HandleStatusCommand(env)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		cli.PrintExtendedHelp(os.Stderr)
		st.Close()
		os.Exit(2)
	}

	if err != nil {
		cli.PrintError(os.Stderr, err)
		st.Close()
		os.Exit(1)
	}
}

// newLogger follows log.format: json selects the production encoder.
// One-shot commands stay quiet below warn so their output is readable.
func newLogger(cfg *config.Config, daemon bool) *zap.Logger {
	var zc zap.Config
	if cfg.Log.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if !daemon && level < zapcore.WarnLevel {
		level = zapcore.WarnLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return logger
}
