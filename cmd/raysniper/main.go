package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"raysniper/internal/app"
	"raysniper/internal/config"
	"raysniper/internal/logger"
)

func main() {
	cfgFlag := flag.String("config", "", "path to the parameter file (overrides RAYSNIPER_CONFIG)")
	modeFlag := flag.String("mode", "", "run mode: live or analyze (overrides the parameter file)")
	checksOff := flag.Bool("checks-off", false, "bypass safety checks (never valid in prod)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := *cfgFlag
	if cfgPath == "" {
		cfgPath = os.Getenv("RAYSNIPER_CONFIG")
	}
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *modeFlag != "" {
		if *modeFlag != "live" && *modeFlag != "analyze" {
			log.Fatalf("-mode must be live or analyze, got %q", *modeFlag)
		}
		cfg.App.Mode = *modeFlag
	}
	if *checksOff {
		if strings.EqualFold(cfg.App.Env, "prod") {
			log.Fatalf("-checks-off is not allowed when app.env is prod")
		}
		cfg.App.ChecksOff = true
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("open log file: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded (env=%s mode=%s)", cfg.App.Env, cfg.App.Mode)

	a, err := app.NewApp(cfg, cfgPath)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("run: %v", err)
	}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
