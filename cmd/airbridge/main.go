// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the Airbridge License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nishisan-dev/airbridge/internal/bridge"
	"github.com/nishisan-dev/airbridge/internal/config"
	"github.com/nishisan-dev/airbridge/internal/logging"
)

const defaultConfigPath = "airbridge.yml"

// parseFlags lê os argumentos da linha de comando. O caminho do config
// aceita as formas -c e -config (ou --config).
func parseFlags(args []string) (string, error) {
	fs := flag.NewFlagSet("airbridge", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to airbridge config file")
	fs.StringVar(configPath, "c", defaultConfigPath, "path to airbridge config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *configPath, nil
}

func main() {
	configPath, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(-1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	b, err := bridge.New(cfg, logger)
	if err != nil {
		logger.Error("failed to assemble bridge", "error", err)
		os.Exit(-1)
	}

	// SIGINT/SIGTERM disparam o shutdown ordenado; o dedicated server
	// recebe o comando exit antes de qualquer término a nível de OS.
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := b.Run(ctx)
	if err != nil {
		logger.Error("bridge finished with error", "error", err)
		if code == 0 {
			code = -1
		}
	}

	// O exit code do airbridge espelha o do dedicated server.
	os.Exit(code)
}
