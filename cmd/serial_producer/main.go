// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/relabs-tech/step_computer/internal/app"
	"github.com/relabs-tech/step_computer/internal/config"
	applog "github.com/relabs-tech/step_computer/internal/log"
)

func main() {
	configPath := flag.String("config", "./step_config.txt", "path to configuration file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applog.Init(config.Get().LogLevel)
	defer applog.Sync()

	applog.Info("starting step-computer serial producer (serial → MQTT)")

	if err := app.RunSerialProducer(); err != nil {
		applog.Fatal("fatal", zap.Error(err))
	}
}
