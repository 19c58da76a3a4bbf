// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/step_computer/internal/app"
	"github.com/relabs-tech/step_computer/internal/config"
	applog "github.com/relabs-tech/step_computer/internal/log"
)

func main() {
	configPath := flag.String("config", "./step_config.txt", "path to configuration file")
	record := flag.Duration("record", 0, "write a synthetic walk of this length to the input path instead of replaying")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] [-record 30s] recording.csv\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applog.Init(config.Get().LogLevel)
	defer applog.Sync()

	if *record > 0 {
		if err := app.RecordWalk(path, *record); err != nil {
			applog.Fatal("record failed", zap.Error(err))
		}
		applog.Info("synthetic walk recorded", zap.String("path", path), zap.Duration("length", (*record).Truncate(time.Millisecond)))
		return
	}

	if err := app.RunReplay(path, config.Get().PipelineConfig(), os.Stdout); err != nil {
		applog.Fatal("replay failed", zap.Error(err))
	}
}
