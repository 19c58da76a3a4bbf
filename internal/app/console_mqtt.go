// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/step_computer/internal/config"
	applog "github.com/relabs-tech/step_computer/internal/log"
	"github.com/relabs-tech/step_computer/internal/step"
)

// formatEvent renders one event as a console line.
func formatEvent(ev step.Event) string {
	at := time.Duration(ev.TimestampNanos)
	switch ev.Kind {
	case step.EventFused:
		return fmt.Sprintf("[STEP] #%-5d t=%-12s %s", ev.Count, at, ev.Decision)
	default:
		return fmt.Sprintf("[CAND] #%-5d t=%s", ev.Count, at)
	}
}

// RunConsoleMQTT prints candidate and fused step events until Ctrl+C.
func RunConsoleMQTT() error {
	return runConsoleMQTT(os.Stdout)
}

func runConsoleMQTT(out io.Writer) error {
	cfg := config.Get()
	log := applog.Named("console")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	defer client.Disconnect(250)
	log.Info("connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	show := func(ev step.Event) { fmt.Fprintln(out, formatEvent(ev)) }
	for _, topic := range []string{cfg.TopicStepCandidate, cfg.TopicStepFused} {
		if err := subscribeJSON(client, topic, log, show); err != nil {
			return fmt.Errorf("console: %w", err)
		}
	}

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	return nil
}
