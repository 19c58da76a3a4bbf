// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/relabs-tech/step_computer/internal/bus"
	"github.com/relabs-tech/step_computer/internal/config"
	"github.com/relabs-tech/step_computer/internal/emulator"
	"github.com/relabs-tech/step_computer/internal/imu"
	applog "github.com/relabs-tech/step_computer/internal/log"
	"github.com/relabs-tech/step_computer/internal/store"
)

// EmulatorSteps is the payload published on TOPIC_EMULATOR_STEPS.
type EmulatorSteps struct {
	Session string `json:"session"`
	Steps   int    `json:"steps"`
}

// mqttInjector credits steps to an emulator listening on MQTT.
func mqttInjector(client mqtt.Client, topic, session string, metrics *Metrics, log *zap.Logger) emulator.Injector {
	return emulator.InjectorFunc(func(n int) {
		if err := publishJSON(client, topic, false, EmulatorSteps{Session: session, Steps: n}); err != nil {
			log.Warn("emulator injection failed", zap.Int("steps", n), zap.Error(err))
			return
		}
		metrics.Injected.Add(float64(n))
	})
}

// RunStepDetector subscribes to the sample topics, runs the step pipeline
// and fans candidate and fused steps out to MQTT, Redis, NATS, Prometheus
// and the emulator.
func RunStepDetector() error {
	cfg := config.Get()
	log := applog.Named("detector")

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDetector)
	if err != nil {
		return fmt.Errorf("step detector: %w", err)
	}
	defer client.Disconnect(250)
	log.Info("connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	ctx, stop := signalContext()
	defer stop()

	sinks := []EventSink{&mqttSink{
		client:         client,
		topicCandidate: cfg.TopicStepCandidate,
		topicFused:     cfg.TopicStepFused,
	}}

	if cfg.RedisAddr != "" {
		steplog, err := store.NewRedisStepLog(ctx, cfg.RedisAddr, cfg.RedisKeyPrefix, cfg.RedisStepLogLen)
		if err != nil {
			return fmt.Errorf("step detector: %w", err)
		}
		defer steplog.Close()
		sinks = append(sinks, &redisSink{log: steplog})
		log.Info("redis step log enabled", zap.String("addr", cfg.RedisAddr))
	}

	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL, cfg.MQTTClientIDDetector)
		if err != nil {
			return fmt.Errorf("step detector: %w", err)
		}
		defer nc.Drain()
		sinks = append(sinks, &natsSink{pub: bus.NewStepPublisher(nc, cfg.NATSSubjectSteps)})
		log.Info("nats fan-out enabled", zap.String("url", cfg.NATSURL))
	}

	events := NewDispatcher(cfg.EventQueueSize, metrics, log, sinks...)
	det := NewDetector(cfg.PipelineConfig(), metrics, events, log)
	log.Info("detector session started", zap.String("session", det.Session()))

	fwd := emulator.NewForwarder(
		mqttInjector(client, cfg.TopicEmulatorSteps, det.Session(), metrics, log), log.Named("emulator"))
	det.ForwardFused(fwd)

	// Stops, draining the queue, before the sink connections close.
	workers := startWorkers(ctx, events.Run, fwd.Run)
	defer workers.stop()

	for _, topic := range sampleTopics(cfg) {
		if err := subscribeJSON(client, topic, log, func(s imu.Sample) { det.Handle(s) }); err != nil {
			return fmt.Errorf("step detector: %w", err)
		}
	}

	if cfg.MetricsPort > 0 {
		r := mux.NewRouter()
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := serveHTTP(ctx, fmt.Sprintf(":%d", cfg.MetricsPort), r, log); err != nil {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down", zap.Any("counts", det.Counts()))
	return nil
}

// workerGroup runs background loops that stop together.
type workerGroup struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// startWorkers runs each fn on its own goroutine with a child of parent.
func startWorkers(parent context.Context, fns ...func(context.Context)) *workerGroup {
	ctx, cancel := context.WithCancel(parent)
	g := &workerGroup{cancel: cancel}
	for _, fn := range fns {
		g.wg.Add(1)
		go func(fn func(context.Context)) {
			defer g.wg.Done()
			fn(ctx)
		}(fn)
	}
	return g
}

// stop cancels the workers and waits for them to return.
func (g *workerGroup) stop() {
	g.cancel()
	g.wg.Wait()
}
