// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package store keeps a bounded log of step events and running totals in
// Redis so other processes can read them after the detector restarts.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/relabs-tech/step_computer/internal/step"
)

// RedisStepLog stores events under <prefix>:<kind>:total (counter) and
// <prefix>:<kind>:recent (newest first, capped list).
type RedisStepLog struct {
	client *redis.Client
	prefix string
	maxLen int64
}

// NewRedisStepLog connects to addr and checks the connection.
func NewRedisStepLog(ctx context.Context, addr, prefix string, maxLen int64) (*RedisStepLog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 1,
		MaxRetries:   3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis ping %s: %w", addr, err)
	}
	return newRedisStepLog(client, prefix, maxLen), nil
}

func newRedisStepLog(client *redis.Client, prefix string, maxLen int64) *RedisStepLog {
	if maxLen < 1 {
		maxLen = 1
	}
	return &RedisStepLog{client: client, prefix: prefix, maxLen: maxLen}
}

func (r *RedisStepLog) totalKey(kind step.EventKind) string {
	return fmt.Sprintf("%s:%s:total", r.prefix, kind)
}

func (r *RedisStepLog) recentKey(kind step.EventKind) string {
	return fmt.Sprintf("%s:%s:recent", r.prefix, kind)
}

// Store appends ev to the recent list of its kind and bumps the total.
func (r *RedisStepLog) Store(ctx context.Context, ev step.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("store: marshal event: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, r.totalKey(ev.Kind))
	pipe.LPush(ctx, r.recentKey(ev.Kind), data)
	pipe.LTrim(ctx, r.recentKey(ev.Kind), 0, r.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: write %s event: %w", ev.Kind, err)
	}
	return nil
}

// Total returns the stored counter for kind (0 if unset).
func (r *RedisStepLog) Total(ctx context.Context, kind step.EventKind) (int64, error) {
	n, err := r.client.Get(ctx, r.totalKey(kind)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read %s total: %w", kind, err)
	}
	return n, nil
}

// Recent returns up to count events of kind, newest first. Entries that
// fail to decode are skipped.
func (r *RedisStepLog) Recent(ctx context.Context, kind step.EventKind, count int64) ([]step.Event, error) {
	raw, err := r.client.LRange(ctx, r.recentKey(kind), 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read recent %s: %w", kind, err)
	}
	events := make([]step.Event, 0, len(raw))
	for _, s := range raw {
		var ev step.Event
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close releases the connection pool.
func (r *RedisStepLog) Close() error {
	return r.client.Close()
}
