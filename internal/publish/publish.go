// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish pushes poll snapshots to Redis.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/powerbench/internal/config"
	"github.com/Thermoquad/powerbench/internal/poller"
)

// Publisher sends every reading to a Pub/Sub channel and, when a key is
// configured, keeps the latest reading per instrument in a hash.
type Publisher struct {
	client  *redis.Client
	channel string
	key     string
	log     *logrus.Entry
}

// New connects to Redis and checks the connection
func New(ctx context.Context, cfg config.RedisConfig, log *logrus.Entry) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	log.WithField("addr", cfg.Addr).Info("redis connected")
	return newPublisher(client, cfg, log), nil
}

func newPublisher(client *redis.Client, cfg config.RedisConfig, log *logrus.Entry) *Publisher {
	return &Publisher{
		client:  client,
		channel: cfg.Channel,
		key:     cfg.Key,
		log:     log,
	}
}

// Encode renders a reading as the JSON message published to Redis
func Encode(r poller.Reading) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reading of %s: %w", r.Instrument, err)
	}
	return data, nil
}

// Publish sends one snapshot in a single pipeline
func (p *Publisher) Publish(ctx context.Context, snap poller.Snapshot) error {
	if len(snap.Readings) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, r := range snap.Readings {
		data, err := Encode(r)
		if err != nil {
			p.log.Errorf("%v", err)
			continue
		}
		if p.channel != "" {
			pipe.Publish(ctx, p.channel, data)
		}
		if p.key != "" {
			pipe.HSet(ctx, p.key, r.Instrument, data)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (p *Publisher) Close() error {
	return p.client.Close()
}
