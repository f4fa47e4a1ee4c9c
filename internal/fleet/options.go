// Package fleet implements the bot-pool execution engine: per-bot state
// machines with reconnect backoff, sharded workers, the bounded admission
// queue, and the dispatch/retry lifecycle of inspect requests.
package fleet

import "time"

// Options tunes the fleet. Zero values fall back to the defaults below.
type Options struct {
	BotsPerWorker        int
	MaxQueueSize         int
	QueueTimeout         time.Duration
	InspectTimeout       time.Duration
	CooldownTime         time.Duration
	MaxRetries           int
	MaxReconnectAttempts int
	BaseReconnectDelay   time.Duration
	MaxReconnectDelay    time.Duration
	HealthCheckInterval  time.Duration
	StatsUpdateInterval  time.Duration

	// LoginThrottleCooldown is how long a throttled or failed account is
	// skipped before the health check retries a fresh login.
	LoginThrottleCooldown time.Duration
}

func (o Options) withDefaults() Options {
	if o.BotsPerWorker <= 0 {
		o.BotsPerWorker = 50
	}
	if o.MaxQueueSize <= 0 {
		o.MaxQueueSize = 100
	}
	if o.QueueTimeout <= 0 {
		o.QueueTimeout = 10 * time.Second
	}
	if o.InspectTimeout <= 0 {
		o.InspectTimeout = 10 * time.Second
	}
	if o.CooldownTime <= 0 {
		o.CooldownTime = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 10
	}
	if o.BaseReconnectDelay <= 0 {
		o.BaseReconnectDelay = 30 * time.Second
	}
	if o.MaxReconnectDelay <= 0 {
		o.MaxReconnectDelay = 600 * time.Second
	}
	if o.HealthCheckInterval <= 0 {
		o.HealthCheckInterval = 60 * time.Second
	}
	if o.StatsUpdateInterval <= 0 {
		o.StatsUpdateInterval = 3 * time.Second
	}
	if o.LoginThrottleCooldown <= 0 {
		o.LoginThrottleCooldown = 30 * time.Minute
	}
	return o
}
