/*
Package monitoring provides Prometheus metrics for the ability manager.

# Overview

Collectors are registered on an injected prometheus.Registerer so the server
exposes exactly one registry and tests build as many Metrics as they like.
All recording methods accept a nil *Metrics.

# Features

- HTTP request metrics (latency, throughput, size)
- Ability lifecycle metrics (starts, transitions, timeouts, deaths, restarts)
- Connection and mission gauges per user
- User switch counters
- Outbound collaborator call latency
- WebSocket subscriber metrics

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "appspawn", "LoadAbility")
	// ... perform call ...
	timer.Stop("success")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
