package websocket

import "github.com/coregx/tcpws/internal/metrics"

// Metrics is the prometheus.Collector type returned by Server.Metrics,
// aliased here so embedders can name it without importing the internal
// package it actually lives in.
type Metrics = metrics.Collector
