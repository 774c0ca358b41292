// Package telemetry defines the metrics hooks of the reader manager and a
// Prometheus implementation of them.
package telemetry
