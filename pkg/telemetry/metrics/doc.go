// Package metrics provides Prometheus instrumentation for the decision
// engine and the learning pipeline. A single Collector owns the registry
// and fans recording calls out to the metric subsystems.
package metrics
