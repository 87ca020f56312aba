// Ganymede is a policy-driven action engine with a human approval loop.
//
// It proposes actions on entities according to operator-authored
// policies, routes every consequential action through human approval,
// learns per-user preference weights from decisions, and retrains its
// own thresholds nightly with canary-gated promotion.
//
// Usage:
//
//	# Start the engine with default configuration
//	ganymede run
//
//	# Start with a custom configuration file
//	ganymede run --config /path/to/config.yaml
//
//	# Validate configuration and policy files
//	ganymede validate
//
//	# Run the active-learning pipeline once
//	ganymede pipeline
//
//	# Show version information
//	ganymede version
package main

func main() {
	Execute()
}
