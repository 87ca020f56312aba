// Package config defines the root configuration structure for Ganymede
// and its loading pipeline: YAML file, defaults, environment variable
// overrides, validation.
//
// Empirical tuning constants (confidence bump scale and clamp, learning
// rate, canary thresholds) live here rather than as literals in the code
// paths that use them.
package config
