// Package server provides the admin HTTP server exposing metrics and
// health endpoints.
package server
