// Package executor brackets a unit of agent work. It wraps the provider
// so every call is counted against the request's time and operation
// budgets, and gates all entity mutation behind the dry-run and
// allow-actions switches.
package executor
