// Package provider defines the contract Ganymede uses to read entity data
// and execute approved actions against the backing ingestion/storage
// subsystem.
//
// The engine is agnostic to the backing store: every concrete provider
// (mock or real) implements the same Provider interface. Entity mutation
// happens exclusively through ExecuteAction, which is only reachable
// through the executor's dry-run/allow-actions gate.
package provider
