// Package pipeline orchestrates the nightly active-learning run. Each
// run loads fresh decisions into the training set, trains a candidate
// bundle, reweights judges, refreshes the review queue and lets the
// guard supervise the canary. Runs are idempotent; a rerun over the
// same data is a no-op.
package pipeline
