// Package sampler picks the predictions most worth a human's time. Each
// run scores unlabeled predictions by the configured uncertainty
// strategy and replaces the agent's review queue with the top of the
// list.
package sampler
