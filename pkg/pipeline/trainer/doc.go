// Package trainer fits configuration payloads from the labeled training
// set. Two strategies are available: a logistic model over the shared
// feature space and a single-feature decision stump. Both weight
// examples by their label confidence.
package trainer
