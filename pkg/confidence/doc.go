// Package confidence estimates the correctness probability of applying a
// policy's action to an entity. The estimate blends the policy's
// configured threshold (base), fixed heuristic rules, and a clamped
// personalized bump learned from the user's approve/reject history.
package confidence
