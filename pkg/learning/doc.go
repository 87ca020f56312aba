// Package learning turns human decisions into model updates. The online
// learner nudges per-user feature weights after every approval or
// rejection, and the stats tracker maintains rolling per-policy
// precision and recall counters.
package learning
