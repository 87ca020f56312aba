// Package approval decides proposals. Approve and Reject race-safely
// transition a proposal out of pending, execute approved actions through
// the provider, append audit records, and feed the decision back into
// the online learner and the per-policy counters.
package approval
