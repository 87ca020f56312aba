// Package proposer turns policy matches into proposed actions awaiting
// human approval. A run iterates candidate entities, selects the winning
// policy per entity, estimates confidence, and inserts a proposal unless
// one is already pending or approved for the same (entity, policy) pair.
package proposer
