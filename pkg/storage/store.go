package storage

import (
	"context"
	"errors"

	"mercator-hq/ganymede/pkg/policy/engine"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a compare-and-swap transition lost: the row was
// not in the expected state. The caller must treat the operation as not
// having happened.
var ErrConflict = errors.New("concurrent modification conflict")

// ErrVersionConflict indicates an optimistic-concurrency put lost: the
// key's version changed since it was read.
var ErrVersionConflict = errors.New("version conflict")

// Store is the persistence contract for the decision engine. All methods
// are safe for concurrent use.
type Store interface {
	// --- Policies ---

	// UpsertPolicy inserts or replaces a policy by id.
	UpsertPolicy(ctx context.Context, p *engine.Policy) error

	// GetPolicy returns a policy by id, or ErrNotFound.
	GetPolicy(ctx context.Context, id string) (*engine.Policy, error)

	// ListPolicies returns all policies in (priority, id) order.
	ListPolicies(ctx context.Context) ([]*engine.Policy, error)

	// --- Proposed actions ---

	// CreateProposal inserts a new proposal.
	CreateProposal(ctx context.Context, p *ProposedAction) error

	// GetProposal returns a proposal by id, or ErrNotFound.
	GetProposal(ctx context.Context, id string) (*ProposedAction, error)

	// HasActiveProposal reports whether a pending or approved proposal
	// exists for (entityID, policyID). Used for idempotent proposing.
	HasActiveProposal(ctx context.Context, entityID, policyID string) (bool, error)

	// TransitionProposal atomically moves a proposal from one status to
	// another. It returns ErrConflict when the proposal is not in the
	// from status (another caller won the race), ErrNotFound when the id
	// does not exist. Exactly one concurrent caller can win a given
	// transition.
	TransitionProposal(ctx context.Context, id string, from, to ProposalStatus, actor string) error

	// ListProposals returns proposals matching the filter, newest first.
	ListProposals(ctx context.Context, filter ProposalFilter) ([]*ProposedAction, error)

	// --- Audit ---

	// AppendAudit appends an audit record. Audit records are immutable.
	AppendAudit(ctx context.Context, a *AuditAction) error

	// ListAudit returns audit records for an entity, newest first.
	// An empty entityID returns records for all entities.
	ListAudit(ctx context.Context, entityID string, limit int) ([]*AuditAction, error)

	// --- User weights ---

	// AddUserWeight adds delta to the stored weight for (userID,
	// feature), creating the row lazily on first feedback.
	AddUserWeight(ctx context.Context, userID, feature string, delta float64) error

	// GetUserWeights returns all weights for a user keyed by feature.
	GetUserWeights(ctx context.Context, userID string) (map[string]float64, error)

	// --- Policy stats ---

	// BumpPolicyStats adds the deltas to the counters for (policyID,
	// userID) and recomputes precision and recall in the same row.
	BumpPolicyStats(ctx context.Context, policyID, userID string, dFired, dApproved, dRejected int64, windowDays int) error

	// GetPolicyStats returns stats for a (policy, user) pair, or
	// ErrNotFound.
	GetPolicyStats(ctx context.Context, policyID, userID string) (*PolicyStats, error)

	// ListPolicyStats returns all stats rows for a user.
	ListPolicyStats(ctx context.Context, userID string) ([]*PolicyStats, error)

	// --- Labeled examples ---

	// UpsertLabeledExample inserts an example unless one with the same
	// (source, source_id) already exists. It reports whether a row was
	// inserted.
	UpsertLabeledExample(ctx context.Context, e *LabeledExample) (bool, error)

	// ListLabeledExamples returns all examples for an agent.
	ListLabeledExamples(ctx context.Context, agent string) ([]*LabeledExample, error)

	// CountLabeledExamples returns the number of examples for an agent.
	CountLabeledExamples(ctx context.Context, agent string) (int64, error)

	// LabeledKeys returns the set of keys already labeled for an agent.
	LabeledKeys(ctx context.Context, agent string) (map[string]bool, error)

	// --- Judges ---

	// AddJudgeVerdict appends a judge verdict.
	AddJudgeVerdict(ctx context.Context, v *JudgeVerdict) error

	// ListJudgeVerdicts returns all verdicts for an agent.
	ListJudgeVerdicts(ctx context.Context, agent string) ([]*JudgeVerdict, error)

	// UpsertJudgeWeight inserts or replaces the weight for (agent, judge).
	UpsertJudgeWeight(ctx context.Context, w *JudgeWeight) error

	// ListJudgeWeights returns all judge weights for an agent.
	ListJudgeWeights(ctx context.Context, agent string) ([]*JudgeWeight, error)

	// --- Review queue ---

	// ReplaceReviewQueue atomically replaces the review queue for an
	// agent. Sampling runs are idempotent: re-running replaces, never
	// appends.
	ReplaceReviewQueue(ctx context.Context, agent string, items []*ReviewItem) error

	// ListReviewQueue returns the review queue for an agent, highest
	// score first.
	ListReviewQueue(ctx context.Context, agent string) ([]*ReviewItem, error)

	// --- Versioned KV (bundle pointers) ---

	// GetKV returns the entry for (agent, key), or ErrNotFound.
	GetKV(ctx context.Context, agent, key string) (*KVEntry, error)

	// PutKV writes value to (agent, key) when the stored version equals
	// expectedVersion. Pass 0 to require that the key does not exist
	// yet. Returns the new version, or ErrVersionConflict.
	PutKV(ctx context.Context, agent, key string, value []byte, expectedVersion int64) (int64, error)

	// Close releases backend resources.
	Close() error
}
