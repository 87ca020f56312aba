package storage

import "time"

// ProposalStatus is the lifecycle state of a proposed action.
//
// Transitions are monotonic: pending → approved | rejected, and
// approved → executed. A decided proposal never reverts to pending.
type ProposalStatus string

const (
	StatusPending  ProposalStatus = "pending"
	StatusApproved ProposalStatus = "approved"
	StatusRejected ProposalStatus = "rejected"
	StatusExecuted ProposalStatus = "executed"
)

// AuditOutcome classifies an audit record.
type AuditOutcome string

const (
	// OutcomeSuccess records a successfully executed action.
	OutcomeSuccess AuditOutcome = "success"

	// OutcomeError records an action whose provider execution failed.
	OutcomeError AuditOutcome = "error"

	// OutcomeNoop records a decision that executed nothing (rejections,
	// bundle transitions).
	OutcomeNoop AuditOutcome = "noop"
)

// LabelSource identifies where a labeled example came from.
type LabelSource string

const (
	SourceApproval LabelSource = "approval"
	SourceFeedback LabelSource = "feedback"
	SourceGold     LabelSource = "gold"
)

// Rationale explains why a proposal was made.
type Rationale struct {
	// MatchedFeatures are the normalized features extracted from the
	// entity at proposal time.
	MatchedFeatures []string `json:"matched_features"`

	// Narrative is the free-text explanation shown to the reviewer.
	Narrative string `json:"narrative"`
}

// ProposedAction is a pending recommendation awaiting human approval.
type ProposedAction struct {
	ID         string         `json:"id"`
	Agent      string         `json:"agent"`
	UserID     string         `json:"user_id"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	Confidence float64        `json:"confidence"`
	Rationale  Rationale      `json:"rationale"`
	PolicyID   string         `json:"policy_id"`
	Status     ProposalStatus `json:"status"`
	Params     map[string]any `json:"params,omitempty"`
	DecidedBy  string         `json:"decided_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// AuditAction is one append-only audit record. Audit rows are never
// mutated or deleted.
type AuditAction struct {
	ID          string       `json:"id"`
	EntityID    string       `json:"entity_id"`
	Action      string       `json:"action"`
	Outcome     AuditOutcome `json:"outcome"`
	Actor       string       `json:"actor"`
	EvidenceRef string       `json:"evidence_ref,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// UserWeight is one learned weight for a (user, feature) pair. Weight
// magnitude is unbounded; only its contribution to a confidence estimate
// is clamped.
type UserWeight struct {
	UserID    string    `json:"user_id"`
	Feature   string    `json:"feature"`
	Weight    float64   `json:"weight"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyStats are rolling performance counters for a (policy, user) pair.
// Precision is approved/fired. Recall is a best-effort estimate, not a
// hard contract.
type PolicyStats struct {
	PolicyID   string    `json:"policy_id"`
	UserID     string    `json:"user_id"`
	Fired      int64     `json:"fired"`
	Approved   int64     `json:"approved"`
	Rejected   int64     `json:"rejected"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	WindowDays int       `json:"window_days"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LabeledExample is one training example for an agent. Examples are
// unique per (source, source_id); re-ingesting the same event is a no-op.
type LabeledExample struct {
	ID         string      `json:"id"`
	Agent      string      `json:"agent"`
	Key        string      `json:"key"`
	Features   []string    `json:"features"`
	Label      int         `json:"label"`
	Confidence float64     `json:"confidence"`
	Source     LabelSource `json:"source"`
	SourceID   string      `json:"source_id"`
	CreatedAt  time.Time   `json:"created_at"`
}

// JudgeVerdict is one judge's label for a prediction, with the judge's
// stated confidence. Verdicts are joined with labeled examples by
// (agent, key) to score judge reliability.
type JudgeVerdict struct {
	Agent      string    `json:"agent"`
	JudgeID    string    `json:"judge_id"`
	Key        string    `json:"key"`
	Label      int       `json:"label"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// JudgeWeight is the persisted reliability weight for an (agent, judge)
// pair: agreement rate (time-decayed) minus half the calibration error.
type JudgeWeight struct {
	Agent            string    `json:"agent"`
	JudgeID          string    `json:"judge_id"`
	Agreement        float64   `json:"agreement"`
	CalibrationError float64   `json:"calibration_error"`
	Weight           float64   `json:"weight"`
	Samples          int       `json:"samples"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ReviewItem is one uncertainty-sampled prediction queued for human
// review.
type ReviewItem struct {
	Agent     string    `json:"agent"`
	Key       string    `json:"key"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// KVEntry is one versioned key-value entry. Version increases by one on
// every successful put and backs the optimistic-concurrency check that
// protects bundle-pointer switches.
type KVEntry struct {
	Agent     string    `json:"agent"`
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProposalFilter selects proposals for listing.
type ProposalFilter struct {
	// Agent filters by agent when non-empty.
	Agent string

	// Status filters by status when non-empty.
	Status ProposalStatus

	// Limit caps the result size when positive.
	Limit int
}
