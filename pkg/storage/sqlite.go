package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/ganymede/pkg/policy/ast"
	"mercator-hq/ganymede/pkg/policy/engine"
)

// SQLiteStore implements Store using SQLite. It is suitable for
// single-instance deployments where persistence across restarts is
// required.
//
// The store uses a write-ahead log (WAL) with periodic checkpointing and
// a single-writer connection pool, matching SQLite's concurrency model.
type SQLiteStore struct {
	db               *sql.DB
	dbPath           string
	snapshotInterval time.Duration
	done             chan struct{}
	closeOnce        sync.Once
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// SnapshotInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	SnapshotInterval time.Duration
}

// NewSQLiteStore opens (creating if necessary) a SQLite store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = 5 * time.Minute
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:               db,
		dbPath:           cfg.DBPath,
		snapshotInterval: cfg.SnapshotInterval,
		done:             make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	go s.checkpointLoop()

	return s, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		priority INTEGER NOT NULL,
		condition TEXT NOT NULL,
		action TEXT NOT NULL,
		confidence_threshold REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS proposed_actions (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		user_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		confidence REAL NOT NULL,
		rationale TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		status TEXT NOT NULL,
		params TEXT,
		decided_by TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_proposals_entity_policy
		ON proposed_actions(entity_id, policy_id, status);
	CREATE INDEX IF NOT EXISTS idx_proposals_agent_status
		ON proposed_actions(agent, status);

	CREATE TABLE IF NOT EXISTS audit_actions (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		outcome TEXT NOT NULL,
		actor TEXT NOT NULL,
		evidence_ref TEXT,
		reason TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_actions(entity_id);

	CREATE TABLE IF NOT EXISTS user_weights (
		user_id TEXT NOT NULL,
		feature TEXT NOT NULL,
		weight REAL NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, feature)
	);

	CREATE TABLE IF NOT EXISTS policy_stats (
		policy_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		fired INTEGER NOT NULL DEFAULT 0,
		approved INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		precision REAL NOT NULL DEFAULT 0,
		recall REAL NOT NULL DEFAULT 0,
		window_days INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (policy_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS labeled_examples (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		key TEXT NOT NULL,
		features TEXT NOT NULL,
		label INTEGER NOT NULL,
		confidence REAL NOT NULL,
		source TEXT NOT NULL,
		source_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (source, source_id)
	);
	CREATE INDEX IF NOT EXISTS idx_examples_agent ON labeled_examples(agent);

	CREATE TABLE IF NOT EXISTS judge_verdicts (
		agent TEXT NOT NULL,
		judge_id TEXT NOT NULL,
		key TEXT NOT NULL,
		label INTEGER NOT NULL,
		confidence REAL NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_verdicts_agent ON judge_verdicts(agent);

	CREATE TABLE IF NOT EXISTS judge_weights (
		agent TEXT NOT NULL,
		judge_id TEXT NOT NULL,
		agreement REAL NOT NULL,
		calibration_error REAL NOT NULL,
		weight REAL NOT NULL,
		samples INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (agent, judge_id)
	);

	CREATE TABLE IF NOT EXISTS review_queue (
		agent TEXT NOT NULL,
		key TEXT NOT NULL,
		score REAL NOT NULL,
		reason TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_review_agent ON review_queue(agent);

	CREATE TABLE IF NOT EXISTS bundle_kv (
		agent TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		version INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (agent, key)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertPolicy implements Store.
func (s *SQLiteStore) UpsertPolicy(ctx context.Context, p *engine.Policy) error {
	condition, err := p.Condition.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize condition: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (id, name, enabled, priority, condition, action, confidence_threshold)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			priority = excluded.priority,
			condition = excluded.condition,
			action = excluded.action,
			confidence_threshold = excluded.confidence_threshold
	`, p.ID, p.Name, boolToInt(p.Enabled), p.Priority, string(condition), p.Action, p.ConfidenceThreshold)
	if err != nil {
		return fmt.Errorf("failed to upsert policy: %w", err)
	}
	return nil
}

// GetPolicy implements Store.
func (s *SQLiteStore) GetPolicy(ctx context.Context, id string) (*engine.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, enabled, priority, condition, action, confidence_threshold
		FROM policies WHERE id = ?
	`, id)
	return scanPolicy(row)
}

// ListPolicies implements Store.
func (s *SQLiteStore) ListPolicies(ctx context.Context) ([]*engine.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, enabled, priority, condition, action, confidence_threshold
		FROM policies ORDER BY priority ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var out []*engine.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row scanner) (*engine.Policy, error) {
	var (
		p         engine.Policy
		enabled   int
		condition string
	)
	err := row.Scan(&p.ID, &p.Name, &enabled, &p.Priority, &condition, &p.Action, &p.ConfidenceThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan policy: %w", err)
	}
	p.Enabled = enabled != 0

	node, err := ast.Parse([]byte(condition))
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored condition for policy %q: %w", p.ID, err)
	}
	p.Condition = node
	return &p, nil
}

// CreateProposal implements Store.
func (s *SQLiteStore) CreateProposal(ctx context.Context, p *ProposedAction) error {
	rationale, err := json.Marshal(p.Rationale)
	if err != nil {
		return fmt.Errorf("failed to marshal rationale: %w", err)
	}
	var params []byte
	if p.Params != nil {
		if params, err = json.Marshal(p.Params); err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO proposed_actions
			(id, agent, user_id, entity_id, action, confidence, rationale, policy_id, status, params, decided_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Agent, p.UserID, p.EntityID, p.Action, p.Confidence, string(rationale), p.PolicyID,
		string(p.Status), nullableString(string(params)), p.DecidedBy, p.CreatedAt.Unix(), p.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create proposal: %w", err)
	}
	return nil
}

// GetProposal implements Store.
func (s *SQLiteStore) GetProposal(ctx context.Context, id string) (*ProposedAction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent, user_id, entity_id, action, confidence, rationale, policy_id, status, params, decided_by, created_at, updated_at
		FROM proposed_actions WHERE id = ?
	`, id)
	return scanProposal(row)
}

func scanProposal(row scanner) (*ProposedAction, error) {
	var (
		p         ProposedAction
		rationale string
		params    sql.NullString
		decidedBy sql.NullString
		status    string
		created   int64
		updated   int64
	)
	err := row.Scan(&p.ID, &p.Agent, &p.UserID, &p.EntityID, &p.Action, &p.Confidence,
		&rationale, &p.PolicyID, &status, &params, &decidedBy, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan proposal: %w", err)
	}

	p.Status = ProposalStatus(status)
	p.DecidedBy = decidedBy.String
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	if err := json.Unmarshal([]byte(rationale), &p.Rationale); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rationale: %w", err)
	}
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &p.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}
	return &p, nil
}

// HasActiveProposal implements Store.
func (s *SQLiteStore) HasActiveProposal(ctx context.Context, entityID, policyID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM proposed_actions
		WHERE entity_id = ? AND policy_id = ? AND status IN (?, ?)
	`, entityID, policyID, string(StatusPending), string(StatusApproved)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check active proposal: %w", err)
	}
	return n > 0, nil
}

// TransitionProposal implements Store. The conditional UPDATE is the
// compare-and-swap: at most one concurrent caller observes RowsAffected
// of 1 for a given (id, from) pair.
func (s *SQLiteStore) TransitionProposal(ctx context.Context, id string, from, to ProposalStatus, actor string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE proposed_actions
		SET status = ?, decided_by = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), actor, time.Now().UTC().Unix(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition proposal: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Lost the swap. Distinguish missing row from concurrent decision.
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM proposed_actions WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read proposal status: %w", err)
	}
	return ErrConflict
}

// ListProposals implements Store.
func (s *SQLiteStore) ListProposals(ctx context.Context, filter ProposalFilter) ([]*ProposedAction, error) {
	query := `
		SELECT id, agent, user_id, entity_id, action, confidence, rationale, policy_id, status, params, decided_by, created_at, updated_at
		FROM proposed_actions WHERE 1=1
	`
	var args []any
	if filter.Agent != "" {
		query += " AND agent = ?"
		args = append(args, filter.Agent)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var out []*ProposedAction
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AppendAudit implements Store.
func (s *SQLiteStore) AppendAudit(ctx context.Context, a *AuditAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_actions (id, entity_id, action, outcome, actor, evidence_ref, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.EntityID, a.Action, string(a.Outcome), a.Actor, a.EvidenceRef, a.Reason, a.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// ListAudit implements Store.
func (s *SQLiteStore) ListAudit(ctx context.Context, entityID string, limit int) ([]*AuditAction, error) {
	query := `
		SELECT id, entity_id, action, outcome, actor, evidence_ref, reason, created_at
		FROM audit_actions
	`
	var args []any
	if entityID != "" {
		query += " WHERE entity_id = ?"
		args = append(args, entityID)
	}
	query += " ORDER BY created_at DESC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var out []*AuditAction
	for rows.Next() {
		var (
			a        AuditAction
			outcome  string
			evidence sql.NullString
			reason   sql.NullString
			created  int64
		)
		if err := rows.Scan(&a.ID, &a.EntityID, &a.Action, &outcome, &a.Actor, &evidence, &reason, &created); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		a.Outcome = AuditOutcome(outcome)
		a.EvidenceRef = evidence.String
		a.Reason = reason.String
		a.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, &a)
	}
	return out, rows.Err()
}

// AddUserWeight implements Store.
func (s *SQLiteStore) AddUserWeight(ctx context.Context, userID, feature string, delta float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_weights (user_id, feature, weight, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, feature) DO UPDATE SET
			weight = weight + excluded.weight,
			updated_at = excluded.updated_at
	`, userID, feature, delta, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to add user weight: %w", err)
	}
	return nil
}

// GetUserWeights implements Store.
func (s *SQLiteStore) GetUserWeights(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT feature, weight FROM user_weights WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user weights: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			feature string
			weight  float64
		)
		if err := rows.Scan(&feature, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan user weight: %w", err)
		}
		out[feature] = weight
	}
	return out, rows.Err()
}

// BumpPolicyStats implements Store.
func (s *SQLiteStore) BumpPolicyStats(ctx context.Context, policyID, userID string, dFired, dApproved, dRejected int64, windowDays int) error {
	now := time.Now().UTC().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policy_stats (policy_id, user_id, fired, approved, rejected, window_days, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (policy_id, user_id) DO UPDATE SET
			fired = fired + excluded.fired,
			approved = approved + excluded.approved,
			rejected = rejected + excluded.rejected,
			window_days = excluded.window_days,
			updated_at = excluded.updated_at
	`, policyID, userID, dFired, dApproved, dRejected, windowDays, now)
	if err != nil {
		return fmt.Errorf("failed to bump policy stats: %w", err)
	}

	// Derived rates are kept in the row so reads are a plain select.
	_, err = s.db.ExecContext(ctx, `
		UPDATE policy_stats SET
			precision = CASE WHEN fired > 0 THEN CAST(approved AS REAL) / fired ELSE 0 END,
			recall = CASE WHEN approved + rejected > 0 THEN CAST(approved AS REAL) / (approved + rejected) ELSE 0 END
		WHERE policy_id = ? AND user_id = ?
	`, policyID, userID)
	if err != nil {
		return fmt.Errorf("failed to derive policy stats rates: %w", err)
	}
	return nil
}

// GetPolicyStats implements Store.
func (s *SQLiteStore) GetPolicyStats(ctx context.Context, policyID, userID string) (*PolicyStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT policy_id, user_id, fired, approved, rejected, precision, recall, window_days, updated_at
		FROM policy_stats WHERE policy_id = ? AND user_id = ?
	`, policyID, userID)
	return scanPolicyStats(row)
}

// ListPolicyStats implements Store.
func (s *SQLiteStore) ListPolicyStats(ctx context.Context, userID string) ([]*PolicyStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, user_id, fired, approved, rejected, precision, recall, window_days, updated_at
		FROM policy_stats WHERE user_id = ? ORDER BY policy_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list policy stats: %w", err)
	}
	defer rows.Close()

	var out []*PolicyStats
	for rows.Next() {
		st, err := scanPolicyStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanPolicyStats(row scanner) (*PolicyStats, error) {
	var (
		st      PolicyStats
		updated int64
	)
	err := row.Scan(&st.PolicyID, &st.UserID, &st.Fired, &st.Approved, &st.Rejected,
		&st.Precision, &st.Recall, &st.WindowDays, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan policy stats: %w", err)
	}
	st.UpdatedAt = time.Unix(updated, 0).UTC()
	return &st, nil
}

// UpsertLabeledExample implements Store.
func (s *SQLiteStore) UpsertLabeledExample(ctx context.Context, e *LabeledExample) (bool, error) {
	features, err := json.Marshal(e.Features)
	if err != nil {
		return false, fmt.Errorf("failed to marshal features: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO labeled_examples
			(id, agent, key, features, label, confidence, source, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Agent, e.Key, string(features), e.Label, e.Confidence, string(e.Source), e.SourceID, e.CreatedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to upsert labeled example: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListLabeledExamples implements Store.
func (s *SQLiteStore) ListLabeledExamples(ctx context.Context, agent string) ([]*LabeledExample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, key, features, label, confidence, source, source_id, created_at
		FROM labeled_examples WHERE agent = ? ORDER BY id ASC
	`, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to list labeled examples: %w", err)
	}
	defer rows.Close()

	var out []*LabeledExample
	for rows.Next() {
		var (
			e        LabeledExample
			features string
			source   string
			created  int64
		)
		if err := rows.Scan(&e.ID, &e.Agent, &e.Key, &features, &e.Label, &e.Confidence, &source, &e.SourceID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan labeled example: %w", err)
		}
		if err := json.Unmarshal([]byte(features), &e.Features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features: %w", err)
		}
		e.Source = LabelSource(source)
		e.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// CountLabeledExamples implements Store.
func (s *SQLiteStore) CountLabeledExamples(ctx context.Context, agent string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM labeled_examples WHERE agent = ?
	`, agent).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count labeled examples: %w", err)
	}
	return n, nil
}

// LabeledKeys implements Store.
func (s *SQLiteStore) LabeledKeys(ctx context.Context, agent string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT key FROM labeled_examples WHERE agent = ?
	`, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to list labeled keys: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan labeled key: %w", err)
		}
		out[key] = true
	}
	return out, rows.Err()
}

// AddJudgeVerdict implements Store.
func (s *SQLiteStore) AddJudgeVerdict(ctx context.Context, v *JudgeVerdict) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO judge_verdicts (agent, judge_id, key, label, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.Agent, v.JudgeID, v.Key, v.Label, v.Confidence, v.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to add judge verdict: %w", err)
	}
	return nil
}

// ListJudgeVerdicts implements Store.
func (s *SQLiteStore) ListJudgeVerdicts(ctx context.Context, agent string) ([]*JudgeVerdict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent, judge_id, key, label, confidence, created_at
		FROM judge_verdicts WHERE agent = ?
	`, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to list judge verdicts: %w", err)
	}
	defer rows.Close()

	var out []*JudgeVerdict
	for rows.Next() {
		var (
			v       JudgeVerdict
			created int64
		)
		if err := rows.Scan(&v.Agent, &v.JudgeID, &v.Key, &v.Label, &v.Confidence, &created); err != nil {
			return nil, fmt.Errorf("failed to scan judge verdict: %w", err)
		}
		v.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, &v)
	}
	return out, rows.Err()
}

// UpsertJudgeWeight implements Store.
func (s *SQLiteStore) UpsertJudgeWeight(ctx context.Context, w *JudgeWeight) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO judge_weights (agent, judge_id, agreement, calibration_error, weight, samples, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent, judge_id) DO UPDATE SET
			agreement = excluded.agreement,
			calibration_error = excluded.calibration_error,
			weight = excluded.weight,
			samples = excluded.samples,
			updated_at = excluded.updated_at
	`, w.Agent, w.JudgeID, w.Agreement, w.CalibrationError, w.Weight, w.Samples, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert judge weight: %w", err)
	}
	return nil
}

// ListJudgeWeights implements Store.
func (s *SQLiteStore) ListJudgeWeights(ctx context.Context, agent string) ([]*JudgeWeight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent, judge_id, agreement, calibration_error, weight, samples, updated_at
		FROM judge_weights WHERE agent = ? ORDER BY judge_id ASC
	`, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to list judge weights: %w", err)
	}
	defer rows.Close()

	var out []*JudgeWeight
	for rows.Next() {
		var (
			w       JudgeWeight
			updated int64
		)
		if err := rows.Scan(&w.Agent, &w.JudgeID, &w.Agreement, &w.CalibrationError, &w.Weight, &w.Samples, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan judge weight: %w", err)
		}
		w.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, &w)
	}
	return out, rows.Err()
}

// ReplaceReviewQueue implements Store.
func (s *SQLiteStore) ReplaceReviewQueue(ctx context.Context, agent string, items []*ReviewItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM review_queue WHERE agent = ?`, agent); err != nil {
		return fmt.Errorf("failed to clear review queue: %w", err)
	}
	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO review_queue (agent, key, score, reason, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, agent, item.Key, item.Score, item.Reason, item.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert review item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review queue: %w", err)
	}
	return nil
}

// ListReviewQueue implements Store.
func (s *SQLiteStore) ListReviewQueue(ctx context.Context, agent string) ([]*ReviewItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent, key, score, reason, created_at
		FROM review_queue WHERE agent = ? ORDER BY score DESC
	`, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to list review queue: %w", err)
	}
	defer rows.Close()

	var out []*ReviewItem
	for rows.Next() {
		var (
			item    ReviewItem
			created int64
		)
		if err := rows.Scan(&item.Agent, &item.Key, &item.Score, &item.Reason, &created); err != nil {
			return nil, fmt.Errorf("failed to scan review item: %w", err)
		}
		item.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, &item)
	}
	return out, rows.Err()
}

// GetKV implements Store.
func (s *SQLiteStore) GetKV(ctx context.Context, agent, key string) (*KVEntry, error) {
	var (
		e       KVEntry
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT agent, key, value, version, updated_at
		FROM bundle_kv WHERE agent = ? AND key = ?
	`, agent, key).Scan(&e.Agent, &e.Key, &e.Value, &e.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kv entry: %w", err)
	}
	e.UpdatedAt = time.Unix(updated, 0).UTC()
	return &e, nil
}

// PutKV implements Store. The version predicate makes the write an
// optimistic-concurrency swap: a concurrent writer invalidates the
// caller's read and the put fails with ErrVersionConflict.
func (s *SQLiteStore) PutKV(ctx context.Context, agent, key string, value []byte, expectedVersion int64) (int64, error) {
	now := time.Now().UTC().Unix()

	if expectedVersion == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO bundle_kv (agent, key, value, version, updated_at)
			VALUES (?, ?, ?, 1, ?)
		`, agent, key, value, now)
		if err != nil {
			return 0, fmt.Errorf("failed to create kv entry: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return 0, ErrVersionConflict
		}
		return 1, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE bundle_kv SET value = ?, version = version + 1, updated_at = ?
		WHERE agent = ? AND key = ? AND version = ?
	`, value, now, agent, key, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to update kv entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

// Close implements Store. Close is idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})
	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
