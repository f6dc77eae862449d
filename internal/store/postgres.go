package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/atelier-north/studio-ops/internal/db"
	"github.com/atelier-north/studio-ops/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	q       db.Querier
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_suggestion":     `SELECT ` + suggestionCols + ` FROM suggestions WHERE id = $1`,
	"record_change":      `INSERT INTO suggestion_changes (id, suggestion_id, table_name, record_id, field_name, old_value, new_value, change_kind, rolled_back, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)`,
	"reinforce_pattern":  `UPDATE learned_patterns SET evidence_count = evidence_count + 1, confidence = LEAST(confidence + $1, $2), updated_at = $3 WHERE id = $4`,
	"penalize_pattern":   `UPDATE learned_patterns SET times_rejected = times_rejected + 1, confidence = GREATEST(confidence - $1, $2), updated_at = $3 WHERE id = $4`,
	"touch_pattern_used": `UPDATE learned_patterns SET last_used_at = $1 WHERE id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, q: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., bulk email import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS suggestions (
	id               TEXT PRIMARY KEY,
	suggestion_type  TEXT NOT NULL,
	priority         TEXT NOT NULL DEFAULT 'medium',
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_type      TEXT NOT NULL,
	source_id        TEXT,
	source_reference TEXT,
	title            TEXT NOT NULL,
	description      TEXT,
	suggested_action TEXT,
	suggested_data   JSONB NOT NULL,
	target_table     TEXT,
	project_code     TEXT,
	proposal_id      TEXT,
	status           TEXT NOT NULL DEFAULT 'pending',
	rollback_data    JSONB,
	reviewed_by      TEXT,
	reviewed_at      TIMESTAMPTZ,
	review_notes     TEXT,
	correction_data  JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS suggestion_changes (
	id             TEXT PRIMARY KEY,
	suggestion_id  TEXT NOT NULL REFERENCES suggestions(id),
	table_name     TEXT NOT NULL,
	record_id      TEXT NOT NULL,
	field_name     TEXT,
	old_value      TEXT,
	new_value      TEXT,
	change_kind    TEXT NOT NULL,
	rolled_back    BOOLEAN NOT NULL DEFAULT false,
	rolled_back_at TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS learned_patterns (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	type              TEXT NOT NULL,
	condition         JSONB NOT NULL,
	action            JSONB NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	evidence_count    INTEGER NOT NULL DEFAULT 1,
	times_rejected    INTEGER NOT NULL DEFAULT 0,
	active            BOOLEAN NOT NULL DEFAULT true,
	last_validated_at TIMESTAMPTZ,
	last_used_at      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feedback (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	suggestion_id   TEXT,
	suggestion_type TEXT,
	project_code    TEXT,
	original_value  TEXT,
	corrected_value TEXT,
	lesson          TEXT,
	outcome         TEXT NOT NULL,
	actor           TEXT,
	incorporated    BOOLEAN NOT NULL DEFAULT false,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS suggestion_batches (
	id           TEXT PRIMARY KEY,
	group_key    TEXT NOT NULL,
	tier         TEXT NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL,
	signals      JSONB,
	project_code TEXT,
	proposal_id  TEXT,
	status       TEXT NOT NULL DEFAULT 'pending',
	reviewed_by  TEXT,
	reviewed_at  TIMESTAMPTZ,
	review_notes TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS batch_members (
	id       TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL REFERENCES suggestion_batches(id),
	email_id TEXT NOT NULL,
	subject  TEXT,
	status   TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS low_confidence_links (
	id           TEXT PRIMARY KEY,
	email_id     TEXT NOT NULL,
	sender       TEXT NOT NULL,
	project_code TEXT,
	confidence   DOUBLE PRECISION NOT NULL,
	signals      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contacts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	phone      TEXT,
	company    TEXT,
	role       TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS proposals (
	id           TEXT PRIMARY KEY,
	project_code TEXT NOT NULL,
	client_name  TEXT,
	title        TEXT,
	status       TEXT NOT NULL DEFAULT 'Draft',
	value        DOUBLE PRECISION NOT NULL DEFAULT 0,
	sent_date    TIMESTAMPTZ,
	send_count   INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT,
	project_code TEXT,
	assignee     TEXT,
	due_date     TIMESTAMPTZ,
	status       TEXT NOT NULL DEFAULT 'open',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS commitments (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT,
	project_code TEXT,
	assignee     TEXT,
	due_date     TIMESTAMPTZ,
	status       TEXT NOT NULL DEFAULT 'open',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS meetings (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT,
	project_code TEXT,
	assignee     TEXT,
	due_date     TIMESTAMPTZ,
	status       TEXT NOT NULL DEFAULT 'open',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS emails (
	id          TEXT PRIMARY KEY,
	sender      TEXT NOT NULL,
	subject     TEXT,
	snippet     TEXT,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS email_project_links (
	id            TEXT PRIMARY KEY,
	email_id      TEXT NOT NULL,
	transcript_id TEXT,
	project_code  TEXT,
	proposal_id   TEXT,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	pattern_id    TEXT,
	reviewed      BOOLEAN NOT NULL DEFAULT false,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transcript_project_links (
	id            TEXT PRIMARY KEY,
	email_id      TEXT,
	transcript_id TEXT NOT NULL,
	project_code  TEXT,
	proposal_id   TEXT,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	pattern_id    TEXT,
	reviewed      BOOLEAN NOT NULL DEFAULT false,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions(status);
CREATE INDEX IF NOT EXISTS idx_suggestions_type ON suggestions(suggestion_type);
CREATE INDEX IF NOT EXISTS idx_changes_suggestion ON suggestion_changes(suggestion_id);
CREATE INDEX IF NOT EXISTS idx_patterns_name ON learned_patterns(name);
CREATE INDEX IF NOT EXISTS idx_patterns_type ON learned_patterns(type, active);
CREATE INDEX IF NOT EXISTS idx_feedback_incorporated ON feedback(incorporated);
CREATE INDEX IF NOT EXISTS idx_batch_members_batch ON batch_members(batch_id);
CREATE INDEX IF NOT EXISTS idx_batch_members_email ON batch_members(email_id);
CREATE INDEX IF NOT EXISTS idx_email_links_email ON email_project_links(email_id);
CREATE INDEX IF NOT EXISTS idx_transcript_links_transcript ON transcript_project_links(transcript_id);
CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_proposals_code ON proposals(project_code);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.q.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.q.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// InTx runs fn against a transaction-scoped copy of the store.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	scoped := &PostgresStore{pool: s.pool, q: pgxTx}
	if err := fn(scoped); err != nil {
		_ = pgxTx.Rollback(ctx)
		return err
	}
	return eris.Wrap(pgxTx.Commit(ctx), "postgres: commit tx")
}

// --- suggestions ---

func (s *PostgresStore) CreateSuggestion(ctx context.Context, sg *model.Suggestion) error {
	if sg.ID == "" {
		sg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	sg.CreatedAt, sg.UpdatedAt = now, now
	if sg.Status == "" {
		sg.Status = model.SuggestionPending
	}
	if sg.Priority == "" {
		sg.Priority = model.PriorityMedium
	}

	dataJSON, err := json.Marshal(sg.SuggestedData)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal suggested data")
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO suggestions (id, suggestion_type, priority, confidence, source_type, source_id,
			source_reference, title, description, suggested_action, suggested_data, target_table,
			project_code, proposal_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		sg.ID, sg.SuggestionType, string(sg.Priority), sg.Confidence, string(sg.SourceType), sg.SourceID,
		sg.SourceReference, sg.Title, sg.Description, sg.SuggestedAction, string(dataJSON), sg.TargetTable,
		sg.ProjectCode, sg.ProposalID, string(sg.Status), now, now,
	)
	return eris.Wrap(err, "postgres: insert suggestion")
}

func (s *PostgresStore) GetSuggestion(ctx context.Context, id string) (*model.Suggestion, error) {
	row := s.q.QueryRow(ctx, `SELECT `+suggestionCols+` FROM suggestions WHERE id = $1`, id)
	sg, err := scanSuggestionPg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(errNotFound, "suggestion")
	}
	return sg, err
}

func (s *PostgresStore) ListSuggestions(ctx context.Context, f model.SuggestionFilter) ([]model.Suggestion, error) {
	query := `SELECT ` + suggestionCols + ` FROM suggestions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		query += ` AND status = ` + arg(string(f.Status))
	}
	if f.Type != "" {
		query += ` AND suggestion_type = ` + arg(f.Type)
	}
	if f.ProjectCode != "" {
		query += ` AND project_code = ` + arg(f.ProjectCode)
	}
	query += ` ORDER BY created_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if f.Offset > 0 {
		query += ` OFFSET ` + arg(f.Offset)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list suggestions")
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		sg, err := scanSuggestionPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list suggestions iterate")
}

func (s *PostgresStore) UpdateSuggestionReview(ctx context.Context, id string, status model.SuggestionStatus, reviewer, notes string) error {
	now := time.Now().UTC()
	tag, err := s.q.Exec(ctx,
		`UPDATE suggestions SET status = $1, reviewed_by = $2, reviewed_at = $3, review_notes = $4, updated_at = $5 WHERE id = $6`,
		string(status), reviewer, now, notes, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update suggestion review %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "suggestion", id)
}

func (s *PostgresStore) MarkSuggestionApplied(ctx context.Context, id string, rollback map[string]any) error {
	rbJSON, err := json.Marshal(rollback)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal rollback data")
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE suggestions SET status = $1, rollback_data = $2, updated_at = $3 WHERE id = $4`,
		string(model.SuggestionApplied), string(rbJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark suggestion applied %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "suggestion", id)
}

func (s *PostgresStore) ClearSuggestionApplied(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE suggestions SET status = $1, rollback_data = NULL, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(model.SuggestionApproved), time.Now().UTC(), id, string(model.SuggestionApplied),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: clear suggestion applied %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "applied suggestion", id)
}

func (s *PostgresStore) SetSuggestionCorrection(ctx context.Context, id string, corrected *model.SuggestedData) error {
	corrJSON, err := json.Marshal(corrected)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal correction data")
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE suggestions SET correction_data = $1, updated_at = $2 WHERE id = $3`,
		string(corrJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set suggestion correction %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "suggestion", id)
}

// --- change audit ledger ---

func (s *PostgresStore) RecordChange(ctx context.Context, c *model.ChangeAudit) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := s.q.Exec(ctx,
		`INSERT INTO suggestion_changes (id, suggestion_id, table_name, record_id, field_name,
			old_value, new_value, change_kind, rolled_back, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)`,
		c.ID, c.SuggestionID, c.TableName, c.RecordID, c.FieldName,
		c.OldValue, c.NewValue, string(c.ChangeKind), c.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record change")
}

func (s *PostgresStore) ListChanges(ctx context.Context, suggestionID string) ([]model.ChangeAudit, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, suggestion_id, table_name, record_id, field_name, old_value, new_value,
			change_kind, rolled_back, rolled_back_at, created_at
		 FROM suggestion_changes WHERE suggestion_id = $1 ORDER BY created_at`,
		suggestionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list changes")
	}
	defer rows.Close()

	var out []model.ChangeAudit
	for rows.Next() {
		var c model.ChangeAudit
		var field, oldV, newV *string
		var rbAt *time.Time
		if err := rows.Scan(&c.ID, &c.SuggestionID, &c.TableName, &c.RecordID, &field,
			&oldV, &newV, &c.ChangeKind, &c.RolledBack, &rbAt, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change")
		}
		c.FieldName, c.OldValue, c.NewValue = deref(field), deref(oldV), deref(newV)
		c.RolledBackAt = rbAt
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list changes iterate")
}

func (s *PostgresStore) MarkChangesRolledBack(ctx context.Context, suggestionID string) (int, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE suggestion_changes SET rolled_back = true, rolled_back_at = $1 WHERE suggestion_id = $2 AND rolled_back = false`,
		time.Now().UTC(), suggestionID,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: mark changes rolled back")
	}
	return int(tag.RowsAffected()), nil
}

// --- learned patterns ---

func (s *PostgresStore) CreatePattern(ctx context.Context, p *model.LearnedPattern) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	condJSON, err := json.Marshal(p.Condition)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pattern condition")
	}
	actJSON, err := json.Marshal(p.Action)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pattern action")
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO learned_patterns (id, name, type, condition, action, confidence, evidence_count,
			times_rejected, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Name, string(p.Type), string(condJSON), string(actJSON), p.Confidence,
		p.EvidenceCount, p.TimesRejected, p.Active, now, now,
	)
	return eris.Wrap(err, "postgres: insert pattern")
}

func (s *PostgresStore) GetPattern(ctx context.Context, id string) (*model.LearnedPattern, error) {
	row := s.q.QueryRow(ctx, `SELECT `+patternCols+` FROM learned_patterns WHERE id = $1`, id)
	p, err := scanPatternPg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(errNotFound, "pattern")
	}
	return p, err
}

func (s *PostgresStore) GetPatternByName(ctx context.Context, name string) (*model.LearnedPattern, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+patternCols+` FROM learned_patterns WHERE name = $1 AND active = true ORDER BY created_at LIMIT 1`,
		name,
	)
	p, err := scanPatternPg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *PostgresStore) ListPatterns(ctx context.Context, typ model.PatternType, activeOnly bool) ([]model.LearnedPattern, error) {
	query := `SELECT ` + patternCols + ` FROM learned_patterns WHERE 1=1`
	var args []any
	if typ != "" {
		args = append(args, string(typ))
		query += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	if activeOnly {
		query += ` AND active = true`
	}
	query += ` ORDER BY confidence DESC, created_at`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list patterns")
	}
	defer rows.Close()

	var out []model.LearnedPattern
	for rows.Next() {
		p, err := scanPatternPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list patterns iterate")
}

func (s *PostgresStore) ReinforcePattern(ctx context.Context, id string, delta, ceil float64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE learned_patterns SET evidence_count = evidence_count + 1,
			confidence = LEAST(confidence + $1, $2), updated_at = $3 WHERE id = $4`,
		delta, ceil, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reinforce pattern %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "pattern", id)
}

func (s *PostgresStore) PenalizePattern(ctx context.Context, id string, delta, floor float64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE learned_patterns SET times_rejected = times_rejected + 1,
			confidence = GREATEST(confidence - $1, $2), updated_at = $3 WHERE id = $4`,
		delta, floor, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: penalize pattern %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "pattern", id)
}

func (s *PostgresStore) TouchPatternUsed(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx,
		`UPDATE learned_patterns SET last_used_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: touch pattern %s", id)
}

func (s *PostgresStore) MarkPatternValidated(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tag, err := s.q.Exec(ctx,
		`UPDATE learned_patterns SET last_validated_at = $1, updated_at = $2 WHERE id = $3`,
		now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark pattern validated %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "pattern", id)
}

func (s *PostgresStore) DeactivatePattern(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE learned_patterns SET active = false, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate pattern %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "pattern", id)
}

func (s *PostgresStore) DecayPatterns(ctx context.Context, notValidatedFor time.Duration, factor, floor float64) (int, error) {
	cutoff := time.Now().UTC().Add(-notValidatedFor)
	tag, err := s.q.Exec(ctx,
		`UPDATE learned_patterns SET confidence = GREATEST(confidence * $1, $2), updated_at = $3
		 WHERE active = true AND confidence > $2
		   AND COALESCE(last_validated_at, created_at) < $4`,
		factor, floor, time.Now().UTC(), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: decay patterns")
	}
	return int(tag.RowsAffected()), nil
}

// --- feedback ---

func (s *PostgresStore) RecordFeedback(ctx context.Context, f *model.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = time.Now().UTC()
	_, err := s.q.Exec(ctx,
		`INSERT INTO feedback (id, kind, suggestion_id, suggestion_type, project_code,
			original_value, corrected_value, lesson, outcome, actor, incorporated, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, $11)`,
		f.ID, string(f.Kind), f.SuggestionID, f.SuggestionType, f.ProjectCode,
		f.OriginalValue, f.CorrectedValue, f.Lesson, f.Outcome, f.Actor, f.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert feedback")
}

func (s *PostgresStore) ListUnincorporatedFeedback(ctx context.Context) ([]model.Feedback, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, kind, suggestion_id, suggestion_type, project_code, original_value,
			corrected_value, lesson, outcome, actor, incorporated, created_at
		 FROM feedback WHERE incorporated = false ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var out []model.Feedback
	for rows.Next() {
		var f model.Feedback
		var sid, styp, pcode, orig, corr, lesson, actor *string
		if err := rows.Scan(&f.ID, &f.Kind, &sid, &styp, &pcode, &orig,
			&corr, &lesson, &f.Outcome, &actor, &f.Incorporated, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		f.SuggestionID, f.SuggestionType, f.ProjectCode = deref(sid), deref(styp), deref(pcode)
		f.OriginalValue, f.CorrectedValue, f.Lesson, f.Actor = deref(orig), deref(corr), deref(lesson), deref(actor)
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list feedback iterate")
}

func (s *PostgresStore) MarkFeedbackIncorporated(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q.Exec(ctx,
		`UPDATE feedback SET incorporated = true WHERE id = ANY($1)`, ids)
	return eris.Wrap(err, "postgres: mark feedback incorporated")
}

func (s *PostgresStore) CountOutcomes(ctx context.Context, suggestionType, projectPrefix string, since time.Time) (int, int, error) {
	query := `SELECT
		COALESCE(SUM(CASE WHEN outcome = 'approved' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome = 'rejected' THEN 1 ELSE 0 END), 0)
	 FROM feedback WHERE suggestion_type = $1 AND created_at >= $2`
	args := []any{suggestionType, since}
	if projectPrefix != "" {
		args = append(args, projectPrefix+"%")
		query += fmt.Sprintf(` AND project_code LIKE $%d`, len(args))
	}
	var approved, rejected int
	err := s.q.QueryRow(ctx, query, args...).Scan(&approved, &rejected)
	return approved, rejected, eris.Wrap(err, "postgres: count outcomes")
}

// --- batches ---

func (s *PostgresStore) CreateBatch(ctx context.Context, b *model.SuggestionBatch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = time.Now().UTC()
	if b.Status == "" {
		b.Status = model.BatchPending
	}

	signalsJSON, err := json.Marshal(b.Signals)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal batch signals")
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO suggestion_batches (id, group_key, tier, confidence, signals, project_code,
			proposal_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.GroupKey, string(b.Tier), b.Confidence, string(signalsJSON),
		b.ProjectCode, b.ProposalID, string(b.Status), b.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert batch")
	}

	for i := range b.Members {
		m := &b.Members[i]
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.BatchID = b.ID
		if m.Status == "" {
			m.Status = b.Status
		}
		_, err = s.q.Exec(ctx,
			`INSERT INTO batch_members (id, batch_id, email_id, subject, status) VALUES ($1, $2, $3, $4, $5)`,
			m.ID, m.BatchID, m.EmailID, m.Subject, string(m.Status),
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert batch member")
		}
	}
	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*model.SuggestionBatch, error) {
	row := s.q.QueryRow(ctx,
		`SELECT id, group_key, tier, confidence, signals, project_code, proposal_id, status,
			reviewed_by, reviewed_at, review_notes, created_at
		 FROM suggestion_batches WHERE id = $1`, id)

	b, err := scanBatchPg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(errNotFound, "batch")
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.q.Query(ctx,
		`SELECT id, batch_id, email_id, subject, status FROM batch_members WHERE batch_id = $1`, id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batch members")
	}
	defer rows.Close()

	for rows.Next() {
		var m model.BatchMember
		var subject *string
		if err := rows.Scan(&m.ID, &m.BatchID, &m.EmailID, &subject, &m.Status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch member")
		}
		m.Subject = deref(subject)
		b.Members = append(b.Members, m)
	}
	return b, eris.Wrap(rows.Err(), "postgres: batch members iterate")
}

func (s *PostgresStore) ListBatches(ctx context.Context, status model.BatchStatus, limit int) ([]model.SuggestionBatch, error) {
	query := `SELECT id, group_key, tier, confidence, signals, project_code, proposal_id, status,
		reviewed_by, reviewed_at, review_notes, created_at FROM suggestion_batches WHERE 1=1`
	var args []any
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	var out []model.SuggestionBatch
	for rows.Next() {
		b, err := scanBatchPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

func (s *PostgresStore) UpdateBatchReview(ctx context.Context, id string, status model.BatchStatus, reviewer, notes string) error {
	now := time.Now().UTC()
	tag, err := s.q.Exec(ctx,
		`UPDATE suggestion_batches SET status = $1, reviewed_by = $2, reviewed_at = $3, review_notes = $4 WHERE id = $5`,
		string(status), reviewer, now, notes, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch review %s", id)
	}
	if err := checkTagAffected(tag.RowsAffected(), "batch", id); err != nil {
		return err
	}
	_, err = s.q.Exec(ctx,
		`UPDATE batch_members SET status = $1 WHERE batch_id = $2`, string(status), id)
	return eris.Wrapf(err, "postgres: update batch members %s", id)
}

// --- contacts ---

func (s *PostgresStore) CreateContact(ctx context.Context, c *model.Contact) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.q.Exec(ctx,
		`INSERT INTO contacts (id, name, email, phone, company, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.Email, c.Phone, c.Company, c.Role, now, now,
	)
	return eris.Wrap(err, "postgres: insert contact")
}

func (s *PostgresStore) GetContactByID(ctx context.Context, id string) (*model.Contact, error) {
	c, err := scanContactPg(s.q.QueryRow(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(errNotFound, "contact")
	}
	return c, err
}

func (s *PostgresStore) GetContactByEmail(ctx context.Context, email string) (*model.Contact, error) {
	c, err := scanContactPg(s.q.QueryRow(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE LOWER(email) = LOWER($1) LIMIT 1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *PostgresStore) GetContactByName(ctx context.Context, name string, fold bool) (*model.Contact, error) {
	query := `SELECT ` + contactCols + ` FROM contacts WHERE name = $1 LIMIT 1`
	if fold {
		query = `SELECT ` + contactCols + ` FROM contacts WHERE LOWER(name) = LOWER($1) LIMIT 1`
	}
	c, err := scanContactPg(s.q.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *PostgresStore) SearchContactsByName(ctx context.Context, fragment string) ([]model.Contact, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE name ILIKE '%' || $1 || '%' ORDER BY name`,
		fragment,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search contacts")
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContactPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: search contacts iterate")
}

func (s *PostgresStore) UpdateContactFields(ctx context.Context, id string, updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}
	var sets []string
	var args []any
	for col, val := range updates {
		if !contactColumns[col] {
			return eris.Errorf("postgres: unknown contact column %q", col)
		}
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	tag, err := s.q.Exec(ctx,
		`UPDATE contacts SET `+strings.Join(sets, ", ")+fmt.Sprintf(` WHERE id = $%d`, len(args)), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update contact %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "contact", id)
}

func (s *PostgresStore) DeleteContact(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete contact %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "contact", id)
}

// --- proposals ---

func (s *PostgresStore) CreateProposal(ctx context.Context, p *model.Proposal) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = "Draft"
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO proposals (id, project_code, client_name, title, status, value, sent_date, send_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.ProjectCode, p.ClientName, p.Title, p.Status, p.Value, p.SentDate, p.SendCount, now, now,
	)
	return eris.Wrap(err, "postgres: insert proposal")
}

func (s *PostgresStore) GetProposalByID(ctx context.Context, id string) (*model.Proposal, error) {
	p, err := scanProposalPg(s.q.QueryRow(ctx,
		`SELECT `+proposalCols+` FROM proposals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(errNotFound, "proposal")
	}
	return p, err
}

func (s *PostgresStore) GetProposalByCode(ctx context.Context, code string) (*model.Proposal, error) {
	p, err := scanProposalPg(s.q.QueryRow(ctx,
		`SELECT `+proposalCols+` FROM proposals WHERE project_code = $1 LIMIT 1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *PostgresStore) SetProposalValue(ctx context.Context, id string, value float64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE proposals SET value = $1, updated_at = $2 WHERE id = $3`,
		value, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set proposal value %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "proposal", id)
}

func (s *PostgresStore) SetProposalStatus(ctx context.Context, id, status string, sentDate *time.Time, sendCount int) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE proposals SET status = $1, sent_date = $2, send_count = $3, updated_at = $4 WHERE id = $5`,
		status, sentDate, sendCount, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set proposal status %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "proposal", id)
}

// --- work items ---

func (s *PostgresStore) CreateWorkItem(ctx context.Context, table string, w *model.WorkItem) error {
	if !workItemTables[table] {
		return eris.Errorf("postgres: unknown work item table %q", table)
	}
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	w.CreatedAt = time.Now().UTC()
	if w.Status == "" {
		w.Status = "open"
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO `+table+` (id, title, description, project_code, assignee, due_date, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID, w.Title, w.Description, w.ProjectCode, w.Assignee, w.DueDate, w.Status, w.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert into %s", table)
}

func (s *PostgresStore) GetWorkItem(ctx context.Context, table, id string) (*model.WorkItem, error) {
	if !workItemTables[table] {
		return nil, eris.Errorf("postgres: unknown work item table %q", table)
	}
	row := s.q.QueryRow(ctx,
		`SELECT id, title, description, project_code, assignee, due_date, status, created_at
		 FROM `+table+` WHERE id = $1`, id)

	var w model.WorkItem
	var desc, pcode, assignee *string
	err := row.Scan(&w.ID, &w.Title, &desc, &pcode, &assignee, &w.DueDate, &w.Status, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(errNotFound, "work item %s/%s", table, id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: scan %s", table)
	}
	w.Description, w.ProjectCode, w.Assignee = deref(desc), deref(pcode), deref(assignee)
	return &w, nil
}

func (s *PostgresStore) DeleteWorkItem(ctx context.Context, table, id string) error {
	if !workItemTables[table] {
		return eris.Errorf("postgres: unknown work item table %q", table)
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete from %s", table)
	}
	return checkTagAffected(tag.RowsAffected(), table, id)
}

// --- project links ---

func (s *PostgresStore) CreateLink(ctx context.Context, table string, l *model.ProjectLink) error {
	if _, ok := linkTables[table]; !ok {
		return eris.Errorf("postgres: unknown link table %q", table)
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()
	_, err := s.q.Exec(ctx,
		`INSERT INTO `+table+` (id, email_id, transcript_id, project_code, proposal_id, confidence, pattern_id, reviewed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.EmailID, l.TranscriptID, l.ProjectCode, l.ProposalID, l.Confidence, l.PatternID,
		l.Reviewed, l.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert into %s", table)
}

func (s *PostgresStore) GetLink(ctx context.Context, table, id string) (*model.ProjectLink, error) {
	if _, ok := linkTables[table]; !ok {
		return nil, eris.Errorf("postgres: unknown link table %q", table)
	}
	row := s.q.QueryRow(ctx,
		`SELECT id, email_id, transcript_id, project_code, proposal_id, confidence, pattern_id, reviewed, created_at
		 FROM `+table+` WHERE id = $1`, id)

	var l model.ProjectLink
	var emailID, transcriptID, pcode, prop, patternID *string
	err := row.Scan(&l.ID, &emailID, &transcriptID, &pcode, &prop, &l.Confidence, &patternID, &l.Reviewed, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(errNotFound, "link %s/%s", table, id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: scan %s", table)
	}
	l.EmailID, l.TranscriptID = deref(emailID), deref(transcriptID)
	l.ProjectCode, l.ProposalID, l.PatternID = deref(pcode), deref(prop), deref(patternID)
	return &l, nil
}

func (s *PostgresStore) LinkExists(ctx context.Context, table, sourceID, projectCode, proposalID string) (bool, error) {
	sourceCol, ok := linkTables[table]
	if !ok {
		return false, eris.Errorf("postgres: unknown link table %q", table)
	}
	query := `SELECT COUNT(1) FROM ` + table + ` WHERE ` + sourceCol + ` = $1`
	args := []any{sourceID}
	if projectCode != "" {
		query += ` AND project_code = $2`
		args = append(args, projectCode)
	} else {
		query += ` AND proposal_id = $2`
		args = append(args, proposalID)
	}
	var n int
	if err := s.q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return false, eris.Wrapf(err, "postgres: link exists %s", table)
	}
	return n > 0, nil
}

func (s *PostgresStore) DeleteLink(ctx context.Context, table, id string) error {
	if _, ok := linkTables[table]; !ok {
		return eris.Errorf("postgres: unknown link table %q", table)
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete link %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "link", id)
}

func (s *PostgresStore) SetLinkReviewed(ctx context.Context, table, id string, reviewed bool) error {
	if _, ok := linkTables[table]; !ok {
		return eris.Errorf("postgres: unknown link table %q", table)
	}
	tag, err := s.q.Exec(ctx, `UPDATE `+table+` SET reviewed = $1 WHERE id = $2`, reviewed, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set link reviewed %s", id)
	}
	return checkTagAffected(tag.RowsAffected(), "link", id)
}

// --- emails and low-confidence log ---

func (s *PostgresStore) CreateEmail(ctx context.Context, e *model.Email) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO emails (id, sender, subject, snippet, received_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Sender, e.Subject, e.Snippet, e.ReceivedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert email")
}

func (s *PostgresStore) ListUnlinkedEmails(ctx context.Context, since time.Time, limit int) ([]model.Email, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.q.Query(ctx,
		`SELECT e.id, e.sender, e.subject, e.snippet, e.received_at FROM emails e
		 WHERE e.received_at >= $1
		   AND NOT EXISTS (SELECT 1 FROM email_project_links l WHERE l.email_id = e.id)
		   AND NOT EXISTS (SELECT 1 FROM low_confidence_links c WHERE c.email_id = e.id)
		   AND NOT EXISTS (SELECT 1 FROM batch_members m WHERE m.email_id = e.id)
		 ORDER BY e.received_at LIMIT $2`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unlinked emails")
	}
	defer rows.Close()

	var out []model.Email
	for rows.Next() {
		var e model.Email
		var subject, snippet *string
		if err := rows.Scan(&e.ID, &e.Sender, &subject, &snippet, &e.ReceivedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan email")
		}
		e.Subject, e.Snippet = deref(subject), deref(snippet)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list unlinked emails iterate")
}

func (s *PostgresStore) CreateLowConfidenceLink(ctx context.Context, l *model.LowConfidenceLink) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()
	signalsJSON, err := json.Marshal(l.Signals)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal signals")
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO low_confidence_links (id, email_id, sender, project_code, confidence, signals, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.EmailID, l.Sender, l.ProjectCode, l.Confidence, string(signalsJSON), l.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert low confidence link")
}

// --- helpers ---

func checkTagAffected(n int64, entity, id string) error {
	if n == 0 {
		return eris.Wrapf(errNotFound, "%s %s", entity, id)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type pgScannable interface {
	Scan(dest ...any) error
}

func scanSuggestionPg(row pgScannable) (*model.Suggestion, error) {
	var sg model.Suggestion
	var sourceID, sourceRef, desc, action, targetTable, pcode, prop *string
	var rollbackJSON, reviewedBy, notes, corrJSON *string
	var dataJSON string

	err := row.Scan(&sg.ID, &sg.SuggestionType, &sg.Priority, &sg.Confidence, &sg.SourceType,
		&sourceID, &sourceRef, &sg.Title, &desc, &action, &dataJSON, &targetTable,
		&pcode, &prop, &sg.Status, &rollbackJSON, &reviewedBy, &sg.ReviewedAt, &notes,
		&corrJSON, &sg.CreatedAt, &sg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan suggestion")
	}

	sg.SourceID, sg.SourceReference, sg.Description = deref(sourceID), deref(sourceRef), deref(desc)
	sg.SuggestedAction, sg.TargetTable = deref(action), deref(targetTable)
	sg.ProjectCode, sg.ProposalID = deref(pcode), deref(prop)
	sg.ReviewedBy, sg.ReviewNotes = deref(reviewedBy), deref(notes)
	if err := json.Unmarshal([]byte(dataJSON), &sg.SuggestedData); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal suggested data")
	}
	if rollbackJSON != nil && *rollbackJSON != "" {
		if err := json.Unmarshal([]byte(*rollbackJSON), &sg.RollbackData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal rollback data")
		}
	}
	if corrJSON != nil && *corrJSON != "" {
		sg.CorrectionData = &model.SuggestedData{}
		if err := json.Unmarshal([]byte(*corrJSON), sg.CorrectionData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal correction data")
		}
	}
	return &sg, nil
}

func scanPatternPg(row pgScannable) (*model.LearnedPattern, error) {
	var p model.LearnedPattern
	var condJSON, actJSON string

	err := row.Scan(&p.ID, &p.Name, &p.Type, &condJSON, &actJSON, &p.Confidence,
		&p.EvidenceCount, &p.TimesRejected, &p.Active, &p.LastValidatedAt, &p.LastUsedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan pattern")
	}

	if err := json.Unmarshal([]byte(condJSON), &p.Condition); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal pattern condition")
	}
	if err := json.Unmarshal([]byte(actJSON), &p.Action); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal pattern action")
	}
	return &p, nil
}

func scanBatchPg(row pgScannable) (*model.SuggestionBatch, error) {
	var b model.SuggestionBatch
	var signalsJSON, pcode, prop, reviewedBy, notes *string

	err := row.Scan(&b.ID, &b.GroupKey, &b.Tier, &b.Confidence, &signalsJSON, &pcode,
		&prop, &b.Status, &reviewedBy, &b.ReviewedAt, &notes, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan batch")
	}

	b.ProjectCode, b.ProposalID = deref(pcode), deref(prop)
	b.ReviewedBy, b.ReviewNotes = deref(reviewedBy), deref(notes)
	if signalsJSON != nil && *signalsJSON != "" {
		if err := json.Unmarshal([]byte(*signalsJSON), &b.Signals); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal batch signals")
		}
	}
	return &b, nil
}

func scanContactPg(row pgScannable) (*model.Contact, error) {
	var c model.Contact
	var phone, company, role *string
	err := row.Scan(&c.ID, &c.Name, &c.Email, &phone, &company, &role, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan contact")
	}
	c.Phone, c.Company, c.Role = deref(phone), deref(company), deref(role)
	return &c, nil
}

func scanProposalPg(row pgScannable) (*model.Proposal, error) {
	var p model.Proposal
	var client, title *string
	err := row.Scan(&p.ID, &p.ProjectCode, &client, &title, &p.Status, &p.Value,
		&p.SentDate, &p.SendCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan proposal")
	}
	p.ClientName, p.Title = deref(client), deref(title)
	return &p, nil
}
