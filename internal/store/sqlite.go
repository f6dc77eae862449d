package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/atelier-north/studio-ops/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
	q  querier
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS suggestions (
	id               TEXT PRIMARY KEY,
	suggestion_type  TEXT NOT NULL,
	priority         TEXT NOT NULL DEFAULT 'medium',
	confidence       REAL NOT NULL DEFAULT 0,
	source_type      TEXT NOT NULL,
	source_id        TEXT,
	source_reference TEXT,
	title            TEXT NOT NULL,
	description      TEXT,
	suggested_action TEXT,
	suggested_data   TEXT NOT NULL,
	target_table     TEXT,
	project_code     TEXT,
	proposal_id      TEXT,
	status           TEXT NOT NULL DEFAULT 'pending',
	rollback_data    TEXT,
	reviewed_by      TEXT,
	reviewed_at      DATETIME,
	review_notes     TEXT,
	correction_data  TEXT,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
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
	rolled_back    INTEGER NOT NULL DEFAULT 0,
	rolled_back_at DATETIME,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS learned_patterns (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	type              TEXT NOT NULL,
	condition         TEXT NOT NULL,
	action            TEXT NOT NULL,
	confidence        REAL NOT NULL DEFAULT 0.5,
	evidence_count    INTEGER NOT NULL DEFAULT 1,
	times_rejected    INTEGER NOT NULL DEFAULT 0,
	active            INTEGER NOT NULL DEFAULT 1,
	last_validated_at DATETIME,
	last_used_at      DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
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
	incorporated    INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS suggestion_batches (
	id           TEXT PRIMARY KEY,
	group_key    TEXT NOT NULL,
	tier         TEXT NOT NULL,
	confidence   REAL NOT NULL,
	signals      TEXT,
	project_code TEXT,
	proposal_id  TEXT,
	status       TEXT NOT NULL DEFAULT 'pending',
	reviewed_by  TEXT,
	reviewed_at  DATETIME,
	review_notes TEXT,
	created_at   DATETIME NOT NULL
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
	confidence   REAL NOT NULL,
	signals      TEXT,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	phone      TEXT,
	company    TEXT,
	role       TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS proposals (
	id           TEXT PRIMARY KEY,
	project_code TEXT NOT NULL,
	client_name  TEXT,
	title        TEXT,
	status       TEXT NOT NULL DEFAULT 'Draft',
	value        REAL NOT NULL DEFAULT 0,
	sent_date    DATETIME,
	send_count   INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT,
	project_code TEXT,
	assignee     TEXT,
	due_date     DATETIME,
	status       TEXT NOT NULL DEFAULT 'open',
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS commitments (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT,
	project_code TEXT,
	assignee     TEXT,
	due_date     DATETIME,
	status       TEXT NOT NULL DEFAULT 'open',
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS meetings (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT,
	project_code TEXT,
	assignee     TEXT,
	due_date     DATETIME,
	status       TEXT NOT NULL DEFAULT 'open',
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
	id          TEXT PRIMARY KEY,
	sender      TEXT NOT NULL,
	subject     TEXT,
	snippet     TEXT,
	received_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS email_project_links (
	id            TEXT PRIMARY KEY,
	email_id      TEXT NOT NULL,
	transcript_id TEXT,
	project_code  TEXT,
	proposal_id   TEXT,
	confidence    REAL NOT NULL DEFAULT 0,
	pattern_id    TEXT,
	reviewed      INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transcript_project_links (
	id            TEXT PRIMARY KEY,
	email_id      TEXT,
	transcript_id TEXT NOT NULL,
	project_code  TEXT,
	proposal_id   TEXT,
	confidence    REAL NOT NULL DEFAULT 0,
	pattern_id    TEXT,
	reviewed      INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InTx runs fn against a transaction-scoped copy of the store.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	scoped := &SQLiteStore{db: s.db, q: sqlTx}
	if err := fn(scoped); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return eris.Wrap(sqlTx.Commit(), "sqlite: commit tx")
}

// --- suggestions ---

func (s *SQLiteStore) CreateSuggestion(ctx context.Context, sg *model.Suggestion) error {
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
		return eris.Wrap(err, "sqlite: marshal suggested data")
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO suggestions (id, suggestion_type, priority, confidence, source_type, source_id,
			source_reference, title, description, suggested_action, suggested_data, target_table,
			project_code, proposal_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.SuggestionType, string(sg.Priority), sg.Confidence, string(sg.SourceType), sg.SourceID,
		sg.SourceReference, sg.Title, sg.Description, sg.SuggestedAction, string(dataJSON), sg.TargetTable,
		sg.ProjectCode, sg.ProposalID, string(sg.Status), now, now,
	)
	return eris.Wrap(err, "sqlite: insert suggestion")
}

const suggestionCols = `id, suggestion_type, priority, confidence, source_type, source_id,
	source_reference, title, description, suggested_action, suggested_data, target_table,
	project_code, proposal_id, status, rollback_data, reviewed_by, reviewed_at, review_notes,
	correction_data, created_at, updated_at`

func (s *SQLiteStore) GetSuggestion(ctx context.Context, id string) (*model.Suggestion, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+suggestionCols+` FROM suggestions WHERE id = ?`, id)
	return scanSuggestion(row)
}

func (s *SQLiteStore) ListSuggestions(ctx context.Context, f model.SuggestionFilter) ([]model.Suggestion, error) {
	query := `SELECT ` + suggestionCols + ` FROM suggestions WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		query += ` AND suggestion_type = ?`
		args = append(args, f.Type)
	}
	if f.ProjectCode != "" {
		query += ` AND project_code = ?`
		args = append(args, f.ProjectCode)
	}
	query += ` ORDER BY created_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list suggestions")
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list suggestions iterate")
}

func (s *SQLiteStore) UpdateSuggestionReview(ctx context.Context, id string, status model.SuggestionStatus, reviewer, notes string) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE suggestions SET status = ?, reviewed_by = ?, reviewed_at = ?, review_notes = ?, updated_at = ? WHERE id = ?`,
		string(status), reviewer, now, notes, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update suggestion review %s", id)
	}
	return checkRowsAffected(res, "suggestion", id)
}

func (s *SQLiteStore) MarkSuggestionApplied(ctx context.Context, id string, rollback map[string]any) error {
	rbJSON, err := json.Marshal(rollback)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal rollback data")
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE suggestions SET status = ?, rollback_data = ?, updated_at = ? WHERE id = ?`,
		string(model.SuggestionApplied), string(rbJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark suggestion applied %s", id)
	}
	return checkRowsAffected(res, "suggestion", id)
}

func (s *SQLiteStore) ClearSuggestionApplied(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE suggestions SET status = ?, rollback_data = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.SuggestionApproved), time.Now().UTC(), id, string(model.SuggestionApplied),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: clear suggestion applied %s", id)
	}
	return checkRowsAffected(res, "applied suggestion", id)
}

func (s *SQLiteStore) SetSuggestionCorrection(ctx context.Context, id string, corrected *model.SuggestedData) error {
	corrJSON, err := json.Marshal(corrected)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal correction data")
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE suggestions SET correction_data = ?, updated_at = ? WHERE id = ?`,
		string(corrJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set suggestion correction %s", id)
	}
	return checkRowsAffected(res, "suggestion", id)
}

// --- change audit ledger ---

func (s *SQLiteStore) RecordChange(ctx context.Context, c *model.ChangeAudit) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO suggestion_changes (id, suggestion_id, table_name, record_id, field_name,
			old_value, new_value, change_kind, rolled_back, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		c.ID, c.SuggestionID, c.TableName, c.RecordID, c.FieldName,
		c.OldValue, c.NewValue, string(c.ChangeKind), c.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record change")
}

func (s *SQLiteStore) ListChanges(ctx context.Context, suggestionID string) ([]model.ChangeAudit, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, suggestion_id, table_name, record_id, field_name, old_value, new_value,
			change_kind, rolled_back, rolled_back_at, created_at
		 FROM suggestion_changes WHERE suggestion_id = ? ORDER BY created_at`,
		suggestionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list changes")
	}
	defer rows.Close()

	var out []model.ChangeAudit
	for rows.Next() {
		var c model.ChangeAudit
		var field, oldV, newV sql.NullString
		var rbAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.SuggestionID, &c.TableName, &c.RecordID, &field,
			&oldV, &newV, &c.ChangeKind, &c.RolledBack, &rbAt, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change")
		}
		c.FieldName, c.OldValue, c.NewValue = field.String, oldV.String, newV.String
		if rbAt.Valid {
			t := rbAt.Time
			c.RolledBackAt = &t
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list changes iterate")
}

func (s *SQLiteStore) MarkChangesRolledBack(ctx context.Context, suggestionID string) (int, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE suggestion_changes SET rolled_back = 1, rolled_back_at = ? WHERE suggestion_id = ? AND rolled_back = 0`,
		time.Now().UTC(), suggestionID,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: mark changes rolled back")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// --- learned patterns ---

func (s *SQLiteStore) CreatePattern(ctx context.Context, p *model.LearnedPattern) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	condJSON, err := json.Marshal(p.Condition)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pattern condition")
	}
	actJSON, err := json.Marshal(p.Action)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pattern action")
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO learned_patterns (id, name, type, condition, action, confidence, evidence_count,
			times_rejected, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(p.Type), string(condJSON), string(actJSON), p.Confidence,
		p.EvidenceCount, p.TimesRejected, boolToInt(p.Active), now, now,
	)
	return eris.Wrap(err, "sqlite: insert pattern")
}

const patternCols = `id, name, type, condition, action, confidence, evidence_count,
	times_rejected, active, last_validated_at, last_used_at, created_at, updated_at`

func (s *SQLiteStore) GetPattern(ctx context.Context, id string) (*model.LearnedPattern, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+patternCols+` FROM learned_patterns WHERE id = ?`, id)
	return scanPattern(row)
}

func (s *SQLiteStore) GetPatternByName(ctx context.Context, name string) (*model.LearnedPattern, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+patternCols+` FROM learned_patterns WHERE name = ? AND active = 1 ORDER BY created_at LIMIT 1`,
		name,
	)
	p, err := scanPattern(row)
	if err != nil && eris.Is(err, errNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) ListPatterns(ctx context.Context, typ model.PatternType, activeOnly bool) ([]model.LearnedPattern, error) {
	query := `SELECT ` + patternCols + ` FROM learned_patterns WHERE 1=1`
	var args []any
	if typ != "" {
		query += ` AND type = ?`
		args = append(args, string(typ))
	}
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY confidence DESC, created_at`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list patterns")
	}
	defer rows.Close()

	var out []model.LearnedPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list patterns iterate")
}

// ReinforcePattern atomically bumps evidence and confidence; the increment
// happens in SQL so concurrent reviewers cannot lose updates.
func (s *SQLiteStore) ReinforcePattern(ctx context.Context, id string, delta, ceil float64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE learned_patterns SET evidence_count = evidence_count + 1,
			confidence = MIN(confidence + ?, ?), updated_at = ? WHERE id = ?`,
		delta, ceil, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reinforce pattern %s", id)
	}
	return checkRowsAffected(res, "pattern", id)
}

func (s *SQLiteStore) PenalizePattern(ctx context.Context, id string, delta, floor float64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE learned_patterns SET times_rejected = times_rejected + 1,
			confidence = MAX(confidence - ?, ?), updated_at = ? WHERE id = ?`,
		delta, floor, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: penalize pattern %s", id)
	}
	return checkRowsAffected(res, "pattern", id)
}

func (s *SQLiteStore) TouchPatternUsed(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE learned_patterns SET last_used_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: touch pattern %s", id)
}

func (s *SQLiteStore) MarkPatternValidated(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE learned_patterns SET last_validated_at = ?, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark pattern validated %s", id)
	}
	return checkRowsAffected(res, "pattern", id)
}

func (s *SQLiteStore) DeactivatePattern(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE learned_patterns SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: deactivate pattern %s", id)
	}
	return checkRowsAffected(res, "pattern", id)
}

func (s *SQLiteStore) DecayPatterns(ctx context.Context, notValidatedFor time.Duration, factor, floor float64) (int, error) {
	cutoff := time.Now().UTC().Add(-notValidatedFor)
	res, err := s.q.ExecContext(ctx,
		`UPDATE learned_patterns SET confidence = MAX(confidence * ?, ?), updated_at = ?
		 WHERE active = 1 AND confidence > ?
		   AND COALESCE(last_validated_at, created_at) < ?`,
		factor, floor, time.Now().UTC(), floor, cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: decay patterns")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// --- feedback ---

func (s *SQLiteStore) RecordFeedback(ctx context.Context, f *model.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO feedback (id, kind, suggestion_id, suggestion_type, project_code,
			original_value, corrected_value, lesson, outcome, actor, incorporated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		f.ID, string(f.Kind), f.SuggestionID, f.SuggestionType, f.ProjectCode,
		f.OriginalValue, f.CorrectedValue, f.Lesson, f.Outcome, f.Actor, f.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert feedback")
}

func (s *SQLiteStore) ListUnincorporatedFeedback(ctx context.Context) ([]model.Feedback, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, kind, suggestion_id, suggestion_type, project_code, original_value,
			corrected_value, lesson, outcome, actor, incorporated, created_at
		 FROM feedback WHERE incorporated = 0 ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close()

	var out []model.Feedback
	for rows.Next() {
		var f model.Feedback
		var sid, styp, pcode, orig, corr, lesson, actor sql.NullString
		if err := rows.Scan(&f.ID, &f.Kind, &sid, &styp, &pcode, &orig,
			&corr, &lesson, &f.Outcome, &actor, &f.Incorporated, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		f.SuggestionID, f.SuggestionType, f.ProjectCode = sid.String, styp.String, pcode.String
		f.OriginalValue, f.CorrectedValue, f.Lesson, f.Actor = orig.String, corr.String, lesson.String, actor.String
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list feedback iterate")
}

func (s *SQLiteStore) MarkFeedbackIncorporated(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.q.ExecContext(ctx,
		`UPDATE feedback SET incorporated = 1 WHERE id IN (`+placeholders+`)`, args...)
	return eris.Wrap(err, "sqlite: mark feedback incorporated")
}

func (s *SQLiteStore) CountOutcomes(ctx context.Context, suggestionType, projectPrefix string, since time.Time) (int, int, error) {
	query := `SELECT
		COALESCE(SUM(CASE WHEN outcome = 'approved' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome = 'rejected' THEN 1 ELSE 0 END), 0)
	 FROM feedback WHERE suggestion_type = ? AND created_at >= ?`
	args := []any{suggestionType, since}
	if projectPrefix != "" {
		query += ` AND project_code LIKE ?`
		args = append(args, projectPrefix+"%")
	}
	var approved, rejected int
	err := s.q.QueryRowContext(ctx, query, args...).Scan(&approved, &rejected)
	return approved, rejected, eris.Wrap(err, "sqlite: count outcomes")
}

// --- batches ---

func (s *SQLiteStore) CreateBatch(ctx context.Context, b *model.SuggestionBatch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = time.Now().UTC()
	if b.Status == "" {
		b.Status = model.BatchPending
	}

	signalsJSON, err := json.Marshal(b.Signals)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal batch signals")
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO suggestion_batches (id, group_key, tier, confidence, signals, project_code,
			proposal_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.GroupKey, string(b.Tier), b.Confidence, string(signalsJSON),
		b.ProjectCode, b.ProposalID, string(b.Status), b.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert batch")
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
		_, err = s.q.ExecContext(ctx,
			`INSERT INTO batch_members (id, batch_id, email_id, subject, status) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.BatchID, m.EmailID, m.Subject, string(m.Status),
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert batch member")
		}
	}
	return nil
}

func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*model.SuggestionBatch, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, group_key, tier, confidence, signals, project_code, proposal_id, status,
			reviewed_by, reviewed_at, review_notes, created_at
		 FROM suggestion_batches WHERE id = ?`, id)

	b, err := scanBatch(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT id, batch_id, email_id, subject, status FROM batch_members WHERE batch_id = ?`, id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batch members")
	}
	defer rows.Close()

	for rows.Next() {
		var m model.BatchMember
		var subject sql.NullString
		if err := rows.Scan(&m.ID, &m.BatchID, &m.EmailID, &subject, &m.Status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch member")
		}
		m.Subject = subject.String
		b.Members = append(b.Members, m)
	}
	return b, eris.Wrap(rows.Err(), "sqlite: batch members iterate")
}

func (s *SQLiteStore) ListBatches(ctx context.Context, status model.BatchStatus, limit int) ([]model.SuggestionBatch, error) {
	query := `SELECT id, group_key, tier, confidence, signals, project_code, proposal_id, status,
		reviewed_by, reviewed_at, review_notes, created_at FROM suggestion_batches WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close()

	var out []model.SuggestionBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

func (s *SQLiteStore) UpdateBatchReview(ctx context.Context, id string, status model.BatchStatus, reviewer, notes string) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE suggestion_batches SET status = ?, reviewed_by = ?, reviewed_at = ?, review_notes = ? WHERE id = ?`,
		string(status), reviewer, now, notes, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch review %s", id)
	}
	if err := checkRowsAffected(res, "batch", id); err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`UPDATE batch_members SET status = ? WHERE batch_id = ?`, string(status), id)
	return eris.Wrapf(err, "sqlite: update batch members %s", id)
}

// --- contacts ---

func (s *SQLiteStore) CreateContact(ctx context.Context, c *model.Contact) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO contacts (id, name, email, phone, company, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.Company, c.Role, now, now,
	)
	return eris.Wrap(err, "sqlite: insert contact")
}

const contactCols = `id, name, email, phone, company, role, created_at, updated_at`

func (s *SQLiteStore) GetContactByID(ctx context.Context, id string) (*model.Contact, error) {
	return scanContact(s.q.QueryRowContext(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE id = ?`, id))
}

func (s *SQLiteStore) GetContactByEmail(ctx context.Context, email string) (*model.Contact, error) {
	c, err := scanContact(s.q.QueryRowContext(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE LOWER(email) = LOWER(?) LIMIT 1`, email))
	if err != nil && eris.Is(err, errNotFound) {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) GetContactByName(ctx context.Context, name string, fold bool) (*model.Contact, error) {
	query := `SELECT ` + contactCols + ` FROM contacts WHERE name = ? LIMIT 1`
	if fold {
		query = `SELECT ` + contactCols + ` FROM contacts WHERE LOWER(name) = LOWER(?) LIMIT 1`
	}
	c, err := scanContact(s.q.QueryRowContext(ctx, query, name))
	if err != nil && eris.Is(err, errNotFound) {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) SearchContactsByName(ctx context.Context, fragment string) ([]model.Contact, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE LOWER(name) LIKE '%' || LOWER(?) || '%' ORDER BY name`,
		fragment,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search contacts")
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: search contacts iterate")
}

// contactColumns whitelists the fields a contact update may touch.
var contactColumns = map[string]bool{
	"name": true, "email": true, "phone": true, "company": true, "role": true,
}

func (s *SQLiteStore) UpdateContactFields(ctx context.Context, id string, updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}
	var sets []string
	var args []any
	for col, val := range updates {
		if !contactColumns[col] {
			return eris.Errorf("sqlite: unknown contact column %q", col)
		}
		sets = append(sets, fmt.Sprintf("%s = ?", col))
		args = append(args, val)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := s.q.ExecContext(ctx,
		`UPDATE contacts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update contact %s", id)
	}
	return checkRowsAffected(res, "contact", id)
}

func (s *SQLiteStore) DeleteContact(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete contact %s", id)
	}
	return checkRowsAffected(res, "contact", id)
}

// --- proposals ---

const proposalCols = `id, project_code, client_name, title, status, value, sent_date, send_count, created_at, updated_at`

func (s *SQLiteStore) CreateProposal(ctx context.Context, p *model.Proposal) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = "Draft"
	}
	var sd any
	if p.SentDate != nil {
		sd = p.SentDate.UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO proposals (id, project_code, client_name, title, status, value, sent_date, send_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectCode, p.ClientName, p.Title, p.Status, p.Value, sd, p.SendCount, now, now,
	)
	return eris.Wrap(err, "sqlite: insert proposal")
}

func (s *SQLiteStore) GetProposalByID(ctx context.Context, id string) (*model.Proposal, error) {
	return scanProposal(s.q.QueryRowContext(ctx,
		`SELECT `+proposalCols+` FROM proposals WHERE id = ?`, id))
}

func (s *SQLiteStore) GetProposalByCode(ctx context.Context, code string) (*model.Proposal, error) {
	p, err := scanProposal(s.q.QueryRowContext(ctx,
		`SELECT `+proposalCols+` FROM proposals WHERE project_code = ? LIMIT 1`, code))
	if err != nil && eris.Is(err, errNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) SetProposalValue(ctx context.Context, id string, value float64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE proposals SET value = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set proposal value %s", id)
	}
	return checkRowsAffected(res, "proposal", id)
}

func (s *SQLiteStore) SetProposalStatus(ctx context.Context, id, status string, sentDate *time.Time, sendCount int) error {
	var sd any
	if sentDate != nil {
		sd = sentDate.UTC()
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE proposals SET status = ?, sent_date = ?, send_count = ?, updated_at = ? WHERE id = ?`,
		status, sd, sendCount, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set proposal status %s", id)
	}
	return checkRowsAffected(res, "proposal", id)
}

// --- work items ---

var workItemTables = map[string]bool{
	model.TableTasks: true, model.TableCommitments: true, model.TableMeetings: true,
}

func (s *SQLiteStore) CreateWorkItem(ctx context.Context, table string, w *model.WorkItem) error {
	if !workItemTables[table] {
		return eris.Errorf("sqlite: unknown work item table %q", table)
	}
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	w.CreatedAt = time.Now().UTC()
	if w.Status == "" {
		w.Status = "open"
	}
	var due any
	if w.DueDate != nil {
		due = w.DueDate.UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO `+table+` (id, title, description, project_code, assignee, due_date, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Title, w.Description, w.ProjectCode, w.Assignee, due, w.Status, w.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert into %s", table)
}

func (s *SQLiteStore) GetWorkItem(ctx context.Context, table, id string) (*model.WorkItem, error) {
	if !workItemTables[table] {
		return nil, eris.Errorf("sqlite: unknown work item table %q", table)
	}
	row := s.q.QueryRowContext(ctx,
		`SELECT id, title, description, project_code, assignee, due_date, status, created_at
		 FROM `+table+` WHERE id = ?`, id)

	var w model.WorkItem
	var desc, pcode, assignee sql.NullString
	var due sql.NullTime
	err := row.Scan(&w.ID, &w.Title, &desc, &pcode, &assignee, &due, &w.Status, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(errNotFound, "work item %s/%s", table, id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: scan %s", table)
	}
	w.Description, w.ProjectCode, w.Assignee = desc.String, pcode.String, assignee.String
	if due.Valid {
		t := due.Time
		w.DueDate = &t
	}
	return &w, nil
}

func (s *SQLiteStore) DeleteWorkItem(ctx context.Context, table, id string) error {
	if !workItemTables[table] {
		return eris.Errorf("sqlite: unknown work item table %q", table)
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete from %s", table)
	}
	return checkRowsAffected(res, table, id)
}

// --- project links ---

var linkTables = map[string]string{
	model.TableEmailLinks:      "email_id",
	model.TableTranscriptLinks: "transcript_id",
}

func (s *SQLiteStore) CreateLink(ctx context.Context, table string, l *model.ProjectLink) error {
	if _, ok := linkTables[table]; !ok {
		return eris.Errorf("sqlite: unknown link table %q", table)
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO `+table+` (id, email_id, transcript_id, project_code, proposal_id, confidence, pattern_id, reviewed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.EmailID, l.TranscriptID, l.ProjectCode, l.ProposalID, l.Confidence, l.PatternID,
		boolToInt(l.Reviewed), l.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert into %s", table)
}

func (s *SQLiteStore) GetLink(ctx context.Context, table, id string) (*model.ProjectLink, error) {
	if _, ok := linkTables[table]; !ok {
		return nil, eris.Errorf("sqlite: unknown link table %q", table)
	}
	row := s.q.QueryRowContext(ctx,
		`SELECT id, email_id, transcript_id, project_code, proposal_id, confidence, pattern_id, reviewed, created_at
		 FROM `+table+` WHERE id = ?`, id)

	var l model.ProjectLink
	var emailID, transcriptID, pcode, prop, patternID sql.NullString
	err := row.Scan(&l.ID, &emailID, &transcriptID, &pcode, &prop, &l.Confidence, &patternID, &l.Reviewed, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(errNotFound, "link %s/%s", table, id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: scan %s", table)
	}
	l.EmailID, l.TranscriptID = emailID.String, transcriptID.String
	l.ProjectCode, l.ProposalID, l.PatternID = pcode.String, prop.String, patternID.String
	return &l, nil
}

func (s *SQLiteStore) LinkExists(ctx context.Context, table, sourceID, projectCode, proposalID string) (bool, error) {
	sourceCol, ok := linkTables[table]
	if !ok {
		return false, eris.Errorf("sqlite: unknown link table %q", table)
	}
	query := `SELECT COUNT(1) FROM ` + table + ` WHERE ` + sourceCol + ` = ?`
	args := []any{sourceID}
	if projectCode != "" {
		query += ` AND project_code = ?`
		args = append(args, projectCode)
	} else {
		query += ` AND proposal_id = ?`
		args = append(args, proposalID)
	}
	var n int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, eris.Wrapf(err, "sqlite: link exists %s", table)
	}
	return n > 0, nil
}

func (s *SQLiteStore) DeleteLink(ctx context.Context, table, id string) error {
	if _, ok := linkTables[table]; !ok {
		return eris.Errorf("sqlite: unknown link table %q", table)
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete link %s", id)
	}
	return checkRowsAffected(res, "link", id)
}

func (s *SQLiteStore) SetLinkReviewed(ctx context.Context, table, id string, reviewed bool) error {
	if _, ok := linkTables[table]; !ok {
		return eris.Errorf("sqlite: unknown link table %q", table)
	}
	res, err := s.q.ExecContext(ctx, `UPDATE `+table+` SET reviewed = ? WHERE id = ?`, boolToInt(reviewed), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set link reviewed %s", id)
	}
	return checkRowsAffected(res, "link", id)
}

// --- emails and low-confidence log ---

func (s *SQLiteStore) CreateEmail(ctx context.Context, e *model.Email) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO emails (id, sender, subject, snippet, received_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Sender, e.Subject, e.Snippet, e.ReceivedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert email")
}

// ListUnlinkedEmails returns candidate emails for the grouping sweep:
// received since the cutoff, not yet linked, not yet logged as low
// confidence, and not already a member of any batch. These predicates make
// the sweep safe to re-run.
func (s *SQLiteStore) ListUnlinkedEmails(ctx context.Context, since time.Time, limit int) ([]model.Email, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT e.id, e.sender, e.subject, e.snippet, e.received_at FROM emails e
		 WHERE e.received_at >= ?
		   AND NOT EXISTS (SELECT 1 FROM email_project_links l WHERE l.email_id = e.id)
		   AND NOT EXISTS (SELECT 1 FROM low_confidence_links c WHERE c.email_id = e.id)
		   AND NOT EXISTS (SELECT 1 FROM batch_members m WHERE m.email_id = e.id)
		 ORDER BY e.received_at LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unlinked emails")
	}
	defer rows.Close()

	var out []model.Email
	for rows.Next() {
		var e model.Email
		var subject, snippet sql.NullString
		if err := rows.Scan(&e.ID, &e.Sender, &subject, &snippet, &e.ReceivedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan email")
		}
		e.Subject, e.Snippet = subject.String, snippet.String
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list unlinked emails iterate")
}

func (s *SQLiteStore) CreateLowConfidenceLink(ctx context.Context, l *model.LowConfidenceLink) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now().UTC()
	signalsJSON, err := json.Marshal(l.Signals)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal signals")
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO low_confidence_links (id, email_id, sender, project_code, confidence, signals, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.EmailID, l.Sender, l.ProjectCode, l.Confidence, string(signalsJSON), l.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert low confidence link")
}

// --- helpers ---

var errNotFound = eris.New("not found")

// IsNotFound reports whether err marks a missing record.
func IsNotFound(err error) bool {
	return eris.Is(err, errNotFound)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(errNotFound, "%s %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSuggestion(row scannable) (*model.Suggestion, error) {
	var sg model.Suggestion
	var sourceID, sourceRef, desc, action, targetTable, pcode, prop sql.NullString
	var rollbackJSON, reviewedBy, notes, corrJSON sql.NullString
	var dataJSON string
	var reviewedAt sql.NullTime

	err := row.Scan(&sg.ID, &sg.SuggestionType, &sg.Priority, &sg.Confidence, &sg.SourceType,
		&sourceID, &sourceRef, &sg.Title, &desc, &action, &dataJSON, &targetTable,
		&pcode, &prop, &sg.Status, &rollbackJSON, &reviewedBy, &reviewedAt, &notes,
		&corrJSON, &sg.CreatedAt, &sg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(errNotFound, "suggestion")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan suggestion")
	}

	sg.SourceID, sg.SourceReference, sg.Description = sourceID.String, sourceRef.String, desc.String
	sg.SuggestedAction, sg.TargetTable = action.String, targetTable.String
	sg.ProjectCode, sg.ProposalID = pcode.String, prop.String
	sg.ReviewedBy, sg.ReviewNotes = reviewedBy.String, notes.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		sg.ReviewedAt = &t
	}
	if err := json.Unmarshal([]byte(dataJSON), &sg.SuggestedData); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal suggested data")
	}
	if rollbackJSON.Valid && rollbackJSON.String != "" {
		if err := json.Unmarshal([]byte(rollbackJSON.String), &sg.RollbackData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal rollback data")
		}
	}
	if corrJSON.Valid && corrJSON.String != "" {
		sg.CorrectionData = &model.SuggestedData{}
		if err := json.Unmarshal([]byte(corrJSON.String), sg.CorrectionData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal correction data")
		}
	}
	return &sg, nil
}

func scanPattern(row scannable) (*model.LearnedPattern, error) {
	var p model.LearnedPattern
	var condJSON, actJSON string
	var lastValidated, lastUsed sql.NullTime

	err := row.Scan(&p.ID, &p.Name, &p.Type, &condJSON, &actJSON, &p.Confidence,
		&p.EvidenceCount, &p.TimesRejected, &p.Active, &lastValidated, &lastUsed,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(errNotFound, "pattern")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan pattern")
	}

	if err := json.Unmarshal([]byte(condJSON), &p.Condition); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pattern condition")
	}
	if err := json.Unmarshal([]byte(actJSON), &p.Action); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pattern action")
	}
	if lastValidated.Valid {
		t := lastValidated.Time
		p.LastValidatedAt = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		p.LastUsedAt = &t
	}
	return &p, nil
}

func scanBatch(row scannable) (*model.SuggestionBatch, error) {
	var b model.SuggestionBatch
	var signalsJSON, pcode, prop, reviewedBy, notes sql.NullString
	var reviewedAt sql.NullTime

	err := row.Scan(&b.ID, &b.GroupKey, &b.Tier, &b.Confidence, &signalsJSON, &pcode,
		&prop, &b.Status, &reviewedBy, &reviewedAt, &notes, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(errNotFound, "batch")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan batch")
	}

	b.ProjectCode, b.ProposalID = pcode.String, prop.String
	b.ReviewedBy, b.ReviewNotes = reviewedBy.String, notes.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		b.ReviewedAt = &t
	}
	if signalsJSON.Valid && signalsJSON.String != "" {
		if err := json.Unmarshal([]byte(signalsJSON.String), &b.Signals); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal batch signals")
		}
	}
	return &b, nil
}

func scanContact(row scannable) (*model.Contact, error) {
	var c model.Contact
	var phone, company, role sql.NullString
	err := row.Scan(&c.ID, &c.Name, &c.Email, &phone, &company, &role, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(errNotFound, "contact")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan contact")
	}
	c.Phone, c.Company, c.Role = phone.String, company.String, role.String
	return &c, nil
}

func scanProposal(row scannable) (*model.Proposal, error) {
	var p model.Proposal
	var client, title sql.NullString
	var sentDate sql.NullTime
	err := row.Scan(&p.ID, &p.ProjectCode, &client, &title, &p.Status, &p.Value,
		&sentDate, &p.SendCount, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(errNotFound, "proposal")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan proposal")
	}
	p.ClientName, p.Title = client.String, title.String
	if sentDate.Valid {
		t := sentDate.Time
		p.SentDate = &t
	}
	return &p, nil
}
