package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-north/studio-ops/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, q: mock}
	return s, mock
}

func TestPostgresStore_GetSuggestion_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM suggestions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSuggestion(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPatternByName_Miss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM learned_patterns WHERE name = \$1 AND active = true`).
		WithArgs("sender:nobody@nowhere.com").
		WillReturnError(pgx.ErrNoRows)

	p, err := s.GetPatternByName(context.Background(), "sender:nobody@nowhere.com")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReinforcePattern(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE learned_patterns SET evidence_count = evidence_count \+ 1,\s+confidence = LEAST\(confidence \+ \$1, \$2\)`).
		WithArgs(0.05, 0.98, pgxmock.AnyArg(), "pat-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.ReinforcePattern(context.Background(), "pat-1", 0.05, 0.98)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PenalizePattern_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE learned_patterns SET times_rejected = times_rejected \+ 1,\s+confidence = GREATEST\(confidence - \$1, \$2\)`).
		WithArgs(0.1, 0.1, pgxmock.AnyArg(), "pat-missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.PenalizePattern(context.Background(), "pat-missing", 0.1, 0.1)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DecayPatterns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE learned_patterns SET confidence = GREATEST\(confidence \* \$1, \$2\)`).
		WithArgs(0.9, 0.3, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 7))

	n, err := s.DecayPatterns(context.Background(), 30*24*time.Hour, 0.9, 0.3)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountOutcomes(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Now().UTC().Add(-30 * 24 * time.Hour)

	mock.ExpectQuery(`SELECT\s+COALESCE\(SUM\(CASE WHEN outcome = 'approved'.+FROM feedback`).
		WithArgs(model.TypeFeeChange, since, "25 AB%").
		WillReturnRows(pgxmock.NewRows([]string{"approved", "rejected"}).AddRow(1, 4))

	approved, rejected, err := s.CountOutcomes(context.Background(), model.TypeFeeChange, "25 AB", since)
	require.NoError(t, err)
	assert.Equal(t, 1, approved)
	assert.Equal(t, 4, rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkChangesRolledBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE suggestion_changes SET rolled_back = true`).
		WithArgs(pgxmock.AnyArg(), "sug-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := s.MarkChangesRolledBack(context.Background(), "sug-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateBatchReview_CascadesToMembers(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE suggestion_batches SET status = \$1`).
		WithArgs("approved", "ops@studio", pgxmock.AnyArg(), "", "batch-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE batch_members SET status = \$1 WHERE batch_id = \$2`).
		WithArgs("approved", "batch-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	err := s.UpdateBatchReview(context.Background(), "batch-1", model.BatchApproved, "ops@studio", "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE learned_patterns SET active = false`).
		WithArgs(pgxmock.AnyArg(), "pat-missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.DeactivatePattern(context.Background(), "pat-missing")
	})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_Commits(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE learned_patterns SET last_used_at = \$1 WHERE id = \$2`).
		WithArgs(pgxmock.AnyArg(), "pat-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.TouchPatternUsed(context.Background(), "pat-1")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
