package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var scope = models.Scope{Marketplace: "amazon", Country: "UK", Lang: "en"}

func newLedger() *Ledger {
	l := New("run-1", scope)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	l.Record("C1", "color_name", "selectable", apperrors.NewNoEquivalentValueError("color_name", "Rouge"))
	l.Record("", "item_name", "title", apperrors.NewConsensusExhaustedError("title", 6, "too long"))
	return l
}

type fakePublisher struct {
	subject, message string
	err              error
}

func (f *fakePublisher) Publish(_ context.Context, subject, message string) error {
	f.subject, f.message = subject, message
	return f.err
}

// ==========================
// Ledger
// ==========================

func TestLedger_RecordAndSummary(t *testing.T) {
	l := newLedger()
	l.Record("C2", "x", "text", errors.New("plain")) // unclassified errors are internal
	l.Record("C2", "x", "text", nil)

	require.Equal(t, 3, l.Len())
	assert.Equal(t, string(apperrors.ErrCodeInternal), l.Failures()[2].Code)

	s := l.Summary()
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 3, s.Failures)
	assert.Equal(t, 1, s.ByCode[string(apperrors.ErrCodeNoEquivalentValue)])
	assert.Equal(t, []string{"color_name", "item_name", "x"}, s.Fields)
}

func TestLedger_FlushEmptyDoesNothing(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, New("run-2", scope).Flush(context.Background(), nil, NewSNSNotifier(pub)))
	assert.Empty(t, pub.subject)
}

func TestLedger_FlushNotifies(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, newLedger().Flush(context.Background(), nil, NewSNSNotifier(pub)))
	assert.Equal(t, "listing run run-1: 2 unresolved fields (amazon|UK|en)", pub.subject)
	assert.True(t, strings.Contains(pub.message, `"runId":"run-1"`))

	pub.err = errors.New("throttled")
	err := newLedger().Flush(context.Background(), nil, NewSNSNotifier(pub))
	assert.Equal(t, apperrors.ErrCodeLedgerPersist, apperrors.CodeOf(err))
}

// ==========================
// Postgres store
// ==========================

func TestPostgresStore_SaveFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO resolution_failures`).
		WithArgs("run-1", "amazon", "UK", "en", "C1", "color_name", "selectable",
			string(apperrors.ErrCodeNoEquivalentValue), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO resolution_failures`).
		WithArgs("run-1", "amazon", "UK", "en", "", "item_name", "title",
			string(apperrors.ErrCodeConsensusExhausted), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, newLedger().Flush(context.Background(), NewPostgresStore(db), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO resolution_failures`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = newLedger().Flush(context.Background(), NewPostgresStore(db), nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeLedgerPersist, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS resolution_failures`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewPostgresStore(db).Migrate(context.Background()))

	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))
	assert.Error(t, NewPostgresStore(db).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
