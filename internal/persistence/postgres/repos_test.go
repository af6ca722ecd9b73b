package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/persistence"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestEventsRepo_Exists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventStore(db, time.Second)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM events WHERE id = \$1\)`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventsRepo_GetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventStore(db, time.Second)

	mock.ExpectQuery(`SELECT .* FROM events WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestEntitiesRepo_FindAlias(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEntityStore(db, time.Second)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT canonical_id, alias, source, confidence, resolution_method, first_seen, last_seen`).
		WithArgs("PDVSA", "gdelt").
		WillReturnRows(sqlmock.NewRows(
			[]string{"canonical_id", "alias", "source", "confidence", "resolution_method", "first_seen", "last_seen"}).
			AddRow("ent-1", "PDVSA", "gdelt", 0.97, "exact", now, now))

	a, err := repo.FindAlias(context.Background(), "PDVSA", "gdelt")
	require.NoError(t, err)
	assert.Equal(t, "ent-1", a.CanonicalID)
	assert.Equal(t, 0.97, a.Confidence)
}

func TestEntitiesRepo_FindAliasNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEntityStore(db, time.Second)

	mock.ExpectQuery(`SELECT canonical_id`).
		WithArgs("Nobody", "gdelt").
		WillReturnRows(sqlmock.NewRows([]string{"canonical_id"}))

	_, err := repo.FindAlias(context.Background(), "Nobody", "gdelt")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestEntitiesRepo_CreateWithAlias_DuplicateClassified(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEntityStore(db, time.Second)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO entities`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO entity_aliases`).
		WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	err := repo.CreateWithAlias(context.Background(),
		persistence.Entity{ID: "e1", PrimaryName: "PDVSA", EntityType: "organization", CountryCode: "VE", CreatedAt: now, LastVerified: now},
		persistence.Alias{CanonicalID: "e1", Alias: "PDVSA", Source: "gdelt", Confidence: 1.0, ResolutionMethod: "exact", FirstSeen: now, LastSeen: now})
	assert.ErrorIs(t, err, persistence.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIndicatorsRepo_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIndicatorStore(db, time.Second)

	mock.ExpectExec(`INSERT INTO indicator_series`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), persistence.IndicatorPoint{
		SeriesID: "FP.CPI.TOTL.ZG",
		Source:   "world_bank",
		Date:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Value:    61.2,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyPQ_PassthroughOtherErrors(t *testing.T) {
	plain := errors.New("connection refused")
	err := classifyPQ("insert entity", plain)
	assert.NotErrorIs(t, err, persistence.ErrDuplicate)
	assert.ErrorIs(t, err, plain)
}
