package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/acbikash13/NepalPermit/model"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var permitRowColumns = []string{
	"id", "confirmation_id", "first_name", "last_name", "email", "phone", "country", "address",
	"visit_purpose", "visit_duration", "created_at", "valid_from", "valid_until",
	"passport_photo_url", "id_document_url", "pdf_url",
}

func newMockStore(t *testing.T) (*PermitStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewPermitStore(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func permitRow(id int64, code string) *sqlmock.Rows {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(permitRowColumns).AddRow(
		id, code, "Jane", "Doe", "jane@example.com", "", "US", "",
		"Trekking", "10", created, created.AddDate(0, 0, 1), created.AddDate(0, 0, 11),
		"http://localhost:9000/photo/"+code+"-passport-photo.jpg",
		"http://localhost:9000/idphoto/"+code+"-id-document.pdf",
		"http://localhost:9000/permits/"+code+"-permit.pdf",
	)
}

func TestPermitStoreInsert(t *testing.T) {
	store, mock := newMockStore(t)

	p := &model.Permit{
		ConfirmationID: "AB12CD34",
		FirstName:      "Jane",
		LastName:       "Doe",
		Email:          "jane@example.com",
		Country:        "US",
		VisitPurpose:   "Trekking",
		VisitDuration:  "10",
		ValidFrom:      time.Now().AddDate(0, 0, 1),
		ValidUntil:     time.Now().AddDate(0, 0, 11),
	}

	mock.ExpectQuery(`INSERT INTO permits .+ RETURNING id`).
		WithArgs("AB12CD34", "Jane", "Doe", "jane@example.com", "", "US", "",
			"Trekking", "10", sqlmock.AnyArg(), sqlmock.AnyArg(), "", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.Insert(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermitStoreInsertDuplicateConfirmationID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO permits`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "permits_confirmation_id_key"})

	_, err := store.Insert(context.Background(), &model.Permit{ConfirmationID: "AB12CD34"})
	assert.ErrorIs(t, err, ErrDuplicateConfirmationID)
}

func TestPermitStoreInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO permits`).WillReturnError(errors.New("connection refused"))

	_, err := store.Insert(context.Background(), &model.Permit{ConfirmationID: "AB12CD34"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateConfirmationID)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPermitStoreFindByKey(t *testing.T) {
	t.Run("numeric key looks up by id", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT .+ FROM permits WHERE id = \$1`).
			WithArgs(int64(42)).
			WillReturnRows(permitRow(42, "AB12CD34"))

		p, err := store.FindByKey(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, int64(42), p.ID)
		assert.Equal(t, "AB12CD34", p.ConfirmationID)
		assert.Equal(t, "Jane Doe", p.FullName())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non numeric key looks up by confirmation id", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT .+ FROM permits WHERE confirmation_id = \$1`).
			WithArgs("AB12CD34").
			WillReturnRows(permitRow(7, "AB12CD34"))

		p, err := store.FindByKey(context.Background(), "AB12CD34")
		require.NoError(t, err)
		assert.Equal(t, int64(7), p.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("all digit code falls back to confirmation id", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT .+ FROM permits WHERE id = \$1`).
			WithArgs(int64(12345678)).
			WillReturnRows(sqlmock.NewRows(permitRowColumns))
		mock.ExpectQuery(`SELECT .+ FROM permits WHERE confirmation_id = \$1`).
			WithArgs("12345678").
			WillReturnRows(permitRow(3, "12345678"))

		p, err := store.FindByKey(context.Background(), "12345678")
		require.NoError(t, err)
		assert.Equal(t, "12345678", p.ConfirmationID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("short numeric miss does not fall back", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT .+ FROM permits WHERE id = \$1`).
			WithArgs(int64(999)).
			WillReturnRows(sqlmock.NewRows(permitRowColumns))

		_, err := store.FindByKey(context.Background(), "999")
		assert.ErrorIs(t, err, ErrPermitNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown code", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT .+ FROM permits WHERE confirmation_id = \$1`).
			WithArgs("DOESNOTEXIST").
			WillReturnRows(sqlmock.NewRows(permitRowColumns))

		_, err := store.FindByKey(context.Background(), "DOESNOTEXIST")
		assert.ErrorIs(t, err, ErrPermitNotFound)
	})
}

func TestPermitStoreFindByKeyQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM permits`).WillReturnError(errors.New("timeout"))

	_, err := store.FindByConfirmationID(context.Background(), "AB12CD34")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermitNotFound)
}

func TestPermitStoreList(t *testing.T) {
	store, mock := newMockStore(t)
	newer := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM permits\s+ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "confirmation_id", "first_name", "last_name", "email", "country", "created_at", "passport_photo_url",
		}).
			AddRow(int64(2), "EF56GH78", "Ram", "Thapa", "ram@example.com", "NP", newer, "http://x/photo/EF56GH78-passport-photo.jpg").
			AddRow(int64(1), "AB12CD34", "Jane", "Doe", "jane@example.com", "US", older, "http://x/photo/AB12CD34-passport-photo.jpg"))

	permits, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, permits, 2)
	assert.Equal(t, "EF56GH78", permits[0].ConfirmationID)
	assert.Equal(t, "AB12CD34", permits[1].ConfirmationID)
}

func TestPermitStoreListEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM permits`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	permits, err := store.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, permits)
	assert.Empty(t, permits)
}

func TestPermitStoreStats(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\) AS total`).
		WithArgs(now.AddDate(0, 0, -30), now.AddDate(0, 0, -7)).
		WillReturnRows(sqlmock.NewRows([]string{"total", "last_30_days", "last_7_days"}).AddRow(int64(12), int64(5), int64(2)))

	stats, err := store.Stats(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, model.PermitStats{Total: 12, Last30Days: 5, Last7Days: 2}, *stats)
}
