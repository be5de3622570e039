package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/acbikash13/NepalPermit/model"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// PermitRepository persists permits. Rows are append-only.
type PermitRepository interface {
	Insert(ctx context.Context, permit *model.Permit) (int64, error)
	FindByKey(ctx context.Context, key string) (*model.Permit, error)
	FindByConfirmationID(ctx context.Context, confirmationID string) (*model.Permit, error)
	List(ctx context.Context) ([]model.PermitSummary, error)
	Stats(ctx context.Context, now time.Time) (*model.PermitStats, error)
}

const uniqueViolation = "23505"

const permitColumns = `id, confirmation_id, first_name, last_name, email, phone, country, address,
	visit_purpose, visit_duration, created_at, valid_from, valid_until,
	passport_photo_url, id_document_url, pdf_url`

// Lookup columns a key may be matched against. Never built from user input.
var lookupColumns = map[bool]string{
	true:  "id",
	false: "confirmation_id",
}

// PermitStore is the PostgreSQL implementation of PermitRepository.
type PermitStore struct {
	db *sqlx.DB
}

func NewPermitStore(db *sqlx.DB) *PermitStore {
	return &PermitStore{db: db}
}

// Insert appends one row and returns the generated id.
func (s *PermitStore) Insert(ctx context.Context, p *model.Permit) (int64, error) {
	query := `
		INSERT INTO permits (
			confirmation_id, first_name, last_name, email, phone, country, address,
			visit_purpose, visit_duration, valid_from, valid_until,
			passport_photo_url, id_document_url, pdf_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		p.ConfirmationID, p.FirstName, p.LastName, p.Email, p.Phone, p.Country, p.Address,
		p.VisitPurpose, p.VisitDuration, p.ValidFrom, p.ValidUntil,
		p.PassportPhotoURL, p.IDDocumentURL, p.PDFURL,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrDuplicateConfirmationID
		}
		return 0, fmt.Errorf("insert permit: %w", err)
	}
	return id, nil
}

// FindByKey resolves an integer key by id and anything else by confirmation code.
// Confirmation codes are hex, so an all-digit 8 character key that misses by id
// is tried again as a code.
func (s *PermitStore) FindByKey(ctx context.Context, key string) (*model.Permit, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return s.findBy(ctx, lookupColumns[false], key)
	}

	permit, err := s.findBy(ctx, lookupColumns[true], id)
	if errors.Is(err, ErrPermitNotFound) && len(key) == confirmationIDLength {
		return s.findBy(ctx, lookupColumns[false], key)
	}
	return permit, err
}

func (s *PermitStore) FindByConfirmationID(ctx context.Context, confirmationID string) (*model.Permit, error) {
	return s.findBy(ctx, lookupColumns[false], confirmationID)
}

func (s *PermitStore) findBy(ctx context.Context, column string, value any) (*model.Permit, error) {
	query := fmt.Sprintf(`SELECT %s FROM permits WHERE %s = $1`, permitColumns, column)

	var p model.Permit
	if err := s.db.GetContext(ctx, &p, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPermitNotFound
		}
		return nil, fmt.Errorf("select permit by %s: %w", column, err)
	}
	return &p, nil
}

// List returns every permit, newest first.
func (s *PermitStore) List(ctx context.Context) ([]model.PermitSummary, error) {
	query := `
		SELECT id, confirmation_id, first_name, last_name, email, country, created_at, passport_photo_url
		FROM permits
		ORDER BY created_at DESC`

	permits := []model.PermitSummary{}
	if err := s.db.SelectContext(ctx, &permits, query); err != nil {
		return nil, fmt.Errorf("list permits: %w", err)
	}
	return permits, nil
}

// Stats counts all permits and those created in the last 30 and 7 days.
func (s *PermitStore) Stats(ctx context.Context, now time.Time) (*model.PermitStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE created_at > $1) AS last_30_days,
			COUNT(*) FILTER (WHERE created_at > $2) AS last_7_days
		FROM permits`

	var stats model.PermitStats
	if err := s.db.GetContext(ctx, &stats, query, now.AddDate(0, 0, -30), now.AddDate(0, 0, -7)); err != nil {
		return nil, fmt.Errorf("permit stats: %w", err)
	}
	return &stats, nil
}
