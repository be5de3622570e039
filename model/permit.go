package model

import (
	"time"
)

// Permit is one persisted permit application (a row of the permits table).
type Permit struct {
	ID               int64     `json:"id" db:"id"`
	ConfirmationID   string    `json:"confirmationId" db:"confirmation_id"`
	FirstName        string    `json:"firstName" db:"first_name"`
	LastName         string    `json:"lastName" db:"last_name"`
	Email            string    `json:"email" db:"email"`
	Phone            string    `json:"phone" db:"phone"`
	Country          string    `json:"country" db:"country"`
	Address          string    `json:"address" db:"address"`
	VisitPurpose     string    `json:"visitPurpose" db:"visit_purpose"`
	VisitDuration    string    `json:"visitDuration" db:"visit_duration"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	ValidFrom        time.Time `json:"validFrom" db:"valid_from"`
	ValidUntil       time.Time `json:"validUntil" db:"valid_until"`
	PassportPhotoURL string    `json:"passportPhotoUrl" db:"passport_photo_url"`
	IDDocumentURL    string    `json:"idDocumentUrl" db:"id_document_url"`
	PDFURL           string    `json:"pdfUrl" db:"pdf_url"`
}

// FullName returns "First Last".
func (p *Permit) FullName() string {
	return p.FirstName + " " + p.LastName
}

// PublicPermit is the applicant-facing projection; it never exposes document URLs.
type PublicPermit struct {
	ID             int64     `json:"id"`
	ConfirmationID string    `json:"confirmationId"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Email          string    `json:"email"`
	Country        string    `json:"country"`
	CreatedAt      time.Time `json:"createdAt"`
	ValidFrom      time.Time `json:"validFrom"`
	ValidUntil     time.Time `json:"validUntil"`
}

// Public projects p onto the applicant-facing field set.
func (p *Permit) Public() PublicPermit {
	return PublicPermit{
		ID:             p.ID,
		ConfirmationID: p.ConfirmationID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		Country:        p.Country,
		CreatedAt:      p.CreatedAt,
		ValidFrom:      p.ValidFrom,
		ValidUntil:     p.ValidUntil,
	}
}

// PermitSummary is one row of the admin list view.
type PermitSummary struct {
	ID               int64     `json:"id" db:"id"`
	ConfirmationID   string    `json:"confirmationId" db:"confirmation_id"`
	FirstName        string    `json:"firstName" db:"first_name"`
	LastName         string    `json:"lastName" db:"last_name"`
	Email            string    `json:"email" db:"email"`
	Country          string    `json:"country" db:"country"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	PassportPhotoURL string    `json:"passportPhotoUrl" db:"passport_photo_url"`
}

// PermitStats holds submission counts for the admin dashboard.
type PermitStats struct {
	Total      int64 `json:"total" db:"total"`
	Last30Days int64 `json:"last30Days" db:"last_30_days"`
	Last7Days  int64 `json:"last7Days" db:"last_7_days"`
}
