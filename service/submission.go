package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/acbikash13/NepalPermit/config"
	"github.com/acbikash13/NepalPermit/model"
	"github.com/acbikash13/NepalPermit/pkg/logger"
	"github.com/google/uuid"
)

const (
	confirmationIDLength = 8
	defaultVisitDays     = 7
	maxVisitDays         = 365
	defaultContentType   = "image/jpeg"
	defaultExtension     = "jpg"
	compensationTimeout  = 10 * time.Second
)

// Validation messages returned to applicants.
const (
	MsgMissingFields    = "Missing required fields"
	MsgMissingDocuments = "Missing passport photo or ID document"
	MsgInvalidFields    = "Invalid application fields"
	MsgInvalidDocuments = "Invalid passport photo or ID document"
)

var idDocumentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// Document is one uploaded file of a submission.
type Document struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// SubmissionInput is the applicant's form.
type SubmissionInput struct {
	FirstName     string `form:"firstName" validate:"required,notblank,max=100"`
	LastName      string `form:"lastName" validate:"required,notblank,max=100"`
	Email         string `form:"email" validate:"required,notblank,email,max=255"`
	Phone         string `form:"phone" validate:"max=50"`
	Country       string `form:"country" validate:"required,notblank,max=100"`
	Address       string `form:"address"`
	VisitPurpose  string `form:"visitPurpose"`
	VisitDuration string `form:"visitDuration" validate:"max=50"`

	PassportPhoto *Document `form:"-" validate:"-"`
	IDDocument    *Document `form:"-" validate:"-"`
}

// SubmissionResult is returned for an accepted application.
type SubmissionResult struct {
	ConfirmationID string `json:"confirmationId"`
	ID             int64  `json:"id"`
}

type storedObject struct {
	bucket string
	key    string
}

// SubmissionService turns an application into stored documents, a certificate
// and a permit row.
type SubmissionService struct {
	store     ObjectStore
	permits   PermitRepository
	renderer  Renderer
	validator *Validator
	config    *config.StorageConfig
	now       func() time.Time
	newID     func() string
}

func NewSubmissionService(store ObjectStore, permits PermitRepository, renderer Renderer, cfg *config.StorageConfig) *SubmissionService {
	return &SubmissionService{
		store:     store,
		permits:   permits,
		renderer:  renderer,
		validator: NewValidator(),
		config:    cfg,
		now:       time.Now,
		newID:     newConfirmationID,
	}
}

func newConfirmationID() string {
	return strings.ToUpper(uuid.NewString()[:confirmationIDLength])
}

// Submit runs the pipeline. Objects uploaded before a failing step are deleted
// again on a best-effort basis; a row is only written after every upload succeeded.
func (s *SubmissionService) Submit(ctx context.Context, in *SubmissionInput) (*SubmissionResult, error) {
	if err := s.validate(in); err != nil {
		logger.Warn(ctx, "Submission rejected", "error", err)
		return nil, err
	}

	photoType, photo, err := s.checkDocument("passportPhoto", in.PassportPhoto, s.config.MaxPhotoBytes, isImage)
	if err != nil {
		return nil, err
	}
	idType, idDoc, err := s.checkDocument("idDocument", in.IDDocument, s.config.MaxDocumentBytes, isIDDocumentType)
	if err != nil {
		return nil, err
	}

	confirmationID := s.newID()
	ctx = logger.WithConfirmationID(ctx, confirmationID)
	validFrom, validUntil := validity(s.now(), in.VisitDuration)

	permit := &model.Permit{
		ConfirmationID: confirmationID,
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Email:          strings.TrimSpace(in.Email),
		Phone:          in.Phone,
		Country:        strings.TrimSpace(in.Country),
		Address:        in.Address,
		VisitPurpose:   in.VisitPurpose,
		VisitDuration:  in.VisitDuration,
		ValidFrom:      validFrom,
		ValidUntil:     validUntil,
	}
	if permit.VisitDuration == "" {
		permit.VisitDuration = strconv.Itoa(defaultVisitDays)
	}

	var uploaded []storedObject
	fail := func(err error) (*SubmissionResult, error) {
		s.compensate(ctx, uploaded)
		return nil, err
	}

	photoKey := fmt.Sprintf("%s-passport-photo.%s", confirmationID, extension(in.PassportPhoto.Filename))
	permit.PassportPhotoURL, err = s.store.UploadFile(ctx, s.config.PhotoBucket, photoKey, photo, in.PassportPhoto.Size, photoType)
	if err != nil {
		logger.Error(ctx, "Passport photo upload failed", "object", photoKey, "error", err)
		return fail(&UpstreamError{Op: "upload passport photo", Err: err})
	}
	uploaded = append(uploaded, storedObject{s.config.PhotoBucket, photoKey})
	logger.Info(ctx, "Passport photo uploaded", "object", photoKey)

	idKey := fmt.Sprintf("%s-id-document.%s", confirmationID, extension(in.IDDocument.Filename))
	permit.IDDocumentURL, err = s.store.UploadFile(ctx, s.config.IDBucket, idKey, idDoc, in.IDDocument.Size, idType)
	if err != nil {
		logger.Error(ctx, "ID document upload failed", "object", idKey, "error", err)
		return fail(&UpstreamError{Op: "upload id document", Err: err})
	}
	uploaded = append(uploaded, storedObject{s.config.IDBucket, idKey})
	logger.Info(ctx, "ID document uploaded", "object", idKey)

	pdf, err := s.renderer.Render(permit)
	if err != nil {
		logger.Error(ctx, "Certificate render failed", "error", err)
		var renderErr *RenderError
		if !errors.As(err, &renderErr) {
			err = &RenderError{Err: err}
		}
		return fail(err)
	}

	pdfKey := PermitObjectName(confirmationID)
	permit.PDFURL, err = s.store.UploadFile(ctx, s.config.PermitBucket, pdfKey, bytes.NewReader(pdf), int64(len(pdf)), "application/pdf")
	if err != nil {
		logger.Error(ctx, "Certificate upload failed", "object", pdfKey, "error", err)
		return fail(&UpstreamError{Op: "upload certificate", Err: err})
	}
	uploaded = append(uploaded, storedObject{s.config.PermitBucket, pdfKey})
	logger.Info(ctx, "Certificate uploaded", "object", pdfKey, "bytes", len(pdf))

	id, err := s.permits.Insert(ctx, permit)
	if err != nil {
		logger.Error(ctx, "Permit insert failed", "error", err)
		return fail(&UpstreamError{Op: "insert permit", Err: err})
	}

	logger.Info(ctx, "Permit application accepted", "id", id)
	return &SubmissionResult{ConfirmationID: confirmationID, ID: id}, nil
}

func (s *SubmissionService) validate(in *SubmissionInput) error {
	if err := s.validator.Validate(in); err != nil {
		msg := MsgInvalidFields
		if onlyMissing(err) {
			msg = MsgMissingFields
		}
		return &ValidationError{Message: msg, Fields: ToFieldErrors(err)}
	}

	var missing []FieldError
	if in.PassportPhoto == nil || in.PassportPhoto.Content == nil {
		missing = append(missing, FieldError{Field: "passportPhoto", Message: "is required"})
	}
	if in.IDDocument == nil || in.IDDocument.Content == nil {
		missing = append(missing, FieldError{Field: "idDocument", Message: "is required"})
	}
	if len(missing) > 0 {
		return &ValidationError{Message: MsgMissingDocuments, Fields: missing}
	}
	return nil
}

// checkDocument resolves the stored content type of doc and enforces its size and type.
// The returned reader must be used in place of doc.Content.
func (s *SubmissionService) checkDocument(field string, doc *Document, maxBytes int64, allowed func(string) bool) (string, io.Reader, error) {
	if maxBytes > 0 && doc.Size > maxBytes {
		return "", nil, &ValidationError{
			Message: MsgInvalidDocuments,
			Fields:  []FieldError{{Field: field, Message: fmt.Sprintf("must be at most %d bytes", maxBytes)}},
		}
	}

	contentType, content := resolveContentType(doc)
	if !allowed(contentType) {
		return "", nil, &ValidationError{
			Message: MsgInvalidDocuments,
			Fields:  []FieldError{{Field: field, Message: "has unsupported type " + contentType}},
		}
	}
	return contentType, content, nil
}

// resolveContentType keeps the declared type, defaults an empty one to image/jpeg
// and sniffs application/octet-stream from the first bytes.
func resolveContentType(doc *Document) (string, io.Reader) {
	declared := strings.TrimSpace(doc.ContentType)
	if declared == "" {
		return defaultContentType, doc.Content
	}
	if mediaType(declared) != "application/octet-stream" {
		return declared, doc.Content
	}

	br := bufio.NewReaderSize(doc.Content, 512)
	head, _ := br.Peek(512)
	return http.DetectContentType(head), br
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(contentType)
	}
	return mt
}

func isImage(contentType string) bool {
	return strings.HasPrefix(mediaType(contentType), "image/")
}

func isIDDocumentType(contentType string) bool {
	return idDocumentTypes[mediaType(contentType)]
}

// extension returns the text after the last dot of filename, or jpg when there is none.
func extension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 || i == len(filename)-1 {
		return defaultExtension
	}
	return filename[i+1:]
}

// PermitObjectName is the key of a permit's certificate in the permits bucket.
func PermitObjectName(confirmationID string) string {
	return confirmationID + "-permit.pdf"
}

// validity starts the permit one day after now and runs for the visit duration.
// Days are added in UTC so every day is exactly 24 hours.
func validity(now time.Time, visitDuration string) (time.Time, time.Time) {
	validFrom := now.Add(24 * time.Hour)
	validUntil := validFrom.UTC().AddDate(0, 0, visitDays(visitDuration)).In(validFrom.Location())
	return validFrom, validUntil
}

// visitDays parses the leading integer of a duration such as "10" or "10 days".
// Values above maxVisitDays are capped.
func visitDays(visitDuration string) int {
	s := strings.TrimSpace(visitDuration)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}

	days, err := strconv.Atoi(s[:end])
	if errors.Is(err, strconv.ErrRange) && days > 0 {
		return maxVisitDays
	}
	if err != nil || days <= 0 {
		return defaultVisitDays
	}
	return min(days, maxVisitDays)
}

func (s *SubmissionService) compensate(ctx context.Context, objects []storedObject) {
	if len(objects) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	for _, obj := range objects {
		if err := s.store.DeleteFile(ctx, obj.bucket, obj.key); err != nil {
			logger.Warn(ctx, "Failed to remove orphaned object", "bucket", obj.bucket, "object", obj.key, "error", err)
			continue
		}
		logger.Info(ctx, "Removed orphaned object", "bucket", obj.bucket, "object", obj.key)
	}
}
