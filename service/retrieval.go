package service

import (
	"context"
	"errors"
	"time"

	"github.com/acbikash13/NepalPermit/model"
	"github.com/acbikash13/NepalPermit/pkg/logger"
)

// PermitService serves stored permits and their certificates.
type PermitService struct {
	permits      PermitRepository
	store        ObjectStore
	renderer     Renderer
	permitBucket string
	serveStored  bool
	now          func() time.Time
}

func NewPermitService(permits PermitRepository, store ObjectStore, renderer Renderer, permitBucket string, serveStored bool) *PermitService {
	return &PermitService{
		permits:      permits,
		store:        store,
		renderer:     renderer,
		permitBucket: permitBucket,
		serveStored:  serveStored,
		now:          time.Now,
	}
}

// Get resolves a numeric id or a confirmation code to the full record.
func (s *PermitService) Get(ctx context.Context, key string) (*model.Permit, error) {
	p, err := s.permits.FindByKey(ctx, key)
	return p, classify("select permit", err)
}

// GetByConfirmationID looks up a permit by its applicant-facing code only.
func (s *PermitService) GetByConfirmationID(ctx context.Context, code string) (*model.Permit, error) {
	p, err := s.permits.FindByConfirmationID(ctx, code)
	return p, classify("select permit", err)
}

func (s *PermitService) List(ctx context.Context) ([]model.PermitSummary, error) {
	permits, err := s.permits.List(ctx)
	return permits, classify("list permits", err)
}

func (s *PermitService) Stats(ctx context.Context) (*model.PermitStats, error) {
	stats, err := s.permits.Stats(ctx, s.now())
	return stats, classify("permit stats", err)
}

// Certificate returns the permit's PDF. The stored copy is preferred; it is
// re-rendered from the row when reading it back fails.
func (s *PermitService) Certificate(ctx context.Context, key string) (*model.Permit, []byte, error) {
	p, err := s.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	ctx = logger.WithConfirmationID(ctx, p.ConfirmationID)

	if s.serveStored && p.PDFURL != "" {
		data, err := s.store.GetFile(ctx, s.permitBucket, PermitObjectName(p.ConfirmationID))
		if err == nil && len(data) > 0 {
			return p, data, nil
		}
		logger.Warn(ctx, "Stored certificate unavailable, rendering", "error", err)
	}

	data, err := s.renderer.Render(p)
	if err != nil {
		logger.Error(ctx, "Certificate render failed", "error", err)
		var renderErr *RenderError
		if !errors.As(err, &renderErr) {
			err = &RenderError{Err: err}
		}
		return nil, nil, err
	}
	return p, data, nil
}

// classify leaves not-found alone and marks every other failure as upstream.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, ErrPermitNotFound) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}
