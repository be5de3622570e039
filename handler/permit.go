package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/acbikash13/NepalPermit/middleware"
	"github.com/acbikash13/NepalPermit/model"
	"github.com/acbikash13/NepalPermit/service"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// Room for the text fields and multipart framing on top of both documents.
const formOverheadBytes = 1 << 20

// Submitter accepts permit applications.
type Submitter interface {
	Submit(ctx context.Context, in *service.SubmissionInput) (*service.SubmissionResult, error)
}

// PermitReader reads stored permits and their certificates.
type PermitReader interface {
	Get(ctx context.Context, key string) (*model.Permit, error)
	GetByConfirmationID(ctx context.Context, code string) (*model.Permit, error)
	List(ctx context.Context) ([]model.PermitSummary, error)
	Stats(ctx context.Context) (*model.PermitStats, error)
	Certificate(ctx context.Context, key string) (*model.Permit, []byte, error)
}

// PermitHandler serves the applicant-facing endpoints.
type PermitHandler struct {
	submissions  Submitter
	permits      PermitReader
	maxBodyBytes int64
}

func NewPermitHandler(submissions Submitter, permits PermitReader, maxBodyBytes int64) *PermitHandler {
	return &PermitHandler{submissions: submissions, permits: permits, maxBodyBytes: maxBodyBytes + formOverheadBytes}
}

// MaxBodyBytes is the request body cap applied to submissions.
func (h *PermitHandler) MaxBodyBytes() int64 {
	return h.maxBodyBytes
}

type submitResponse struct {
	Success        bool   `json:"success"`
	ConfirmationID string `json:"confirmationId"`
	ID             int64  `json:"id"`
}

// Submit handles POST /permits.
func (h *PermitHandler) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)

	var in service.SubmissionInput
	if err := c.ShouldBindWith(&in, binding.FormMultipart); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.AbortWithError(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		middleware.AbortWithError(c, http.StatusBadRequest, "Invalid form data")
		return
	}

	closePhoto := attachDocument(c, "passportPhoto", &in.PassportPhoto)
	defer closePhoto()
	closeID := attachDocument(c, "idDocument", &in.IDDocument)
	defer closeID()

	result, err := h.submissions.Submit(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err, "Failed to process application")
		return
	}

	c.JSON(http.StatusOK, submitResponse{
		Success:        true,
		ConfirmationID: result.ConfirmationID,
		ID:             result.ID,
	})
}

// attachDocument opens the named file part into dst. A missing part leaves dst nil.
func attachDocument(c *gin.Context, field string, dst **service.Document) func() {
	header, err := c.FormFile(field)
	if err != nil {
		return func() {}
	}

	file, err := header.Open()
	if err != nil {
		return func() {}
	}

	*dst = &service.Document{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	}
	return func() { file.Close() }
}

// Get handles GET /permits/:key. Applicants look permits up by confirmation code only.
func (h *PermitHandler) Get(c *gin.Context) {
	permit, err := h.permits.GetByConfirmationID(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err, "Failed to fetch permit")
		return
	}

	c.JSON(http.StatusOK, permit.Public())
}

// PDF handles GET /permits/:key/pdf.
func (h *PermitHandler) PDF(c *gin.Context) {
	servePDF(c, h.permits)
}

func servePDF(c *gin.Context, permits PermitReader) {
	permit, data, err := permits.Certificate(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err, "Failed to generate PDF")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="permit-%s.pdf"`, permit.ConfirmationID))
	c.Data(http.StatusOK, "application/pdf", data)
}
