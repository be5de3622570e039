package service

import (
	"bytes"
	"time"

	"github.com/acbikash13/NepalPermit/model"
	"github.com/go-pdf/fpdf"
)

// Renderer produces the printable permit certificate.
type Renderer interface {
	Render(permit *model.Permit) ([]byte, error)
}

const (
	certificateTitle    = "Nepal Protected Areas Permit"
	certificateSubtitle = "Official Travel Authorization"
	notProvided         = "Not provided"
	defaultPurpose      = "Tourism"
	defaultDurationText = "7"
	certificateMargin   = 18.0
	certificateDateFmt  = "January 2, 2006"
)

var certificateTerms = []string{
	"1. This permit must be presented along with a valid ID document when entering protected areas.",
	"2. The permit holder must comply with all local regulations and guidelines within protected areas.",
	"3. This permit is non-transferable and valid only for the dates specified.",
	"4. The permit holder is responsible for their own safety and should follow ranger instructions at all times.",
}

// CertificateRenderer draws A4 permit certificates with fpdf.
type CertificateRenderer struct {
	now      func() time.Time
	compress bool
}

func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{now: time.Now, compress: true}
}

// Render lays out the certificate for p. It does not touch any external state.
func (r *CertificateRenderer) Render(p *model.Permit) ([]byte, error) {
	generatedAt := r.now()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetMargins(certificateMargin, certificateMargin, certificateMargin)
	pdf.SetAutoPageBreak(true, certificateMargin)
	pdf.SetTitle(certificateTitle+" - "+p.ConfirmationID, false)
	pdf.SetAuthor("Nepal Protected Areas Permit System", false)
	pdf.SetCreationDate(generatedAt)
	pdf.SetModificationDate(generatedAt)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pageW, pageH := pdf.GetPageSize()
	contentW := pageW - 2*certificateMargin

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(contentW, 10, certificateTitle, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(contentW, 8, certificateSubtitle, "", 1, "C", false, 0, "")
	pdf.Ln(12)

	// Confirmation box
	boxY := pdf.GetY()
	pdf.SetFillColor(240, 249, 255)
	pdf.SetDrawColor(2, 132, 199)
	pdf.Rect(certificateMargin, boxY, contentW, 28, "FD")
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetXY(certificateMargin+7, boxY+4)
	r.labelRow(pdf, tr, "Confirmation Number:", p.ConfirmationID, 50)
	pdf.SetX(certificateMargin + 7)
	r.labelRow(pdf, tr, "Valid From:", p.ValidFrom.Format(certificateDateFmt), 50)
	pdf.SetX(certificateMargin + 7)
	r.labelRow(pdf, tr, "Valid Until:", p.ValidUntil.Format(certificateDateFmt), 50)
	pdf.SetY(boxY + 28)
	pdf.Ln(10)

	r.heading(pdf, "Applicant Information", contentW)
	r.labelRow(pdf, tr, "Name:", p.FullName(), 30)
	r.labelRow(pdf, tr, "Email:", p.Email, 30)
	r.labelRow(pdf, tr, "Phone:", orDefault(p.Phone, notProvided), 30)
	r.labelRow(pdf, tr, "Country:", p.Country, 30)
	r.labelRow(pdf, tr, "Address:", orDefault(p.Address, notProvided), 30)
	pdf.Ln(6)

	r.heading(pdf, "Visit Details", contentW)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW, 7, "Purpose of Visit:", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(contentW, 6, tr(orDefault(p.VisitPurpose, defaultPurpose)), "", "L", false)
	pdf.Ln(2)
	r.labelRow(pdf, tr, "Duration:", orDefault(p.VisitDuration, defaultDurationText)+" days", 30)
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "BU", 14)
	pdf.CellFormat(contentW, 8, "Terms and Conditions", "", 1, "L", false, 0, "")
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "", 10)
	for _, term := range certificateTerms {
		pdf.MultiCell(contentW, 5, term, "", "L", false)
	}

	// The footer block needs about 45mm at the bottom of the last page.
	footerY := pageH - 40
	if pdf.GetY() > footerY-20 {
		pdf.AddPage()
	}
	pdf.SetAutoPageBreak(false, 0)

	qrSize := 32.0
	qrX := pageW - certificateMargin - qrSize
	pdf.Rect(qrX, footerY-qrSize+8, qrSize, qrSize, "D")
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(qrX, footerY+10)
	pdf.CellFormat(qrSize, 4, "QR Verification Code", "", 0, "C", false, 0, "")

	pdf.SetXY(certificateMargin, footerY+16)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(contentW, 5, "This is an electronically generated document and does not require a signature.", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(contentW, 5, "Generated on: "+generatedAt.Format("January 2, 2006 15:04:05 MST"), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &RenderError{Err: err}
	}
	return buf.Bytes(), nil
}

func (r *CertificateRenderer) heading(pdf *fpdf.Fpdf, text string, width float64) {
	pdf.SetFont("Helvetica", "BU", 16)
	pdf.CellFormat(width, 9, text, "", 1, "L", false, 0, "")
	pdf.Ln(3)
}

// labelRow writes "Label: value" on one line, wrapping long values under the value column.
func (r *CertificateRenderer) labelRow(pdf *fpdf.Fpdf, tr func(string) string, label, value string, labelW float64) {
	left, _, right, _ := pdf.GetMargins()
	pageW, _ := pdf.GetPageSize()

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(labelW, 7, label, "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(pageW-right-pdf.GetX(), 7, tr(value), "", "L", false)
	pdf.SetX(left)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
