package certify

import (
	"context"
	"time"
)

// CertificateState tracks the lifecycle of a certificate record.
type CertificateState string

const (
	StatePending CertificateState = "pending"
	StateIssued  CertificateState = "issued"
	StateFailed  CertificateState = "failed"
)

// CertificateRecord describes one certificate issuance attempt.
type CertificateRecord struct {
	ID         string
	DocumentID string
	TemplateID string
	State      CertificateState
	PDFBytes   int64
	LastError  string
	CreatedAt  time.Time
	IssuedAt   time.Time
}

// RenderRequest carries a preprocessed HTML document into the PDF renderer.
// It has no identity beyond the call that created it.
type RenderRequest struct {
	HTML    string
	Options PDFOptions
}

// PDFOptions controls PDF page layout. Zero values fall back to the
// certificate defaults (A4, 10mm top/bottom margins, no side margins).
type PDFOptions struct {
	PageSize          string
	Landscape         *bool
	PrintBackground   *bool
	Scale             float64
	MarginTop         string
	MarginBottom      string
	MarginLeft        string
	MarginRight       string
	PreferCSSPageSize *bool
}

// DefaultPDFOptions returns the fixed certificate page layout.
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageSize:     "A4",
		MarginTop:    "10mm",
		MarginBottom: "10mm",
		MarginLeft:   "0mm",
		MarginRight:  "0mm",
	}
}

// DocumentProvider fetches the renderable HTML for a credential document.
type DocumentProvider interface {
	FetchRenderableDocument(ctx context.Context, documentID, templateID string) (string, error)
}

// DocumentProviderFunc adapts a function to a DocumentProvider.
type DocumentProviderFunc func(ctx context.Context, documentID, templateID string) (string, error)

func (f DocumentProviderFunc) FetchRenderableDocument(ctx context.Context, documentID, templateID string) (string, error) {
	if f == nil {
		return "", NewError(KindNotImpl, "document provider func is nil", nil)
	}
	return f(ctx, documentID, templateID)
}

// PDFRenderer converts HTML into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, req RenderRequest) ([]byte, error)
}

// StatusTracker persists certificate issuance state.
type StatusTracker interface {
	Start(ctx context.Context, record CertificateRecord) (string, error)
	MarkIssued(ctx context.Context, id string, pdfBytes int64) error
	MarkFailed(ctx context.Context, id string, cause error) error
	Status(ctx context.Context, documentID string) (CertificateRecord, error)
}

// Logger receives diagnostic output.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
