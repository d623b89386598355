package certify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-certify/certify/notify"
	"github.com/google/uuid"
)

// Service coordinates certificate issuance across the document provider,
// renderer, status tracker, and notifier.
type Service interface {
	Render(ctx context.Context, documentID, templateID string) ([]byte, error)
	IssueCertificate(ctx context.Context, documentID, templateID string) (CertificateRecord, []byte, error)
	Status(ctx context.Context, documentID string) (CertificateRecord, error)
	Shutdown(ctx context.Context) error
}

// ServiceConfig supplies dependencies for Service.
type ServiceConfig struct {
	Documents   DocumentProvider
	Renderer    PDFRenderer
	Tracker     StatusTracker
	Notifier    notify.CertificateNotifier
	PDF         PDFOptions
	Logger      Logger
	Now         func() time.Time
	IDGenerator func() string

	// ShutdownFunc releases the rendering engine; wired to the browser pool.
	ShutdownFunc func(ctx context.Context) error
}

type service struct {
	documents   DocumentProvider
	renderer    PDFRenderer
	tracker     StatusTracker
	notifier    notify.CertificateNotifier
	pdf         PDFOptions
	logger      Logger
	now         func() time.Time
	idGenerator func() string
	shutdown    func(ctx context.Context) error
}

// NewService creates a Service with the provided configuration.
func NewService(cfg ServiceConfig) Service {
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	idGen := cfg.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	pdf := cfg.PDF
	if pdf.PageSize == "" {
		pdf = DefaultPDFOptions()
	}

	return &service{
		documents:   cfg.Documents,
		renderer:    cfg.Renderer,
		tracker:     cfg.Tracker,
		notifier:    cfg.Notifier,
		pdf:         pdf,
		logger:      logger,
		now:         nowFn,
		idGenerator: idGen,
		shutdown:    cfg.ShutdownFunc,
	}
}

// Render fetches the renderable document, normalizes it, and produces PDF
// bytes. It is the sole render entry point; callers never reach the browser
// pool directly.
func (s *service) Render(ctx context.Context, documentID, templateID string) ([]byte, error) {
	if s == nil {
		return nil, AsGoError(NewError(KindInternal, "service is nil", nil))
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, AsGoError(NewError(KindValidation, "document ID is required", nil))
	}
	if s.documents == nil {
		return nil, AsGoError(NewError(KindNotImpl, "document provider not configured", nil))
	}
	if s.renderer == nil {
		return nil, AsGoError(NewError(KindNotImpl, "pdf renderer not configured", nil))
	}

	htmlContent, err := s.documents.FetchRenderableDocument(ctx, documentID, templateID)
	if err != nil {
		return nil, AsGoError(wrapFetchError(err))
	}
	if strings.TrimSpace(htmlContent) == "" {
		return nil, AsGoError(NewError(KindUpstream, "document provider returned empty document", nil))
	}

	pdf, err := s.renderer.Render(ctx, RenderRequest{
		HTML:    PreprocessHTML(htmlContent),
		Options: s.pdf,
	})
	if err != nil {
		return nil, AsGoError(err)
	}
	return pdf, nil
}

// IssueCertificate renders the certificate and records the outcome. Status
// persistence failures after a successful render are logged, not surfaced.
func (s *service) IssueCertificate(ctx context.Context, documentID, templateID string) (CertificateRecord, []byte, error) {
	if s == nil {
		return CertificateRecord{}, nil, AsGoError(NewError(KindInternal, "service is nil", nil))
	}

	record := CertificateRecord{
		ID:         s.idGenerator(),
		DocumentID: documentID,
		TemplateID: templateID,
		State:      StatePending,
		CreatedAt:  s.now(),
	}

	if s.tracker != nil {
		id, err := s.tracker.Start(ctx, record)
		if err != nil {
			return CertificateRecord{}, nil, AsGoError(err)
		}
		record.ID = id
	}

	pdf, err := s.Render(ctx, documentID, templateID)
	if err != nil {
		if s.tracker != nil {
			if markErr := s.tracker.MarkFailed(ctx, record.ID, err); markErr != nil {
				s.logger.Errorf("certificate %s: mark failed: %v", record.ID, markErr)
			}
		}
		record.State = StateFailed
		record.LastError = err.Error()
		return record, nil, err
	}

	record.State = StateIssued
	record.PDFBytes = int64(len(pdf))
	record.IssuedAt = s.now()

	if s.tracker != nil {
		if err := s.tracker.MarkIssued(ctx, record.ID, record.PDFBytes); err != nil {
			s.logger.Errorf("certificate %s: mark issued: %v", record.ID, err)
		}
	}

	s.notifyIssued(ctx, record)

	return record, pdf, nil
}

// Status returns the latest issuance record for a document.
func (s *service) Status(ctx context.Context, documentID string) (CertificateRecord, error) {
	if s == nil {
		return CertificateRecord{}, AsGoError(NewError(KindInternal, "service is nil", nil))
	}
	if strings.TrimSpace(documentID) == "" {
		return CertificateRecord{}, AsGoError(NewError(KindValidation, "document ID is required", nil))
	}
	if s.tracker == nil {
		return CertificateRecord{}, AsGoError(NewError(KindNotImpl, "status tracker not configured", nil))
	}

	record, err := s.tracker.Status(ctx, documentID)
	if err != nil {
		return CertificateRecord{}, AsGoError(err)
	}
	return record, nil
}

// Shutdown releases the rendering engine. Idempotent; safe to call from the
// host's teardown hook more than once.
func (s *service) Shutdown(ctx context.Context) error {
	if s == nil || s.shutdown == nil {
		return nil
	}
	return s.shutdown(ctx)
}

// notifyIssued publishes the issued event. Publication runs after the state
// change and never fails the call.
func (s *service) notifyIssued(ctx context.Context, record CertificateRecord) {
	if s.notifier == nil {
		return
	}
	evt := notify.CertificateIssuedEvent{
		CertificateID: record.ID,
		DocumentID:    record.DocumentID,
		TemplateID:    record.TemplateID,
		FileName:      record.DocumentID + ".pdf",
		SizeBytes:     record.PDFBytes,
		IssuedAt:      record.IssuedAt.UTC().Format(time.RFC3339),
	}
	if err := s.notifier.Send(ctx, evt); err != nil {
		s.logger.Errorf("certificate %s: issued notification: %v", record.ID, err)
	}
}

func wrapFetchError(err error) error {
	var certErr *Error
	if errors.As(err, &certErr) {
		return err
	}
	return NewError(KindUpstream, "document fetch failed", err)
}

func defaultIDGenerator() string {
	return "crt-" + uuid.NewString()
}
