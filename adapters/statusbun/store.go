// Package statusbun persists certificate status in a Bun-backed database.
package statusbun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-certify/certify"
)

// Store records certificate issuance state keyed by record ID.
type Store struct {
	DB          *bun.DB
	Now         func() time.Time
	IDGenerator func() string
}

var _ certify.StatusTracker = (*Store)(nil)

// NewStore creates a Bun-backed status store.
func NewStore(db *bun.DB) *Store {
	return &Store{DB: db, Now: time.Now, IDGenerator: defaultIDGenerator}
}

// Init creates the backing table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return certify.NewError(certify.KindNotImpl, "status database not configured", nil)
	}
	_, err := s.DB.NewCreateTable().Model((*certificateModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Start inserts a new pending certificate record.
func (s *Store) Start(ctx context.Context, record certify.CertificateRecord) (string, error) {
	if s == nil || s.DB == nil {
		return "", certify.NewError(certify.KindNotImpl, "status database not configured", nil)
	}
	if record.DocumentID == "" {
		return "", certify.NewError(certify.KindValidation, "document ID is required", nil)
	}
	if record.ID == "" {
		record.ID = s.nextID()
	}
	if record.State == "" {
		record.State = certify.StatePending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	model := modelFromRecord(record)
	if _, err := s.DB.NewInsert().Model(&model).Exec(ctx); err != nil {
		return "", err
	}
	return record.ID, nil
}

// MarkIssued transitions a record to issued with the rendered byte size.
func (s *Store) MarkIssued(ctx context.Context, id string, pdfBytes int64) error {
	if s == nil || s.DB == nil {
		return certify.NewError(certify.KindNotImpl, "status database not configured", nil)
	}
	if id == "" {
		return certify.NewError(certify.KindValidation, "certificate ID is required", nil)
	}

	res, err := s.DB.NewUpdate().Model((*certificateModel)(nil)).
		Set("state = ?", certify.StateIssued).
		Set("pdf_bytes = ?", pdfBytes).
		Set("last_error = ?", "").
		Set("issued_at = COALESCE(issued_at, ?)", s.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return certify.NewError(certify.KindNotFound, fmt.Sprintf("certificate %q not found", id), nil)
	}
	return nil
}

// MarkFailed transitions a record to failed, keeping the cause.
func (s *Store) MarkFailed(ctx context.Context, id string, cause error) error {
	if s == nil || s.DB == nil {
		return certify.NewError(certify.KindNotImpl, "status database not configured", nil)
	}
	if id == "" {
		return certify.NewError(certify.KindValidation, "certificate ID is required", nil)
	}

	message := ""
	if cause != nil {
		message = cause.Error()
	}

	res, err := s.DB.NewUpdate().Model((*certificateModel)(nil)).
		Set("state = ?", certify.StateFailed).
		Set("last_error = ?", message).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return certify.NewError(certify.KindNotFound, fmt.Sprintf("certificate %q not found", id), nil)
	}
	return nil
}

// Status returns the latest issuance record for a document.
func (s *Store) Status(ctx context.Context, documentID string) (certify.CertificateRecord, error) {
	if s == nil || s.DB == nil {
		return certify.CertificateRecord{}, certify.NewError(certify.KindNotImpl, "status database not configured", nil)
	}
	if documentID == "" {
		return certify.CertificateRecord{}, certify.NewError(certify.KindValidation, "document ID is required", nil)
	}

	var model certificateModel
	err := s.DB.NewSelect().Model(&model).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return certify.CertificateRecord{}, certify.NewError(certify.KindNotFound, fmt.Sprintf("no certificate for document %q", documentID), nil)
		}
		return certify.CertificateRecord{}, err
	}
	return recordFromModel(model), nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) nextID() string {
	if s.IDGenerator != nil {
		return s.IDGenerator()
	}
	return defaultIDGenerator()
}

func defaultIDGenerator() string {
	return "crt-" + uuid.NewString()
}

type certificateModel struct {
	bun.BaseModel `bun:"table:certificate_records,alias:certificate_records"`

	ID         string    `bun:",pk"`
	DocumentID string    `bun:"document_id,notnull"`
	TemplateID string    `bun:"template_id"`
	State      string    `bun:",notnull"`
	PDFBytes   int64     `bun:"pdf_bytes"`
	LastError  string    `bun:"last_error"`
	CreatedAt  time.Time `bun:"created_at"`
	IssuedAt   time.Time `bun:"issued_at,nullzero"`
}

func modelFromRecord(record certify.CertificateRecord) certificateModel {
	return certificateModel{
		ID:         record.ID,
		DocumentID: record.DocumentID,
		TemplateID: record.TemplateID,
		State:      string(record.State),
		PDFBytes:   record.PDFBytes,
		LastError:  record.LastError,
		CreatedAt:  record.CreatedAt,
		IssuedAt:   record.IssuedAt,
	}
}

func recordFromModel(model certificateModel) certify.CertificateRecord {
	return certify.CertificateRecord{
		ID:         model.ID,
		DocumentID: model.DocumentID,
		TemplateID: model.TemplateID,
		State:      certify.CertificateState(model.State),
		PDFBytes:   model.PDFBytes,
		LastError:  model.LastError,
		CreatedAt:  model.CreatedAt,
		IssuedAt:   model.IssuedAt,
	}
}
