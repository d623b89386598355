package query

import (
	"github.com/goliatone/go-errors"
)

// CertificateStatus requests the latest issuance record for a document.
type CertificateStatus struct {
	DocumentID string
}

func (CertificateStatus) Type() string { return "certify:status" }

func (msg CertificateStatus) Validate() error {
	if msg.DocumentID == "" {
		return errors.New("document ID is required", errors.CategoryValidation).
			WithTextCode("DOCUMENT_REQUIRED")
	}
	return nil
}
