package command

import (
	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-certify/certify"
)

// RenderCertificate requests a certificate render.
type RenderCertificate struct {
	DocumentID string
	TemplateID string
	Result     *certify.CertificateRecord
	PDF        *[]byte
}

func (RenderCertificate) Type() string { return "certify:render" }

func (msg RenderCertificate) Validate() error {
	if msg.DocumentID == "" {
		return errors.New("document ID is required", errors.CategoryValidation).
			WithTextCode("DOCUMENT_REQUIRED")
	}
	return nil
}

// ShutdownRenderer releases the shared rendering engine.
type ShutdownRenderer struct{}

func (ShutdownRenderer) Type() string { return "certify:shutdown" }

func (ShutdownRenderer) Validate() error { return nil }
