package query

import (
	"context"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-certify/certify"
)

// CertificateStatusHandler returns a certificate status record.
type CertificateStatusHandler struct {
	Service certify.Service
}

func NewCertificateStatusHandler(svc certify.Service) *CertificateStatusHandler {
	return &CertificateStatusHandler{Service: svc}
}

func (h *CertificateStatusHandler) Query(ctx context.Context, msg CertificateStatus) (certify.CertificateRecord, error) {
	if h == nil || h.Service == nil {
		return certify.CertificateRecord{}, errors.New("certificate service is required", errors.CategoryInternal).
			WithTextCode("SERVICE_REQUIRED")
	}
	return h.Service.Status(ctx, msg.DocumentID)
}
