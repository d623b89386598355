package command

import (
	"context"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-certify/certify"
)

// RenderCertificateHandler handles certificate render requests.
type RenderCertificateHandler struct {
	Service certify.Service
}

func NewRenderCertificateHandler(svc certify.Service) *RenderCertificateHandler {
	return &RenderCertificateHandler{Service: svc}
}

func (h *RenderCertificateHandler) Execute(ctx context.Context, msg RenderCertificate) error {
	if h == nil || h.Service == nil {
		return errors.New("certificate service is required", errors.CategoryInternal).
			WithTextCode("SERVICE_REQUIRED")
	}
	record, pdf, err := h.Service.IssueCertificate(ctx, msg.DocumentID, msg.TemplateID)
	if err != nil {
		return err
	}
	if msg.Result != nil {
		*msg.Result = record
	}
	if msg.PDF != nil {
		*msg.PDF = pdf
	}
	if res := gcmd.ResultFromContext[certify.CertificateRecord](ctx); res != nil {
		res.Store(record)
	}
	return nil
}

// ShutdownRendererHandler tears the rendering engine down.
type ShutdownRendererHandler struct {
	Service certify.Service
}

func NewShutdownRendererHandler(svc certify.Service) *ShutdownRendererHandler {
	return &ShutdownRendererHandler{Service: svc}
}

func (h *ShutdownRendererHandler) Execute(ctx context.Context, msg ShutdownRenderer) error {
	_ = msg
	if h == nil || h.Service == nil {
		return errors.New("certificate service is required", errors.CategoryInternal).
			WithTextCode("SERVICE_REQUIRED")
	}
	return h.Service.Shutdown(ctx)
}
