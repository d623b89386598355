// Package httpapi exposes certificate rendering over HTTP via Fiber.
package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	errorslib "github.com/goliatone/go-errors"

	"github.com/goliatone/go-certify/certify"
)

// DefaultBasePath is the route prefix when none is configured.
const DefaultBasePath = "/certificates"

// Config configures the HTTP handler.
type Config struct {
	Service  certify.Service
	BasePath string
	Logger   certify.Logger
}

// Handler exposes certificate HTTP endpoints.
type Handler struct {
	service  certify.Service
	basePath string
	logger   certify.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(cfg Config) *Handler {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = certify.NopLogger{}
	}
	return &Handler{service: cfg.Service, basePath: basePath, logger: logger}
}

// RegisterRoutes registers handlers on a Fiber router.
func (h *Handler) RegisterRoutes(router fiber.Router) {
	router.Post(h.basePath+"/:document/render", h.renderCertificate)
	router.Get(h.basePath+"/:document", h.certificateStatus)
}

// renderCertificate issues a certificate and streams the PDF bytes back.
func (h *Handler) renderCertificate(c *fiber.Ctx) error {
	if h == nil || h.service == nil {
		return writeError(c, certify.NewError(certify.KindInternal, "certificate service is nil", nil))
	}

	documentID := c.Params("document")
	templateID := c.Query("template")

	record, pdf, err := h.service.IssueCertificate(c.UserContext(), documentID, templateID)
	if err != nil {
		h.logger.Errorf("httpapi: render %s: %v", documentID, err)
		return writeError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+record.DocumentID+`.pdf"`)
	return c.Send(pdf)
}

// certificateStatus returns the latest issuance record for a document.
func (h *Handler) certificateStatus(c *fiber.Ctx) error {
	if h == nil || h.service == nil {
		return writeError(c, certify.NewError(certify.KindInternal, "certificate service is nil", nil))
	}

	record, err := h.service.Status(c.UserContext(), c.Params("document"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(statusResponse{
		ID:         record.ID,
		DocumentID: record.DocumentID,
		TemplateID: record.TemplateID,
		State:      string(record.State),
		PDFBytes:   record.PDFBytes,
		LastError:  record.LastError,
	})
}

type statusResponse struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	TemplateID string `json:"template_id,omitempty"`
	State      string `json:"state"`
	PDFBytes   int64  `json:"pdf_bytes,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(c *fiber.Ctx, err error) error {
	kind := certify.KindFromError(err)
	return c.Status(statusForKind(kind)).JSON(errorResponse{
		Error: errorMessage(err),
		Kind:  string(kind),
	})
}

func errorMessage(err error) string {
	var ge *errorslib.Error
	if errors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	if err != nil {
		return err.Error()
	}
	return "unknown error"
}

func statusForKind(kind certify.ErrorKind) int {
	switch kind {
	case certify.KindValidation:
		return fiber.StatusBadRequest
	case certify.KindNotFound:
		return fiber.StatusNotFound
	case certify.KindUpstream:
		return fiber.StatusBadGateway
	case certify.KindUnavailable:
		return fiber.StatusServiceUnavailable
	case certify.KindContentLoadTimeout, certify.KindRenderTimeout, certify.KindTimeout:
		return fiber.StatusGatewayTimeout
	case certify.KindCanceled:
		return fiber.StatusRequestTimeout
	case certify.KindNotImpl:
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusInternalServerError
	}
}
