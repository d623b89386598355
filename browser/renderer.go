package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-certify/certify"
)

const (
	// DefaultContentTimeout bounds loading the document into the session.
	DefaultContentTimeout = 30 * time.Second

	// DefaultExportTimeout bounds the PDF export itself.
	DefaultExportTimeout = 30 * time.Second

	// Fixed render viewport.
	ViewportWidth  = 1200
	ViewportHeight = 1600
)

// Renderer runs one render session per call against the pooled instance:
// open an execution context, load content, wait for assets, export, and
// always tear the context down.
type Renderer struct {
	Pool           *Pool
	ContentTimeout time.Duration
	ExportTimeout  time.Duration
	Logger         certify.Logger
}

var _ certify.PDFRenderer = (*Renderer)(nil)

// NewRenderer creates a Renderer over the given pool.
func NewRenderer(pool *Pool) *Renderer {
	return &Renderer{Pool: pool}
}

// Render converts the request's HTML into PDF bytes. The session is closed
// on every exit path; the shared instance is left alone. A close failure
// after a successful export is logged and the bytes are still returned.
func (r *Renderer) Render(ctx context.Context, req certify.RenderRequest) ([]byte, error) {
	if r == nil || r.Pool == nil {
		return nil, certify.NewError(certify.KindNotImpl, "renderer pool not configured", nil)
	}
	if strings.TrimSpace(req.HTML) == "" {
		return nil, certify.NewError(certify.KindValidation, "render request has no document", nil)
	}

	inst, err := r.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	session, err := inst.NewSession(ctx)
	if err != nil {
		return nil, certify.NewError(certify.KindUnavailable, "execution context open failed", err)
	}
	defer func() {
		// Cleanup never masks an earlier failure and never fails a success.
		if cerr := session.Close(); cerr != nil {
			r.logger().Errorf("browser: execution context close: %v", cerr)
		}
	}()

	loadCtx, cancelLoad := context.WithTimeout(ctx, r.contentTimeout())
	defer cancelLoad()

	if err := session.SetContent(loadCtx, req.HTML); err != nil {
		return nil, classifyTimeout(ctx, err, certify.KindContentLoadTimeout, "content load")
	}

	// Font readiness is best-effort, bounded by the same load deadline.
	if err := session.WaitFontsReady(loadCtx); err != nil {
		r.logger().Debugf("browser: font readiness wait gave up: %v", err)
	}

	exportCtx, cancelExport := context.WithTimeout(ctx, r.exportTimeout())
	defer cancelExport()

	pdf, err := session.PrintPDF(exportCtx, req.Options)
	if err != nil {
		return nil, classifyTimeout(ctx, err, certify.KindRenderTimeout, "pdf export")
	}
	return pdf, nil
}

func (r *Renderer) contentTimeout() time.Duration {
	if r.ContentTimeout > 0 {
		return r.ContentTimeout
	}
	return DefaultContentTimeout
}

func (r *Renderer) exportTimeout() time.Duration {
	if r.ExportTimeout > 0 {
		return r.ExportTimeout
	}
	return DefaultExportTimeout
}

func (r *Renderer) logger() certify.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return certify.NopLogger{}
}

// classifyTimeout distinguishes the per-operation deadline from a caller
// abandoning the whole render.
func classifyTimeout(callCtx context.Context, err error, timeoutKind certify.ErrorKind, op string) error {
	var certErr *certify.Error
	if errors.As(err, &certErr) {
		return err
	}
	if callCtx.Err() != nil {
		return certify.NewError(contextKind(callCtx.Err()), op+" abandoned", callCtx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return certify.NewError(timeoutKind, op+" timed out", err)
	}
	return certify.NewError(certify.KindInternal, op+" failed", err)
}
