package browser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/goliatone/go-certify/certify"
)

const defaultPDFScale = 1.0

var pdfLengthPattern = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-zA-Z]*)\s*$`)

var pdfPageSizesInches = map[string]struct {
	width  float64
	height float64
}{
	"A3":     {width: 11.69, height: 16.54},
	"A4":     {width: 8.27, height: 11.69},
	"A5":     {width: 5.83, height: 8.27},
	"LETTER": {width: 8.5, height: 11},
	"LEGAL":  {width: 8.5, height: 14},
}

// ChromiumLauncher starts headless Chromium instances with sandboxing and
// performance flags suited to constrained execution environments.
type ChromiumLauncher struct {
	BrowserPath string
	Headless    bool
	Args        []string
}

var _ Launcher = (*ChromiumLauncher)(nil)

// Launch starts a Chromium process and waits for it to accept DevTools
// commands, racing startup against ctx.
func (l *ChromiumLauncher) Launch(ctx context.Context) (Instance, error) {
	headless := true
	args := []string{}
	path := ""
	if l != nil {
		headless = l.Headless
		args = l.Args
		path = l.BrowserPath
	}

	options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if path != "" {
		options = append(options, chromedp.ExecPath(path))
	}
	options = append(options,
		chromedp.Flag("headless", headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	options = append(options, allocatorOptionsFromArgs(args)...)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), options...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() {
		// A bare Run forces the browser process to start.
		started <- chromedp.Run(browserCtx)
	}()

	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, err
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, ctx.Err()
	}

	return &chromiumInstance{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		createdAt:     time.Now(),
	}, nil
}

// chromiumInstance wraps a running browser process. The browser context is
// canceled by chromedp when the process dies, which doubles as the
// connectivity probe.
type chromiumInstance struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	createdAt     time.Time
}

var _ Instance = (*chromiumInstance)(nil)

func (i *chromiumInstance) Connected() bool {
	return i.browserCtx.Err() == nil
}

// NewSession opens a fresh tab with the fixed certificate viewport.
func (i *chromiumInstance) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !i.Connected() {
		return nil, fmt.Errorf("browser disconnected")
	}

	tabCtx, tabCancel := chromedp.NewContext(i.browserCtx)
	session := &chromiumSession{tabCtx: tabCtx, tabCancel: tabCancel}
	if err := session.run(ctx, chromedp.EmulateViewport(ViewportWidth, ViewportHeight)); err != nil {
		tabCancel()
		return nil, err
	}
	return session, nil
}

func (i *chromiumInstance) Close() error {
	err := chromedp.Cancel(i.browserCtx)
	i.browserCancel()
	i.allocCancel()
	return err
}

// chromiumSession is one tab, owned by a single render call.
type chromiumSession struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
}

var _ Session = (*chromiumSession)(nil)

// SetContent loads the document into the tab and waits for the body to be
// ready.
func (s *chromiumSession) SetContent(ctx context.Context, htmlContent string) error {
	return s.run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// WaitFontsReady blocks until the document's font faces finish loading.
func (s *chromiumSession) WaitFontsReady(ctx context.Context) error {
	var ready bool
	return s.run(ctx,
		chromedp.Evaluate(`document.fonts.ready.then(() => true)`, &ready,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithAwaitPromise(true)
			}),
	)
}

// PrintPDF exports the tab to PDF bytes.
func (s *chromiumSession) PrintPDF(ctx context.Context, opts certify.PDFOptions) ([]byte, error) {
	params, err := buildPrintToPDFParams(opts)
	if err != nil {
		return nil, err
	}

	var pdf []byte
	err = s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var perr error
		pdf, _, perr = params.Do(ctx)
		return perr
	}))
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

// Close tears the tab down. The browser itself stays up.
func (s *chromiumSession) Close() error {
	err := chromedp.Cancel(s.tabCtx)
	s.tabCancel()
	return err
}

// run executes actions on the tab while honoring the caller's context; a
// caller deadline cancels the tab operation without touching the browser.
func (s *chromiumSession) run(ctx context.Context, actions ...chromedp.Action) error {
	execCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-execCtx.Done():
		}
	}()

	if err := chromedp.Run(execCtx, actions...); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return err
	}
	return nil
}

func buildPrintToPDFParams(opts certify.PDFOptions) (*page.PrintToPDFParams, error) {
	params := page.PrintToPDF()

	scale := opts.Scale
	if scale == 0 {
		scale = defaultPDFScale
	}
	if scale < 0.1 || scale > 2.0 {
		return nil, certify.NewError(certify.KindValidation, "pdf scale must be between 0.1 and 2.0", nil)
	}
	params = params.WithScale(scale)

	if opts.Landscape != nil {
		params = params.WithLandscape(*opts.Landscape)
	}

	printBackground := true
	if opts.PrintBackground != nil {
		printBackground = *opts.PrintBackground
	}
	params = params.WithPrintBackground(printBackground)

	preferCSS := false
	if opts.PreferCSSPageSize != nil {
		preferCSS = *opts.PreferCSSPageSize
	} else if opts.PageSize == "" {
		preferCSS = true
	}
	if preferCSS {
		params = params.WithPreferCSSPageSize(true)
	}

	if opts.PageSize != "" {
		size, ok := pdfPageSizesInches[strings.ToUpper(opts.PageSize)]
		if !ok {
			return nil, certify.NewError(certify.KindValidation, fmt.Sprintf("unsupported pdf page size: %s", opts.PageSize), nil)
		}
		params = params.WithPaperWidth(size.width).WithPaperHeight(size.height)
	}

	if opts.MarginTop != "" {
		value, err := parseLengthInches(opts.MarginTop)
		if err != nil {
			return nil, err
		}
		params = params.WithMarginTop(value)
	}
	if opts.MarginBottom != "" {
		value, err := parseLengthInches(opts.MarginBottom)
		if err != nil {
			return nil, err
		}
		params = params.WithMarginBottom(value)
	}
	if opts.MarginLeft != "" {
		value, err := parseLengthInches(opts.MarginLeft)
		if err != nil {
			return nil, err
		}
		params = params.WithMarginLeft(value)
	}
	if opts.MarginRight != "" {
		value, err := parseLengthInches(opts.MarginRight)
		if err != nil {
			return nil, err
		}
		params = params.WithMarginRight(value)
	}

	return params, nil
}

func parseLengthInches(value string) (float64, error) {
	matches := pdfLengthPattern.FindStringSubmatch(value)
	if len(matches) != 3 {
		return 0, certify.NewError(certify.KindValidation, fmt.Sprintf("invalid pdf length: %s", value), nil)
	}

	raw := matches[1]
	unit := strings.ToLower(matches[2])
	if unit == "" {
		unit = "in"
	}

	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, certify.NewError(certify.KindValidation, fmt.Sprintf("invalid pdf length: %s", value), err)
	}

	switch unit {
	case "in":
		return amount, nil
	case "cm":
		return amount / 2.54, nil
	case "mm":
		return amount / 25.4, nil
	case "pt":
		return amount / 72.0, nil
	case "px":
		return amount / 96.0, nil
	default:
		return 0, certify.NewError(certify.KindValidation, fmt.Sprintf("unsupported pdf length unit: %s", unit), nil)
	}
}

func allocatorOptionsFromArgs(args []string) []chromedp.ExecAllocatorOption {
	options := make([]chromedp.ExecAllocatorOption, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			options = append(options, chromedp.Flag(name, value))
			continue
		}
		options = append(options, chromedp.Flag(arg, true))
	}
	return options
}
