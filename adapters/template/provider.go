// Package certtemplate renders certificate documents from locally registered
// pongo2 templates. It implements the same DocumentProvider contract as the
// credentialing client, for development and offline issuance.
package certtemplate

import (
	"context"
	"fmt"
	"sync"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-certify/certify"
)

// DataSource resolves the data a template is rendered with.
type DataSource interface {
	DocumentData(ctx context.Context, documentID string) (map[string]any, error)
}

// DataSourceFunc adapts a function to a DataSource.
type DataSourceFunc func(ctx context.Context, documentID string) (map[string]any, error)

func (f DataSourceFunc) DocumentData(ctx context.Context, documentID string) (map[string]any, error) {
	if f == nil {
		return nil, certify.NewError(certify.KindNotImpl, "data source func is nil", nil)
	}
	return f(ctx, documentID)
}

// Provider holds registered templates keyed by template ID.
type Provider struct {
	Data DataSource

	mu        sync.RWMutex
	templates map[string]*pongo2.Template
}

var _ certify.DocumentProvider = (*Provider)(nil)

// NewProvider creates an empty template provider.
func NewProvider() *Provider {
	return &Provider{templates: map[string]*pongo2.Template{}}
}

// Register compiles and stores a template source under the given ID.
func (p *Provider) Register(templateID, source string) error {
	if p == nil {
		return certify.NewError(certify.KindInternal, "template provider is nil", nil)
	}
	if templateID == "" {
		return certify.NewError(certify.KindValidation, "template ID is required", nil)
	}

	tpl, err := pongo2.FromString(source)
	if err != nil {
		return certify.NewError(certify.KindValidation, fmt.Sprintf("template %q failed to compile", templateID), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.templates == nil {
		p.templates = map[string]*pongo2.Template{}
	}
	p.templates[templateID] = tpl
	return nil
}

// FetchRenderableDocument renders the registered template with the document's
// data.
func (p *Provider) FetchRenderableDocument(ctx context.Context, documentID, templateID string) (string, error) {
	if p == nil {
		return "", certify.NewError(certify.KindInternal, "template provider is nil", nil)
	}
	if templateID == "" {
		return "", certify.NewError(certify.KindValidation, "template ID is required", nil)
	}

	p.mu.RLock()
	tpl, ok := p.templates[templateID]
	p.mu.RUnlock()
	if !ok {
		return "", certify.NewError(certify.KindNotFound, fmt.Sprintf("template %q not registered", templateID), nil)
	}

	data := map[string]any{"document_id": documentID}
	if p.Data != nil {
		resolved, err := p.Data.DocumentData(ctx, documentID)
		if err != nil {
			return "", certify.NewError(certify.KindUpstream, "document data lookup failed", err)
		}
		for key, value := range resolved {
			data[key] = value
		}
	}

	out, err := tpl.Execute(pongo2.Context(data))
	if err != nil {
		return "", certify.NewError(certify.KindInternal, fmt.Sprintf("template %q render failed", templateID), err)
	}
	return out, nil
}
