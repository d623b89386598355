// Package gonotifications bridges certificate-issued events to
// go-notifications.
package gonotifications

import (
	"context"

	"github.com/goliatone/go-notifications/pkg/onready"

	"github.com/goliatone/go-certify/certify"
	"github.com/goliatone/go-certify/certify/notify"
)

// Notifier adapts a go-notifications OnReadyNotifier to go-certify.
type Notifier struct {
	delegate onready.OnReadyNotifier
}

var _ notify.CertificateNotifier = (*Notifier)(nil)

// NewNotifier wraps a go-notifications notifier.
func NewNotifier(delegate onready.OnReadyNotifier) *Notifier {
	return &Notifier{delegate: delegate}
}

// Send forwards the event to the underlying go-notifications notifier.
func (n *Notifier) Send(ctx context.Context, evt notify.CertificateIssuedEvent) error {
	if n == nil || n.delegate == nil {
		return certify.NewError(certify.KindNotImpl, "go-notifications notifier not configured", nil)
	}

	payload := onready.OnReadyEvent{
		Recipients: evt.Recipients,
		Channels:   evt.Channels,
		Locale:     evt.Locale,
		TenantID:   evt.TenantID,
		ActorID:    evt.ActorID,
		FileName:   evt.FileName,
		Format:     "pdf",
		URL:        evt.URL,
		Message:    evt.Message,
	}

	return n.delegate.Send(ctx, payload)
}
