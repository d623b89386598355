package notify

import "context"

// CertificateNotifier delivers certificate-issued notifications.
type CertificateNotifier interface {
	Send(ctx context.Context, evt CertificateIssuedEvent) error
}

// CertificateIssuedEvent mirrors go-notifications OnReadyEvent, but stays in
// go-certify.
type CertificateIssuedEvent struct {
	CertificateID string
	DocumentID    string
	TemplateID    string
	Recipients    []string
	Channels      []string
	Locale        string
	TenantID      string
	ActorID       string
	FileName      string
	SizeBytes     int64
	URL           string
	IssuedAt      string
	Message       string
}
