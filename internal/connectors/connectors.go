// Package connectors pulls raw messages out of the intake mailbox.
package connectors

import (
	"context"
	"fmt"
	"strings"

	"offerdesk/internal"
	"offerdesk/internal/config"
	gmailconnector "offerdesk/internal/connectors/gmail"
	imapconnector "offerdesk/internal/connectors/imap"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.MailMessage, error)
}

// New builds the connector named by provider ("imap" or "gmail").
func New(ctx context.Context, provider string, cfg config.Config) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported intake provider: %s", provider)
	}
}
