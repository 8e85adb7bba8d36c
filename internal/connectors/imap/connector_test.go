package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"

	"offerdesk/internal/config"
)

func TestNewConnectorRequiresCredentials(t *testing.T) {
	if _, err := NewConnector(config.Config{IMAPHost: "mail.example.com"}); err == nil {
		t.Fatal("expected missing credentials error")
	}
	c, err := NewConnector(config.Config{IMAPHost: "mail.example.com", IMAPPort: 993, IMAPUser: "u", IMAPPassword: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if c.addr != "mail.example.com:993" {
		t.Fatalf("addr=%s", c.addr)
	}
}

func TestToMailMessage(t *testing.T) {
	msg := &imap.Message{
		Uid:          42,
		InternalDate: time.Date(2025, 12, 18, 10, 0, 0, 0, time.FixedZone("EET", 2*3600)),
		Envelope: &imap.Envelope{
			Subject: "Cerere oferta",
			From: []*imap.Address{
				{PersonalName: "Ana Pop", MailboxName: "ana", HostName: "example.ro"},
				nil,
				{MailboxName: "office", HostName: "example.ro"},
			},
		},
	}
	got := toMailMessage(msg, []byte("raw"))
	if got.MessageID != "imap-42" {
		t.Fatalf("message id=%s", got.MessageID)
	}
	if got.From != "Ana Pop <ana@example.ro>, office@example.ro" {
		t.Fatalf("from=%s", got.From)
	}
	if got.ReceivedAt != "2025-12-18T08:00:00Z" {
		t.Fatalf("received=%s", got.ReceivedAt)
	}
}
