package listener

import (
	"context"
	"path/filepath"
	"testing"

	"offerdesk/internal"
	"offerdesk/internal/batch"
	"offerdesk/internal/config"
	"offerdesk/internal/connectors"
	"offerdesk/internal/storage"
)

const rawMessage = "From: a@example.ro\r\n" +
	"Subject: Cerere\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"B\"\r\n\r\n" +
	"--B\r\nContent-Type: text/plain\r\n\r\nsalut\r\n" +
	"--B\r\nContent-Type: application/pdf\r\nContent-Disposition: attachment; filename=\"cerere.pdf\"\r\n\r\n%PDF-1.4\r\n" +
	"--B--\r\n"

type fakeConnector struct{ calls int }

func (c *fakeConnector) FetchInbox(context.Context, string, int) ([]internal.MailMessage, error) {
	c.calls++
	return []internal.MailMessage{{Provider: "imap", MessageID: "<m1@x>", Raw: []byte(rawMessage)}}, nil
}

type fakeRunner struct {
	registered int
	runs       int
	busy       bool
}

func (r *fakeRunner) Register(internal.IncomingDocument) (internal.UploadItem, bool, error) {
	r.registered++
	return internal.UploadItem{}, true, nil
}

func (r *fakeRunner) RunPending(context.Context) (batch.Result, error) {
	if r.busy {
		return batch.Result{}, batch.ErrBatchRunning
	}
	r.runs++
	return batch.Result{Processed: 1, Succeeded: 1}, nil
}

func newTestService(t *testing.T, autoRun bool, runner *fakeRunner, conn *fakeConnector) *Service {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{IntakeProvider: "imap", IntakeLabel: "INBOX", IntakeFetchMax: 5, RawMailDir: filepath.Join(dir, "raw"), IntakeAutoRunBatch: autoRun}
	s := NewService(db, cfg, runner)
	s.newConnector = func(context.Context, string, config.Config) (connectors.MailConnector, error) { return conn, nil }
	return s
}

func TestRunCycleRegistersAndRunsBatch(t *testing.T) {
	runner := &fakeRunner{}
	conn := &fakeConnector{}
	s := newTestService(t, true, runner, conn)

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if runner.registered != 1 || runner.runs != 1 {
		t.Fatalf("registered=%d runs=%d", runner.registered, runner.runs)
	}

	// The message is now known, so nothing new is registered or run.
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if conn.calls != 2 || runner.registered != 1 || runner.runs != 1 {
		t.Fatalf("calls=%d registered=%d runs=%d", conn.calls, runner.registered, runner.runs)
	}
}

func TestRunCycleWithoutAutoRun(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestService(t, false, runner, &fakeConnector{})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if runner.runs != 0 {
		t.Fatalf("runs=%d", runner.runs)
	}
}

func TestRunCycleToleratesBusyBatch(t *testing.T) {
	runner := &fakeRunner{busy: true}
	s := newTestService(t, true, runner, &fakeConnector{})
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("busy batch should not fail the cycle: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newTestService(t, false, &fakeRunner{}, &fakeConnector{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
}
