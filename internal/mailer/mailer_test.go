package mailer

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"

	"github.com/capigrid/capigrid/internal/metrics"
)

func setupQueue(t *testing.T) *Queue {
	t.Helper()

	q, err := OpenQueue(filepath.Join(t.TempDir(), "mail.db"))
	if err != nil {
		t.Fatalf("OpenQueue() error = %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func newEmail(to string) *Email {
	return &Email{
		ID:      uuid.New().String(),
		To:      to,
		Subject: "test",
		Body:    "hello",
	}
}

func TestQueueEnqueueDequeue(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	first := newEmail("a@example.com")
	second := newEmail("b@example.com")

	if err := q.Enqueue(ctx, first); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	time.Sleep(2 * time.Millisecond) // keep index keys ordered
	if err := q.Enqueue(ctx, second); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Fatalf("Dequeue() = %v, want first enqueued email", got)
	}
	if got.Status != StatusSending {
		t.Errorf("Status = %v, want %v", got.Status, StatusSending)
	}

	got, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Fatalf("Dequeue() = %v, want second enqueued email", got)
	}

	got, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if got != nil {
		t.Errorf("Dequeue() on empty queue = %v, want nil", got)
	}
}

func TestQueueDeferredNotReady(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	email := newEmail("a@example.com")
	if err := q.Enqueue(ctx, email); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	claimed, err := q.Dequeue(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("Dequeue() = %v, %v", claimed, err)
	}

	claimed.Status = StatusDeferred
	claimed.NextRetryAt = time.Now().Add(time.Hour)
	if err := q.Update(ctx, claimed); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if got != nil {
		t.Errorf("Dequeue() returned deferred email before its retry time")
	}
}

func TestQueueDeferredReady(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	email := newEmail("a@example.com")
	if err := q.Enqueue(ctx, email); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	claimed, err := q.Dequeue(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("Dequeue() = %v, %v", claimed, err)
	}

	claimed.Status = StatusDeferred
	claimed.NextRetryAt = time.Now().Add(-time.Minute)
	if err := q.Update(ctx, claimed); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if got == nil || got.ID != email.ID {
		t.Fatalf("Dequeue() = %v, want deferred email past its retry time", got)
	}
}

func TestQueueStats(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, newEmail("a@example.com")); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	claimed, err := q.Dequeue(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("Dequeue() = %v, %v", claimed, err)
	}
	claimed.Status = StatusDelivered
	if err := q.Update(ctx, claimed); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Pending != 2 {
		t.Errorf("Pending = %d, want 2", stats.Pending)
	}
	if stats.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", stats.Delivered)
	}
}

// mockSender records sends and returns a scripted error
type mockSender struct {
	err  error
	sent []*Email
}

func (s *mockSender) Send(ctx context.Context, email *Email) error {
	s.sent = append(s.sent, email)
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessorDelivers(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	email := newEmail("a@example.com")
	if err := q.Enqueue(ctx, email); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	sender := &mockSender{}
	p := NewProcessor(q, sender, ProcessorConfig{}, testLogger())
	p.processOne(ctx, testLogger())

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}

	got, err := q.Get(ctx, email.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusDelivered {
		t.Errorf("Status = %v, want %v", got.Status, StatusDelivered)
	}
}

func TestProcessorDefersTemporaryFailure(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	email := newEmail("a@example.com")
	if err := q.Enqueue(ctx, email); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	sender := &mockSender{err: &DeliveryError{Temporary: true, Message: "451 try later"}}
	p := NewProcessor(q, sender, ProcessorConfig{}, testLogger())
	p.processOne(ctx, testLogger())

	got, err := q.Get(ctx, email.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusDeferred {
		t.Errorf("Status = %v, want %v", got.Status, StatusDeferred)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
	if !got.NextRetryAt.After(time.Now()) {
		t.Error("NextRetryAt should be in the future")
	}
}

func TestProcessorFailsPermanentError(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	email := newEmail("a@example.com")
	if err := q.Enqueue(ctx, email); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	sender := &mockSender{err: &DeliveryError{Temporary: false, Message: "550 no such user"}}
	p := NewProcessor(q, sender, ProcessorConfig{}, testLogger())
	p.processOne(ctx, testLogger())

	got, err := q.Get(ctx, email.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("Status = %v, want %v", got.Status, StatusFailed)
	}
}

func emailsSentCount(t *testing.T, m *metrics.Metrics, status string) float64 {
	t.Helper()

	var d dto.Metric
	if err := m.EmailsSentTotal.WithLabelValues(status).Write(&d); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return d.GetCounter().GetValue()
}

func TestProcessorCountsDeliveryOutcomes(t *testing.T) {
	m := metrics.New()
	metrics.SetGlobal(m)
	t.Cleanup(func() { metrics.SetGlobal(nil) })

	q := setupQueue(t)
	ctx := context.Background()

	outcomes := []struct {
		sendErr error
		status  string
	}{
		{nil, "delivered"},
		{&DeliveryError{Temporary: true, Message: "451 try later"}, "deferred"},
		{&DeliveryError{Temporary: false, Message: "550 no such user"}, "failed"},
	}

	for _, o := range outcomes {
		if err := q.Enqueue(ctx, newEmail("a@example.com")); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		p := NewProcessor(q, &mockSender{err: o.sendErr}, ProcessorConfig{}, testLogger())
		p.processOne(ctx, testLogger())

		if got := emailsSentCount(t, m, o.status); got != 1 {
			t.Errorf("emails_sent_total{status=%q} = %v, want 1", o.status, got)
		}
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		msg       string
		temporary bool
	}{
		{"550 5.1.1 user unknown", false},
		{"451 4.7.1 greylisted", true},
		{"connection reset by peer", true},
	}

	for _, tt := range tests {
		de := categorizeError(errFromString(tt.msg), "RCPT TO")
		if de.Temporary != tt.temporary {
			t.Errorf("categorizeError(%q).Temporary = %v, want %v", tt.msg, de.Temporary, tt.temporary)
		}
	}
}

type stringError string

func (e stringError) Error() string { return string(e) }

func errFromString(s string) error { return stringError(s) }

func TestMailerSendVerification(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	m := New(q, "https://capigrid.example.com")
	if err := m.SendVerification(ctx, "alice@example.com", "Alice", "tok-123"); err != nil {
		t.Fatalf("SendVerification() error = %v", err)
	}

	email, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if email == nil {
		t.Fatal("Dequeue() = nil, want queued verification email")
	}
	if email.To != "alice@example.com" {
		t.Errorf("To = %v, want alice@example.com", email.To)
	}
	if !strings.Contains(email.Body, "verify-email?token=tok-123") {
		t.Errorf("body missing verification link: %q", email.Body)
	}
	if !strings.Contains(email.Body, "Alice") {
		t.Errorf("body missing recipient name: %q", email.Body)
	}
}

func TestNilMailerDropsMail(t *testing.T) {
	var m *Mailer
	if err := m.SendVerification(context.Background(), "a@b.c", "A", "t"); err != nil {
		t.Errorf("nil mailer SendVerification() error = %v", err)
	}
	if err := m.SendPasswordReset(context.Background(), "a@b.c", "A", "t"); err != nil {
		t.Errorf("nil mailer SendPasswordReset() error = %v", err)
	}
}
