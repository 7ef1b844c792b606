package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (s *recordingSender) Send(ctx context.Context, title, message string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByAlertType(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"payout_failed", "reserve_health"}, testLogger())

	if err := n.Notify(context.Background(), "payout_failed", "Payout failed", "position p1"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(context.Background(), "tick_complete", "Tick", "ignored"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(sender.titles) != 1 || sender.titles[0] != "Payout failed" {
		t.Errorf("delivered = %v, want only the allowed alert", sender.titles)
	}
}

func TestNotifyEmptyAllowListPassesEverything(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	if err := n.Notify(context.Background(), "anything", "Title", "body"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.titles) != 1 {
		t.Errorf("delivered = %v, want one alert", sender.titles)
	}
}

func TestDispatchIsolatesSenderFailures(t *testing.T) {
	broken := &recordingSender{name: "broken", err: errors.New("boom")}
	healthy := &recordingSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "Partial payout", "position p2 shortfall 40")
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("err = %v, want combined error naming the failed sender", err)
	}
	if len(healthy.titles) != 1 {
		t.Errorf("healthy sender delivered = %v, want one alert despite sibling failure", healthy.titles)
	}
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	if err := sender.Send(context.Background(), "Reserve health", "trench t1 buffer below 10%"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(got["content"], "**Reserve health**") {
		t.Errorf("content = %q, want bolded title", got["content"])
	}
}

func TestDiscordSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), "Payout failed", "position p3")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status error", err)
	}
}
