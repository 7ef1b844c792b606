package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

type memWriter struct {
	puts map[string][]byte
}

func (m *memWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if m.puts == nil {
		m.puts = make(map[string][]byte)
	}
	m.puts[path] = buf
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return m.Put(ctx, path, data, "")
}

type memEvents struct {
	events []domain.SettlementEvent
}

func (m *memEvents) Append(ctx context.Context, ev domain.SettlementEvent) error {
	m.events = append(m.events, ev)
	return nil
}

func (m *memEvents) List(ctx context.Context, opts domain.ListOpts) ([]domain.SettlementEvent, error) {
	return m.events, nil
}

func (m *memEvents) ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementEvent, error) {
	var out []domain.SettlementEvent
	for _, ev := range m.events {
		if ev.CreatedAt.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memEvents) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var kept []domain.SettlementEvent
	var deleted int64
	for _, ev := range m.events {
		if ev.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return deleted, nil
}

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestArchiveEvents(t *testing.T) {
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	events := &memEvents{events: []domain.SettlementEvent{
		{ID: 1, Kind: domain.EventPayout, CreatedAt: cutoff.Add(-48 * time.Hour)},
		{ID: 2, Kind: domain.EventBoostApplied, CreatedAt: cutoff.Add(-time.Hour)},
		{ID: 3, Kind: domain.EventPayout, CreatedAt: cutoff.Add(time.Hour)},
	}}
	writer := &memWriter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	arch := NewArchiver(writer, events, passTx{}, logger)
	count, err := arch.ArchiveEvents(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveEvents: %v", err)
	}
	if count != 2 {
		t.Errorf("archived = %d, want 2", count)
	}

	path := "archive/events/2026-02.jsonl"
	body, ok := writer.puts[path]
	if !ok {
		t.Fatalf("no object at %s, puts = %v", path, writer.puts)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 2 {
		t.Errorf("jsonl lines = %d, want 2", len(lines))
	}
	if !bytes.Contains(body, []byte(`"boost_applied"`)) {
		t.Error("archived payload is missing the boost event")
	}

	// The recent event survives the prune.
	if len(events.events) != 1 || events.events[0].ID != 3 {
		t.Errorf("remaining events = %+v, want only id 3", events.events)
	}
}

func TestArchiveEventsNothingToDo(t *testing.T) {
	writer := &memWriter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	arch := NewArchiver(writer, &memEvents{}, passTx{}, logger)

	count, err := arch.ArchiveEvents(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("ArchiveEvents: %v", err)
	}
	if count != 0 {
		t.Errorf("archived = %d, want 0", count)
	}
	if len(writer.puts) != 0 {
		t.Error("an empty window must not upload an object")
	}
}
