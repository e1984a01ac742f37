package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

func auditTestConfig() Config {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	return cfg
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false

	dir := newMockDirectory()
	sink := &countingSink{}

	engine, err := New().
		WithConfig(cfg).
		WithDB(openTestDB(t)).
		WithDirectory(dir).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Initialize(context.Background(), Request{RemoteAddr: "203.0.113.1"}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditSinkReceivesSessionEvents(t *testing.T) {
	sink := NewChannelSink(16)
	dir := newMockDirectory()

	engine, err := New().
		WithConfig(auditTestConfig()).
		WithDB(openTestDB(t)).
		WithDirectory(dir).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Initialize(context.Background(), Request{RemoteAddr: "198.51.100.33"}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != EventSessionCreated {
			t.Fatalf("expected %s, got %s", EventSessionCreated, ev.EventType)
		}
		if ev.ID == "" {
			t.Fatal("expected a populated event ID")
		}
		if ev.IP != "198.51.100.33" {
			t.Fatalf("expected request IP on the event, got %q", ev.IP)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}

func TestAuditCloseFlushesPending(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 32}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: EventLogout})
	}
	d.Close()

	if got := sink.Count(); got != 10 {
		t.Fatalf("expected 10 flushed events, got %d", got)
	}
}

func TestAuditDropIfFullCountsDrops(t *testing.T) {
	block := make(chan struct{})
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true},
		blockingSink{block})
	defer d.Close()
	defer close(block)

	// One event occupies the worker, one fills the buffer; the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: EventLogout})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events under backpressure")
	}
}

type blockingSink struct {
	gate chan struct{}
}

func (s blockingSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func TestJSONWriterSinkEmitsOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), newAuditEvent(EventLoginSuccess, 2, "abc", "127.0.0.1", true))
	sink.Emit(context.Background(), newAuditEvent(EventLogout, 2, "abc", "127.0.0.1", true))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var ev AuditEvent
	if err := json.Unmarshal(lines[0], &ev); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if ev.EventType != EventLoginSuccess || ev.UserID != 2 {
		t.Fatalf("unexpected event %+v", ev)
	}
}
