package main

import (
	"testing"
)

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"--db", "/tmp/x.db", "--graph", "work", "notes.json", "--port", "9000"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if f.db != "/tmp/x.db" {
		t.Errorf("db = %q", f.db)
	}
	if f.graph != "work" {
		t.Errorf("graph = %q", f.graph)
	}
	if f.port != 9000 {
		t.Errorf("port = %d", f.port)
	}
	if len(f.rest) != 1 || f.rest[0] != "notes.json" {
		t.Errorf("rest = %v", f.rest)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	cases := [][]string{
		{"--db"},
		{"--port", "abc"},
		{"--unknown"},
	}
	for _, args := range cases {
		if _, err := parseFlags(args); err == nil {
			t.Errorf("parseFlags(%v) expected error", args)
		}
	}
}

func TestParseFlagsDefaultPort(t *testing.T) {
	f, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if f.port != 7466 {
		t.Errorf("default port = %d, want 7466", f.port)
	}
}

func TestParseEventsSingle(t *testing.T) {
	data := []byte(`{"title":"Go Scheduler","summary":"How goroutines run.","link":"https://example.com/sched","topics":["golang","scheduling"]}`)
	events, err := parseEvents(data)
	if err != nil {
		t.Fatalf("parseEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Title != "Go Scheduler" || len(ev.Topics) != 2 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if err := ev.validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestParseEventsArray(t *testing.T) {
	data := []byte(`[
		{"title":"A","summary":"a","link":"https://example.com/a","topics":["x"]},
		{"title":"B","summary":"b","link":"https://example.com/b","topics":["y"]}
	]`)
	events, err := parseEvents(data)
	if err != nil {
		t.Fatalf("parseEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Link != "https://example.com/b" {
		t.Errorf("events[1].Link = %q", events[1].Link)
	}
}

func TestParseEventsInvalid(t *testing.T) {
	for _, data := range []string{"", "   ", "{not json", "[{]"} {
		if _, err := parseEvents([]byte(data)); err == nil {
			t.Errorf("parseEvents(%q) expected error", data)
		}
	}
}

func TestEventValidate(t *testing.T) {
	if err := (extractionEvent{Title: "t"}).validate(); err == nil {
		t.Error("missing link should fail")
	}
	if err := (extractionEvent{Link: "https://x"}).validate(); err == nil {
		t.Error("missing title should fail")
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		512:     "512 B",
		2048:    "2.0 KB",
		1048576: "1.0 MB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
