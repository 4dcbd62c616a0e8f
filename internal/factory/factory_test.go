package factory

import (
	"Go2CrossCount/internal/config"
	"Go2CrossCount/internal/model"
	"errors"
	"strings"
	"testing"
)

type nopWriter struct{ closed bool }

func (w *nopWriter) Name() string               { return "nop" }
func (w *nopWriter) Open(model.RunInfo) error   { return nil }
func (w *nopWriter) Append(*model.Bucket) error { return nil }
func (w *nopWriter) Close() error               { w.closed = true; return nil }

func TestCreateWriters(t *testing.T) {
	created := &nopWriter{}
	RegisterWriter("test-nop", func(def config.WriterDef) (model.Writer, error) {
		return created, nil
	})
	RegisterWriter("test-broken", func(def config.WriterDef) (model.Writer, error) {
		return nil, errors.New("cannot connect")
	})

	cfg := &config.Config{Writers: []config.WriterDef{
		{Type: "test-nop", Enabled: true},
		{Type: "test-broken", Enabled: false},
	}}
	writers, err := CreateWriters(cfg)
	if err != nil {
		t.Fatalf("CreateWriters failed: %v", err)
	}
	if len(writers) != 1 || writers[0] != created {
		t.Fatalf("Expected only the enabled writer, got %v", writers)
	}

	cfg.Writers[1].Enabled = true
	if _, err := CreateWriters(cfg); err == nil || !strings.Contains(err.Error(), "cannot connect") {
		t.Errorf("Expected the broken writer to fail startup, got %v", err)
	}
	if !created.closed {
		t.Errorf("Expected writers created before the failure to be closed")
	}

	if _, err := CreateWriters(&config.Config{Writers: []config.WriterDef{{Type: "nope", Enabled: true}}}); err == nil {
		t.Errorf("Expected an error for an unknown writer type")
	}
	if _, err := CreateWriters(&config.Config{}); err == nil {
		t.Errorf("Expected an error when no writer is enabled")
	}
}

func TestRegisterWriter_DuplicatePanics(t *testing.T) {
	RegisterWriter("test-dup", func(config.WriterDef) (model.Writer, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Errorf("Expected a panic on duplicate registration")
		}
	}()
	RegisterWriter("test-dup", func(config.WriterDef) (model.Writer, error) { return nil, nil })
}

func TestRecordingPath(t *testing.T) {
	cfg := &config.Config{Counter: config.CounterConfig{Video: "/data/junction.mp4"}}
	if got := RecordingPath(cfg); got != "/data/junction.jsonl" {
		t.Errorf("Expected recording next to the video, got %s", got)
	}
	cfg.Source.File.Path = "/data/other.jsonl"
	if got := RecordingPath(cfg); got != "/data/other.jsonl" {
		t.Errorf("Expected the explicit path, got %s", got)
	}
}

func TestOpenSource_MissingRecording(t *testing.T) {
	cfg := &config.Config{Source: config.SourceConfig{Type: "file"}}
	if _, err := OpenSource(cfg); !errors.Is(err, model.ErrSourceUnavailable) {
		t.Errorf("Expected ErrSourceUnavailable without a path, got %v", err)
	}
	cfg.Source.File.Path = "/nonexistent/recording.jsonl"
	if _, err := OpenSource(cfg); !errors.Is(err, model.ErrSourceUnavailable) {
		t.Errorf("Expected ErrSourceUnavailable for a missing file, got %v", err)
	}
}
