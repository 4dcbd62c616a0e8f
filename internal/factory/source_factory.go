package factory

import (
	"Go2CrossCount/internal/config"
	"Go2CrossCount/internal/model"
	"Go2CrossCount/internal/probe"
	"Go2CrossCount/pkg/recording"
	"fmt"
	"log"
	"path/filepath"
	"strings"
)

// OpenSource opens the event source selected in the config. Failures wrap
// model.ErrSourceUnavailable.
func OpenSource(cfg *config.Config) (model.Source, error) {
	switch cfg.Source.Type {
	case "file":
		path := RecordingPath(cfg)
		if path == "" {
			return nil, fmt.Errorf("%w: neither source.file.path nor counter.video is set", model.ErrSourceUnavailable)
		}
		log.Printf("Replaying detections from %s", path)
		return recording.NewReader(path)
	case "nats":
		return probe.NewSubscriber(cfg.Source.NATS)
	default:
		return nil, fmt.Errorf("%w: unknown source type '%s'", model.ErrSourceUnavailable, cfg.Source.Type)
	}
}

// RecordingPath returns the configured recording, or the detector's output
// next to the video (clip.mp4 -> clip.jsonl) when none is configured.
func RecordingPath(cfg *config.Config) string {
	if cfg.Source.File.Path != "" {
		return cfg.Source.File.Path
	}
	if cfg.Counter.Video == "" {
		return ""
	}
	return strings.TrimSuffix(cfg.Counter.Video, filepath.Ext(cfg.Counter.Video)) + ".jsonl"
}
