package main

import (
	"Go2CrossCount/internal/config"
	"Go2CrossCount/internal/engine/protocol"
	"Go2CrossCount/internal/probe"
	"Go2CrossCount/pkg/recording"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
)

func main() {
	// --- Command-Line Flag Parsing ---
	mode := flag.String("mode", "sub", "Operating mode: 'pub' to replay a recording to NATS, 'sub' to print published buckets.")
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	file := flag.String("file", "", "Recording to replay (required for pub mode).")
	realtime := flag.Bool("realtime", false, "Pace the replay at the recording's frame rate.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// --- Mode Dispatch ---
	switch *mode {
	case "pub":
		runProbe(cfg, *file, *realtime)
	case "sub":
		runSubscriber(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runProbe replays a recording onto the snapshot subject consumed by cc-engine.
func runProbe(cfg *config.Config, path string, realtime bool) {
	if path == "" {
		log.Println("Error: -file flag is required for pub mode.")
		flag.Usage()
		os.Exit(1)
	}
	log.Printf("Starting cc-probe in PUB mode with recording: %s", path)

	reader, err := recording.NewReader(path)
	if err != nil {
		log.Fatalf("Failed to open recording: %v", err)
	}
	defer reader.Close()

	pub, err := probe.NewPublisher(cfg.Source.NATS.URL, cfg.Source.NATS.Subject)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info := reader.Info()
	if err := pub.Publish(protocol.HeaderMessage(info)); err != nil {
		log.Fatalf("Failed to publish header: %v", err)
	}

	var pace *time.Ticker
	if realtime && info.FrameRate > 0 {
		pace = time.NewTicker(time.Duration(float64(time.Second) / info.FrameRate))
		defer pace.Stop()
	}

	framesPublished := 0
	for {
		frame, err := reader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Stopping replay: %v", err)
			break
		}
		if pace != nil {
			select {
			case <-pace.C:
			case <-ctx.Done():
			}
		}
		if err := pub.Publish(protocol.FrameMessage(frame)); err != nil {
			log.Printf("Failed to publish frame: %v", err)
		}
		framesPublished++
		if framesPublished%1000 == 0 {
			log.Printf("%d frames published...", framesPublished)
		}
	}

	if err := pub.Publish(protocol.EOSMessage()); err != nil {
		log.Fatalf("Failed to publish end of stream: %v", err)
	}
	if err := pub.Flush(); err != nil {
		log.Fatalf("Failed to flush NATS connection: %v", err)
	}
	log.Printf("Replay complete, %d frames published.", framesPublished)
}

// runSubscriber prints every bucket published by the nats writer.
func runSubscriber(cfg *config.Config) {
	log.Println("Starting cc-probe in SUB mode...")

	url, subject := nats.DefaultURL, ""
	for _, def := range cfg.Writers {
		if def.Type == "nats" && def.Enabled {
			if def.NATS.URL != "" {
				url = def.NATS.URL
			}
			subject = def.NATS.Subject
			break
		}
	}
	if subject == "" {
		log.Fatalf("No enabled nats writer found in config. Nothing to subscribe to.")
	}

	listener, err := probe.NewBucketListener(url)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer listener.Close()

	handler := func(msg *protocol.BucketMessage) {
		log.Printf("Run %s, bucket %d (partial=%v, frames=%d):", msg.RunID, msg.Bucket.Index, msg.Bucket.Partial, msg.Bucket.Frames)
		for _, ct := range msg.Bucket.Classes {
			log.Printf("  %s: total=%d interval=%d", ct.Class, ct.Total, ct.Interval)
		}
	}

	if err := listener.Start(subject, handler); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	// Set up a channel to handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}
