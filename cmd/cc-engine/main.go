package main

import (
	"Go2CrossCount/internal/alerter"
	"Go2CrossCount/internal/config"
	_ "Go2CrossCount/internal/engine/impl/clickhouse" // Registers the clickhouse writer
	_ "Go2CrossCount/internal/engine/impl/csvsink"    // Registers the csv writer
	_ "Go2CrossCount/internal/engine/impl/natsink"    // Registers the nats writer
	"Go2CrossCount/internal/engine/manager"
	"Go2CrossCount/internal/factory"
	"Go2CrossCount/internal/metrics"
	"Go2CrossCount/internal/model"
	"Go2CrossCount/internal/notification"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// reportPather is implemented by writers that produce a local report file.
type reportPather interface {
	Path() string
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	video := flag.String("video", "", "Path to the video file (overrides counter.video).")
	modelPath := flag.String("model", "", "Path to the detection model file (overrides counter.model).")
	show := flag.Bool("show", false, "Show video output while processing.")
	flag.Parse()

	log.Println("Starting cc-engine...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *video != "" {
		cfg.Counter.Video = *video
	}
	if *modelPath != "" {
		cfg.Counter.Model = *modelPath
	}
	if *show {
		cfg.Counter.Show = true
	}
	log.Printf("Configuration loaded: model=%s video=%s show=%v region=%v classes=%v",
		cfg.Counter.Model, cfg.Counter.Video, cfg.Counter.Show, cfg.Counter.Region, cfg.Counter.Classes)

	// 2. Open the event source before any output exists
	source, err := factory.OpenSource(cfg)
	if err != nil {
		log.Fatalf("Error reading video source: %v", err)
	}
	defer source.Close()

	// 3. Create writers and the optional alerter
	writers, err := factory.CreateWriters(cfg)
	if err != nil {
		log.Fatalf("Failed to create writers: %v", err)
	}
	classes := model.ClassSet(cfg.Counter.Classes)
	alertr := newAlerter(cfg, classes)

	// 4. Run until the source is exhausted or a shutdown signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := manager.NewManager(classes, cfg.Counter.WindowSeconds, writers, alertr)
	if cfg.Metrics.ListenAddr != "" {
		m := metrics.New()
		mgr.SetMetrics(m)
		go func() {
			log.Printf("Metrics server starting on %s", cfg.Metrics.ListenAddr)
			if err := m.StartServer(cfg.Metrics.ListenAddr); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}
	if _, err := mgr.Run(ctx, source); err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	for _, w := range writers {
		if p, ok := w.(reportPather); ok {
			log.Printf("Results have been saved to %s", p.Path())
		}
	}
}

func newAlerter(cfg *config.Config, classes model.ClassSet) *alerter.Alerter {
	if !cfg.Alerter.Enabled {
		return nil
	}
	if cfg.SMTP.Host == "" {
		log.Println("Alerter is enabled in config, but no notifiers are configured. Alerter will not run.")
		return nil
	}
	notifier, err := notification.NewEmailNotifier(cfg.SMTP)
	if err != nil {
		log.Fatalf("Failed to create email notifier: %v", err)
	}
	alertr, err := alerter.NewAlerter(&cfg.Alerter, classes, notifier)
	if err != nil {
		log.Fatalf("Failed to create alerter: %v", err)
	}
	log.Println("Alerter enabled and initialized.")
	return alertr
}
