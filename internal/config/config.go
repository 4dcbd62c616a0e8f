package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultClasses is the class vocabulary of the bundled detection model.
var DefaultClasses = []string{"pedestrian", "bicycle", "truck", "van", "car", "bus", "motor", "tricycle"}

// DefaultRegion is the counting line used when the config does not define one.
var DefaultRegion = [][2]int{{525, 0}, {1253, 1080}}

const defaultWindowSeconds = 60

// CounterConfig describes what is being counted and how often it is reported.
type CounterConfig struct {
	Model         string   `yaml:"model"`
	Video         string   `yaml:"video"`
	Show          bool     `yaml:"show"`
	Classes       []string `yaml:"classes"`
	Region        [][2]int `yaml:"region"`
	WindowSeconds int      `yaml:"window_seconds"`
}

// FileSourceConfig holds the settings for replaying a recorded snapshot stream.
type FileSourceConfig struct {
	Path string `yaml:"path"`
}

// NATSSourceConfig holds the settings for consuming snapshots from NATS.
type NATSSourceConfig struct {
	URL          string `yaml:"url"`
	Subject      string `yaml:"subject"`
	FetchTimeout string `yaml:"fetch_timeout"`
}

// SourceConfig selects and configures the event source adapter.
type SourceConfig struct {
	Type string           `yaml:"type"`
	File FileSourceConfig `yaml:"file"`
	NATS NATSSourceConfig `yaml:"nats"`
}

// CSVConfig holds the settings for the CSV report writer.
type CSVConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

// ClickHouseConfig holds the connection settings for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSWriterConfig holds the settings for publishing buckets to NATS.
type NATSWriterConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// WriterDef defines a single report writer.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	CSV        CSVConfig        `yaml:"csv"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSWriterConfig `yaml:"nats"`
}

// AlerterRule defines a threshold on one class column of a flushed bucket.
type AlerterRule struct {
	Name      string  `yaml:"name"`
	Class     string  `yaml:"class"`
	Metric    string  `yaml:"metric"` // "total" or "interval"
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// AlerterConfig holds the configuration for bucket alerting.
type AlerterConfig struct {
	Enabled bool          `yaml:"enabled"`
	Rules   []AlerterRule `yaml:"rules"`
}

// SMTPConfig holds the settings for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// APIConfig holds the listen addresses of the query API.
type APIConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// MetricsConfig holds the Prometheus endpoint of the engine. An empty
// listen address disables it.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Counter CounterConfig `yaml:"counter"`
	Source  SourceConfig  `yaml:"source"`
	Writers []WriterDef   `yaml:"writers"`
	Alerter AlerterConfig `yaml:"alerter"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	API     APIConfig     `yaml:"api"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Counter.Classes) == 0 {
		c.Counter.Classes = append([]string(nil), DefaultClasses...)
	}
	if len(c.Counter.Region) == 0 {
		c.Counter.Region = append([][2]int(nil), DefaultRegion...)
	}
	if c.Counter.WindowSeconds == 0 {
		c.Counter.WindowSeconds = defaultWindowSeconds
	}
	if c.Source.Type == "" {
		c.Source.Type = "file"
	}
	if len(c.Writers) == 0 {
		c.Writers = []WriterDef{{Type: "csv", Enabled: true}}
	}
	for i := range c.Writers {
		if c.Writers[i].Type != "csv" {
			continue
		}
		if c.Writers[i].CSV.Dir == "" {
			c.Writers[i].CSV.Dir = "."
		}
		if c.Writers[i].CSV.Prefix == "" {
			c.Writers[i].CSV.Prefix = "vehicle_counts"
		}
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.GRPCListenAddr == "" {
		c.API.GRPCListenAddr = ":50051"
	}
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Counter.Classes))
	for _, class := range c.Counter.Classes {
		if class == "" {
			return fmt.Errorf("counter.classes contains an empty class name")
		}
		if _, ok := seen[class]; ok {
			return fmt.Errorf("counter.classes contains duplicate class '%s'", class)
		}
		seen[class] = struct{}{}
	}
	if c.Counter.WindowSeconds <= 0 {
		return fmt.Errorf("counter.window_seconds must be positive, got %d", c.Counter.WindowSeconds)
	}
	switch c.Source.Type {
	case "file", "nats":
	default:
		return fmt.Errorf("unknown source type: '%s'", c.Source.Type)
	}
	if c.Source.NATS.FetchTimeout != "" {
		if _, err := time.ParseDuration(c.Source.NATS.FetchTimeout); err != nil {
			return fmt.Errorf("invalid source.nats.fetch_timeout: %w", err)
		}
	}
	return nil
}
