package clickhouse

import (
	"Go2CrossCount/internal/config"
	"Go2CrossCount/internal/factory"
	"Go2CrossCount/internal/model"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef) (model.Writer, error) {
		return NewWriter(def.ClickHouse)
	})
}

const createTableStatement = `
CREATE TABLE IF NOT EXISTS bucket_counts (
    Timestamp   DateTime,
    RunID       String,
    RunStarted  DateTime,
    Bucket      UInt32,
    Partial     Bool,
    Frames      UInt32,
    Class       String,
    Total       UInt64,
    Interval    UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(RunStarted)
ORDER BY (RunID, Bucket, Class);
`

// Writer inserts one row per class of every flushed bucket into ClickHouse.
// It implements the model.Writer interface.
type Writer struct {
	conn driver.Conn
	run  model.RunInfo
	open bool
}

// NewWriter creates a new ClickHouse writer and ensures the table exists.
func NewWriter(cfg config.ClickHouseConfig) (*Writer, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create bucket_counts table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured bucket_counts table exists.")

	return &Writer{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Name returns the writer type.
func (w *Writer) Name() string {
	return "clickhouse"
}

// Open binds the writer to a run. The table schema is the header, so nothing
// is written here.
func (w *Writer) Open(run model.RunInfo) error {
	if w.open {
		return fmt.Errorf("clickhouse writer already opened for run '%s'", w.run.ID)
	}
	w.run = run
	w.open = true
	return nil
}

// Append sends the bucket as a single batch and returns once ClickHouse has accepted it.
func (w *Writer) Append(bucket *model.Bucket) error {
	if !w.open {
		return fmt.Errorf("clickhouse writer is not open")
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO bucket_counts")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now()
	for _, ct := range bucket.Classes {
		err = batch.Append(
			now,
			w.run.ID,
			w.run.StartedAt,
			uint32(bucket.Index),
			bucket.Partial,
			uint32(bucket.Frames),
			ct.Class,
			ct.Total,
			ct.Interval,
		)
		if err != nil {
			return fmt.Errorf("failed to append class '%s' to batch: %w", ct.Class, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote bucket %d (%d classes) to ClickHouse for run '%s'", bucket.Index, len(bucket.Classes), w.run.ID)
	return nil
}

// Close closes the ClickHouse connection.
func (w *Writer) Close() error {
	return w.conn.Close()
}
