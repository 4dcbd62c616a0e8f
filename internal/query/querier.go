package query

import (
	"Go2CrossCount/internal/config"
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// BucketRow is one class column of one stored bucket.
type BucketRow struct {
	Bucket   uint32
	Partial  bool
	Frames   uint32
	Class    string
	Total    uint64
	Interval uint64
}

// ClassSummary is the latest cumulative total of a class within a run.
type ClassSummary struct {
	Class   string
	Total   uint64
	Buckets uint64
}

// RunSummary describes one run stored in ClickHouse.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Buckets   uint32
}

// Querier defines the interface for querying stored bucket counts.
type Querier interface {
	Runs(ctx context.Context) ([]RunSummary, error)
	Buckets(ctx context.Context, runID string) ([]BucketRow, error)
	Totals(ctx context.Context, runID string) ([]ClassSummary, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
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

// Runs lists every stored run, newest first.
func (q *clickhouseQuerier) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := q.conn.Query(ctx, `
		SELECT RunID, min(RunStarted) AS StartedAt, max(Bucket) AS Buckets
		FROM bucket_counts
		GROUP BY RunID
		ORDER BY StartedAt DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.Buckets); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Buckets returns every class column of every bucket of a run, in bucket order.
func (q *clickhouseQuerier) Buckets(ctx context.Context, runID string) ([]BucketRow, error) {
	rows, err := q.conn.Query(ctx, `
		SELECT Bucket, Partial, Frames, Class, Total, Interval
		FROM bucket_counts
		WHERE RunID = ?
		ORDER BY Bucket, Class
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var result []BucketRow
	for rows.Next() {
		var r BucketRow
		if err := rows.Scan(&r.Bucket, &r.Partial, &r.Frames, &r.Class, &r.Total, &r.Interval); err != nil {
			return nil, fmt.Errorf("failed to scan bucket row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Totals returns the cumulative total of each class as of the run's last bucket.
func (q *clickhouseQuerier) Totals(ctx context.Context, runID string) ([]ClassSummary, error) {
	rows, err := q.conn.Query(ctx, `
		SELECT Class, argMax(Total, Bucket) AS Total, count() AS Buckets
		FROM bucket_counts
		WHERE RunID = ?
		GROUP BY Class
		ORDER BY Class
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var result []ClassSummary
	for rows.Next() {
		var s ClassSummary
		if err := rows.Scan(&s.Class, &s.Total, &s.Buckets); err != nil {
			return nil, fmt.Errorf("failed to scan class summary: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
