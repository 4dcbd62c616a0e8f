package csvsink

import (
	"Go2CrossCount/internal/config"
	"Go2CrossCount/internal/factory"
	"Go2CrossCount/internal/model"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

func init() {
	factory.RegisterWriter("csv", func(def config.WriterDef) (model.Writer, error) {
		return NewWriter(def.CSV.Dir, def.CSV.Prefix), nil
	})
}

const maxNameAttempts = 100

// Writer appends one CSV row per bucket to a file named after the run.
// It implements the model.Writer interface.
type Writer struct {
	dir     string
	prefix  string
	path    string
	file    *os.File
	csv     *csv.Writer
	classes model.ClassSet
}

// NewWriter creates a new CSV writer. No file is created until Open.
func NewWriter(dir, prefix string) *Writer {
	return &Writer{dir: dir, prefix: prefix}
}

// Name returns the writer type.
func (w *Writer) Name() string {
	return "csv"
}

// Path returns the file the writer appends to, empty before Open.
func (w *Writer) Path() string {
	return w.path
}

// Open creates <dir>/<prefix>_<run id>.csv and writes the header row.
// An existing file is never reused: a numeric suffix is added instead.
func (w *Writer) Open(run model.RunInfo) error {
	if w.file != nil {
		return fmt.Errorf("csv writer already opened at '%s'", w.path)
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	file, path, err := w.create(run.ID)
	if err != nil {
		return err
	}

	w.file = file
	w.path = path
	w.csv = csv.NewWriter(file)
	w.classes = run.Classes

	header := make([]string, 0, 1+2*len(run.Classes))
	header = append(header, "Bucket")
	for _, class := range run.Classes {
		header = append(header, class+"_total", class+"_interval")
	}
	if err := w.writeRecord(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	log.Printf("Report file created at %s", path)
	return nil
}

func (w *Writer) create(runID string) (*os.File, string, error) {
	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		name := fmt.Sprintf("%s_%s.csv", w.prefix, runID)
		if attempt > 1 {
			name = fmt.Sprintf("%s_%s_%d.csv", w.prefix, runID, attempt)
		}
		path := filepath.Join(w.dir, name)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to create report file '%s': %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("no free report file name for run '%s' in '%s'", runID, w.dir)
}

// Append writes the bucket as one row and syncs the file before returning.
func (w *Writer) Append(bucket *model.Bucket) error {
	if w.file == nil {
		return fmt.Errorf("csv writer is not open")
	}

	byClass := make(map[string]model.ClassTotal, len(bucket.Classes))
	for _, ct := range bucket.Classes {
		byClass[ct.Class] = ct
	}

	row := make([]string, 0, 1+2*len(w.classes))
	row = append(row, strconv.Itoa(bucket.Index))
	for _, class := range w.classes {
		ct := byClass[class]
		row = append(row, strconv.FormatUint(ct.Total, 10), strconv.FormatUint(ct.Interval, 10))
	}

	if err := w.writeRecord(row); err != nil {
		return fmt.Errorf("failed to append bucket %d to '%s': %w", bucket.Index, w.path, err)
	}
	return nil
}

func (w *Writer) writeRecord(record []string) error {
	if err := w.csv.Write(record); err != nil {
		return err
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close closes the report file.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
