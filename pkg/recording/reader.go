package recording

import (
	"Go2CrossCount/internal/engine/protocol"
	"Go2CrossCount/internal/model"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
)

const maxLineSize = 1 << 20

// Reader replays a recorded snapshot stream from a JSON-lines file.
// The first line is the stream header, every following line one frame.
// It implements the model.Source interface.
type Reader struct {
	file    *os.File
	scanner *bufio.Scanner
	info    model.StreamInfo
	line    int
	done    bool
}

// NewReader opens a recording and reads its header.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	r := &Reader{file: file, scanner: scanner}

	msg, err := r.nextMessage()
	if err != nil {
		file.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: recording '%s' is empty", model.ErrSourceUnavailable, filePath)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
	}
	if msg.Kind != protocol.KindHeader {
		file.Close()
		return nil, fmt.Errorf("%w: recording '%s' does not start with a stream header", model.ErrSourceUnavailable, filePath)
	}
	r.info = msg.Info
	return r, nil
}

// Info returns the stream header of the recording.
func (r *Reader) Info() model.StreamInfo {
	return r.info
}

// Next returns the next frame snapshot, or io.EOF at the end of the recording
// or at an explicit end-of-stream line.
func (r *Reader) Next(ctx context.Context) (*model.FrameSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.done {
		return nil, io.EOF
	}

	msg, err := r.nextMessage()
	if err != nil {
		if err == io.EOF {
			r.done = true
		}
		return nil, err
	}
	switch msg.Kind {
	case protocol.KindFrame:
		return msg.Frame, nil
	case protocol.KindEOS:
		r.done = true
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("line %d: unexpected %s message inside the frame stream", r.line, msg.Kind)
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// nextMessage decodes the next non-empty line.
func (r *Reader) nextMessage() (*protocol.Message, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := protocol.UnmarshalJSON(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		return msg, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	return nil, io.EOF
}
