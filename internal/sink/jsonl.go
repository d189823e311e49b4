package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// JSONLines writes one JSON object per line.
type JSONLines struct {
	buf    *bufio.Writer
	enc    *json.Encoder
	closer []io.Closer
}

// NewJSONLines writes records to w. Closing the sink does not close w.
func NewJSONLines(w io.Writer) *JSONLines {
	buf := bufio.NewWriter(w)
	return &JSONLines{buf: buf, enc: json.NewEncoder(buf)}
}

// OpenFile appends records to path, creating it if needed. A ".zst" suffix
// selects zstd compression; each run appends a new zstd frame.
func OpenFile(path string) (*JSONLines, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}

	if !strings.HasSuffix(path, ".zst") {
		s := NewJSONLines(f)
		s.closer = []io.Closer{f}
		return s, nil
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	s := NewJSONLines(zw)
	s.closer = []io.Closer{zw, f}
	return s, nil
}

func (s *JSONLines) Write(_ context.Context, rec Record) error {
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record %s: %w", rec.Seq, err)
	}
	return nil
}

func (s *JSONLines) Flush(_ context.Context) error {
	if err := s.buf.Flush(); err != nil {
		return err
	}
	for _, c := range s.closer {
		if f, ok := c.(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *JSONLines) Close() error {
	err := s.buf.Flush()
	for _, c := range s.closer {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
