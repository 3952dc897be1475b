package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// MaxLineSize is the largest journal line accepted on read or write (256 KiB).
const MaxLineSize = 256 * 1024

// Encoder writes values as newline-delimited JSON.
type Encoder struct {
	writer *bufio.Writer
	logger *zap.Logger
}

// NewEncoder creates an NDJSON encoder.
func NewEncoder(w io.Writer, logger *zap.Logger) *Encoder {
	return &Encoder{
		writer: bufio.NewWriter(w),
		logger: logger,
	}
}

// Encode writes v as a single JSON line and flushes it.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if len(data) > MaxLineSize {
		e.logger.Error("journal entry exceeds size limit",
			zap.Int("size", len(data)),
			zap.Int("limit", MaxLineSize))
		return fmt.Errorf("entry size %d exceeds limit %d", len(data), MaxLineSize)
	}

	data = append(data, '\n')
	if _, err := e.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := e.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush entry: %w", err)
	}
	return nil
}

// Decoder reads newline-delimited JSON values.
type Decoder struct {
	scanner *bufio.Scanner
	logger  *zap.Logger
	lineNum int
}

// NewDecoder creates an NDJSON decoder.
func NewDecoder(r io.Reader, logger *zap.Logger) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	return &Decoder{
		scanner: scanner,
		logger:  logger,
	}
}

// Line returns the number of the line most recently read.
func (d *Decoder) Line() int { return d.lineNum }

// Decode reads the next non-empty line into v. It returns io.EOF at the end
// of input.
func (d *Decoder) Decode(v any) error {
	for {
		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				return fmt.Errorf("scanner error at line %d: %w", d.lineNum+1, err)
			}
			return io.EOF
		}
		d.lineNum++
		if len(d.scanner.Bytes()) > 0 {
			break
		}
	}

	data := d.scanner.Bytes()
	if err := json.Unmarshal(data, v); err != nil {
		d.logger.Debug("failed to unmarshal journal line",
			zap.Int("line", d.lineNum),
			zap.Error(err),
			zap.String("data", string(data[:min(100, len(data))])))
		return fmt.Errorf("failed to unmarshal line %d: %w", d.lineNum, err)
	}
	return nil
}
