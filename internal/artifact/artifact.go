// Package artifact reads and writes the binary result blob of a completed
// run.
//
// Layout, little-endian:
//
//	header  uint64 globalWidth, uint64 globalHeight, float64 totalTime
//	body    per unit in rank order, nx*ny float64 real-cell values at
//	        offset HeaderSize + rank*nx*ny*8
//
// Only the coordinating unit writes the header. Every unit writes only its
// own body region, so the writers never overlap and the file can be shared
// by concurrent processes.
package artifact

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/veghal/heatgrid/internal/field"
)

const HeaderSize = 8 + 8 + 8

type Writer struct {
	f *os.File
}

// Create opens (or creates) the artifact for region writes and sizes it to
// hold bodyCells float64 values after the header. Every unit calls this on
// the same path; the truncation is idempotent, so a reused path holding an
// older, larger artifact cannot leak its tail into the new run.
func Create(path string, bodyCells int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("artifact: %w", err)
	}
	if err := f.Truncate(int64(HeaderSize) + int64(bodyCells)*8); err != nil {
		f.Close()
		return nil, fmt.Errorf("artifact: size %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

func (w *Writer) WriteHeader(globalW, globalH uint64, totalTime float64) error {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:], globalW)
	binary.LittleEndian.PutUint64(buf[8:], globalH)
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(totalTime))
	if _, err := w.f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("artifact: header: %w", err)
	}
	return nil
}

// WriteSlab writes one unit's final real-cell values at its rank offset.
func (w *Writer) WriteSlab(rank int, f *field.Field) error {
	vals := f.Real()
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	off := int64(HeaderSize) + int64(rank)*int64(len(vals))*8
	if _, err := w.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("artifact: slab %d: %w", rank, err)
	}
	return nil
}

// Finalize confirms all writes have reached storage and closes the file.
// The artifact is not complete until Finalize returns.
func (w *Writer) Finalize() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("artifact: sync: %w", err)
	}
	return w.f.Close()
}

// Header is the decoded artifact header.
type Header struct {
	GlobalWidth  uint64
	GlobalHeight uint64
	TotalTime    float64
}

// Read loads a whole artifact: header plus the body in rank order.
func Read(path string) (*Header, []float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("artifact: %w", err)
	}
	if len(data) < HeaderSize || (len(data)-HeaderSize)%8 != 0 {
		return nil, nil, fmt.Errorf("artifact: malformed file of %d bytes", len(data))
	}
	h := &Header{
		GlobalWidth:  binary.LittleEndian.Uint64(data[0:]),
		GlobalHeight: binary.LittleEndian.Uint64(data[8:]),
		TotalTime:    math.Float64frombits(binary.LittleEndian.Uint64(data[16:])),
	}
	body := make([]float64, (len(data)-HeaderSize)/8)
	for i := range body {
		body[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[HeaderSize+i*8:]))
	}
	return h, body, nil
}
