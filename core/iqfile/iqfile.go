// Package iqfile reads and writes raw IQ capture files: interleaved little-endian 16-bit I/Q pairs
// in fixed-point format with a scale of 2048 (SC16 Q11).
package iqfile

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/radio"
)

// Scale of the fixed-point samples.
const Scale = 2048.0

const bytesPerSample = 4

// Open a capture file for reading. With loop the file is replayed endlessly, otherwise the end of
// the file is reported as a fatal error. A positive sample rate paces the reads like a live radio.
func Open(filename string, loop bool, sampleRate float64) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open capture file %s", filename)
	}
	return NewReader(file, loop, sampleRate), nil
}

// NewReader reads samples from the given stream. Looping requires the stream to be seekable.
func NewReader(in io.ReadSeeker, loop bool, sampleRate float64) *Reader {
	return &Reader{
		in:         in,
		buffered:   bufio.NewReaderSize(in, 1<<16),
		loop:       loop,
		sampleRate: sampleRate,
		lastRead:   time.Now(),
	}
}

// Reader of capture files.
type Reader struct {
	in         io.ReadSeeker
	buffered   *bufio.Reader
	raw        []byte
	loop       bool
	sampleRate float64
	lastRead   time.Time
}

// ReadBlock reads the next samples from the file.
func (r *Reader) ReadBlock(buf core.Block, timeout time.Duration) (int, error) {
	if r.sampleRate > 0 {
		r.pace(len(buf), timeout)
	}

	if cap(r.raw) < len(buf)*bytesPerSample {
		r.raw = make([]byte, len(buf)*bytesPerSample)
	}
	raw := r.raw[:len(buf)*bytesPerSample]

	read, err := io.ReadFull(r.buffered, raw)
	if err == io.ErrUnexpectedEOF || (err == io.EOF && read == 0) {
		if r.loop && read == 0 {
			return 0, r.rewind()
		}
		if read == 0 {
			return 0, radio.NewFatalError("read", radio.StatusDisconnected, io.EOF)
		}
	} else if err != nil {
		return 0, radio.NewFatalError("read", radio.StatusStreamError, err)
	}

	n := read / bytesPerSample
	for i := 0; i < n; i++ {
		buf[i] = complex(
			float32(int16(binary.LittleEndian.Uint16(raw[i*bytesPerSample:])))/Scale,
			float32(int16(binary.LittleEndian.Uint16(raw[i*bytesPerSample+2:])))/Scale,
		)
	}
	return n, nil
}

func (r *Reader) rewind() error {
	_, err := r.in.Seek(0, io.SeekStart)
	if err != nil {
		return radio.NewFatalError("rewind", radio.StatusStreamError, err)
	}
	r.buffered.Reset(r.in)
	return nil
}

func (r *Reader) pace(n int, timeout time.Duration) {
	due := r.lastRead.Add(time.Duration(float64(n) / r.sampleRate * float64(time.Second)))
	wait := time.Until(due)
	if wait > timeout {
		wait = timeout
	}
	if wait > 0 {
		time.Sleep(wait)
	}
	r.lastRead = time.Now()
}

// Close the file.
func (r *Reader) Close() error {
	if closer, ok := r.in.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Create a new capture file.
func Create(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create capture file %s", filename)
	}
	return NewWriter(file), nil
}

// NewWriter writes samples to the given stream.
func NewWriter(out io.Writer) *Writer {
	return &Writer{
		out:      out,
		buffered: bufio.NewWriterSize(out, 1<<16),
	}
}

// Writer of capture files.
type Writer struct {
	out      io.Writer
	buffered *bufio.Writer
	count    int
	raw      [bytesPerSample]byte
}

// Write the given samples. Values outside of the fixed-point range are clipped.
func (w *Writer) Write(samples core.Block) error {
	for _, s := range samples {
		binary.LittleEndian.PutUint16(w.raw[0:], uint16(toFixed(real(s))))
		binary.LittleEndian.PutUint16(w.raw[2:], uint16(toFixed(imag(s))))
		_, err := w.buffered.Write(w.raw[:])
		if err != nil {
			return errors.Wrap(err, "cannot write samples")
		}
	}
	w.count += len(samples)
	return nil
}

// Count of the written samples.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes the buffered samples and closes the underlying stream.
func (w *Writer) Close() error {
	err := w.buffered.Flush()
	if err != nil {
		return errors.Wrap(err, "cannot flush samples")
	}
	if closer, ok := w.out.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func toFixed(v float32) int16 {
	scaled := math.Round(float64(v) * Scale)
	if scaled > math.MaxInt16 {
		return math.MaxInt16
	}
	if scaled < math.MinInt16 {
		return math.MinInt16
	}
	return int16(scaled)
}
