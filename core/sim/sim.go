// Package sim provides a synthetic radio that produces a tone with noise and DC offset.
// Written blocks are echoed back into the received stream, like a target in front of an antenna.
package sim

import (
	"log"
	"math"
	"math/cmplx"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/radio"
)

// Config of the simulated radio.
type Config struct {
	SampleRate    float64
	ToneFrequency core.Frequency
	Amplitude     float64
	NoiseLevel    float64
	DCOffset      complex128
	Paced         bool // produce samples at the sample rate instead of as fast as possible
	EchoDelay     time.Duration
	EchoGain      float64
	Seed          int64

	ErrorEvery int // every n-th read reports a transient overflow, 0 disables
	FailAfter  int // reads before the radio reports a disconnect, 0 disables
}

// New returns a new simulated radio.
func New(config Config) *Source {
	return &Source{
		config:    config,
		random:    rand.New(rand.NewSource(config.Seed)),
		echoDelay: int64(config.EchoDelay.Seconds() * config.SampleRate),
		lastRead:  time.Now(),
		done:      make(chan struct{}),
	}
}

// Source is the simulated radio.
type Source struct {
	config Config
	random *rand.Rand

	lock        sync.Mutex
	phase       float64
	sampleIndex int64
	echoDelay   int64
	echoes      []echo
	lastRead    time.Time
	reads       int
	writeCount  int

	closeOnce sync.Once
	done      chan struct{}
}

type echo struct {
	start   int64
	samples []complex128
}

// ReadBlock produces the next samples.
func (s *Source) ReadBlock(buf core.Block, timeout time.Duration) (int, error) {
	select {
	case <-s.done:
		return 0, radio.NewFatalError("read", radio.StatusDisconnected, errors.New("simulated radio closed"))
	default:
	}

	n := len(buf)
	if s.config.Paced {
		n = s.pace(n, timeout)
		if n == 0 {
			return 0, nil
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.reads++
	if s.config.FailAfter > 0 && s.reads > s.config.FailAfter {
		return 0, radio.NewFatalError("read", radio.StatusDisconnected, errors.New("simulated disconnect"))
	}
	if s.config.ErrorEvery > 0 && s.reads%s.config.ErrorEvery == 0 {
		return 0, radio.NewError("read", radio.StatusOverflow, nil)
	}

	ω := 2 * math.Pi * float64(s.config.ToneFrequency) / s.config.SampleRate
	for i := 0; i < n; i++ {
		value := complex(s.config.Amplitude, 0) * cmplx.Exp(complex(0, s.phase))
		value += s.config.DCOffset
		if s.config.NoiseLevel > 0 {
			value += complex(s.random.NormFloat64()*s.config.NoiseLevel, s.random.NormFloat64()*s.config.NoiseLevel)
		}
		value += s.echoAt(s.sampleIndex + int64(i))
		buf[i] = complex64(value)

		s.phase = math.Mod(s.phase+ω, 2*math.Pi)
	}
	s.sampleIndex += int64(n)
	s.dropPastEchoes()

	return n, nil
}

// pace waits until the requested samples would have arrived, but not longer than the timeout.
func (s *Source) pace(n int, timeout time.Duration) int {
	blockDuration := time.Duration(float64(n) / s.config.SampleRate * float64(time.Second))
	due := s.lastRead.Add(blockDuration)
	wait := time.Until(due)
	if wait > timeout {
		n = int(timeout.Seconds() * s.config.SampleRate)
		wait = timeout
		due = s.lastRead.Add(time.Duration(float64(n) / s.config.SampleRate * float64(time.Second)))
	}
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-s.done:
			return 0
		}
	}
	if time.Since(due) > time.Second {
		// the consumer fell far behind, do not try to catch up
		due = time.Now()
	}
	s.lastRead = due
	return n
}

func (s *Source) echoAt(index int64) complex128 {
	var result complex128
	for _, e := range s.echoes {
		offset := index - e.start
		if offset >= 0 && offset < int64(len(e.samples)) {
			result += e.samples[offset]
		}
	}
	return result
}

func (s *Source) dropPastEchoes() {
	kept := s.echoes[:0]
	for _, e := range s.echoes {
		if e.start+int64(len(e.samples)) > s.sampleIndex {
			kept = append(kept, e)
		}
	}
	s.echoes = kept
}

// WriteBlock transmits the given samples. They show up in the received stream after the echo delay.
func (s *Source) WriteBlock(samples core.Block, timeout time.Duration) error {
	select {
	case <-s.done:
		return radio.NewFatalError("write", radio.StatusDisconnected, errors.New("simulated radio closed"))
	default:
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.writeCount++
	if s.config.EchoGain == 0 {
		return nil
	}

	e := echo{
		start:   s.sampleIndex + s.echoDelay,
		samples: make([]complex128, len(samples)),
	}
	for i, v := range samples {
		e.samples[i] = complex128(v) * complex(s.config.EchoGain, 0)
	}
	s.echoes = append(s.echoes, e)
	return nil
}

// Writes returns the number of written blocks.
func (s *Source) Writes() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.writeCount
}

// SetCenterFrequency accepts any frequency, the simulated signal does not depend on it.
func (s *Source) SetCenterFrequency(f core.Frequency) error {
	log.Printf("[DEBUG] simulated radio tuned to %v", f)
	return nil
}

// Close the simulated radio.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}
