package dsp

import (
	"log"
	"math"
	"math/cmplx"
	"time"

	"github.com/mjibson/go-dsp/dsputils"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/ftl/rfheatmap/core"
)

// MinPulseLength is the shortest pulse reference that still has a non-zero Hann window.
const MinPulseLength = 3

// dbFloor keeps the logarithm away from zero.
const dbFloor = 1e-12

// NewPipeline returns a new pipeline for the given configuration. Invalid pipeline options are
// reported as *core.ConfigError.
func NewPipeline(c core.Configuration) (*Pipeline, error) {
	if c.HardwareSampleRate <= 0 {
		return nil, &core.ConfigError{Option: "hardware_sample_rate", Value: c.HardwareSampleRate, Reason: "must be positive"}
	}
	if c.DecimationFactor < 0 {
		return nil, &core.ConfigError{Option: "decimation_factor", Value: c.DecimationFactor, Reason: "must not be negative"}
	}
	if c.TransformSize < 2 {
		return nil, &core.ConfigError{Option: "transform_size", Value: c.TransformSize, Reason: "must be at least 2"}
	}
	if !c.DCRemoval.Valid() {
		return nil, &core.ConfigError{Option: "dc_removal_mode", Value: c.DCRemoval, Reason: "unknown mode"}
	}
	if c.DCRemoval == core.DCRemovalIIRHighpass && (c.IIRAlpha <= 0 || c.IIRAlpha >= 1) {
		return nil, &core.ConfigError{Option: "iir_alpha", Value: c.IIRAlpha, Reason: "must be in (0,1)"}
	}

	result := &Pipeline{
		hardwareRate:  c.HardwareSampleRate,
		decimation:    c.Decimation(),
		mixStep:       -2 * math.Pi * float64(c.FrequencyOffset) / c.HardwareSampleRate,
		dcRemoval:     c.DCRemoval,
		alpha:         c.IIRAlpha,
		mode:          c.Mode,
		transformSize: c.TransformSize,
	}

	switch c.Mode {
	case core.SpectralMode:
		result.window = window.Hann(c.TransformSize)
		result.minSamples = c.TransformSize
		result.bins = c.TransformSize
	case core.CorrelationMode:
		result.pulse = NewPulse(result.OutputRate(), c.PulseWidth, c.PulseFrequency)
		if len(result.pulse) < MinPulseLength {
			return nil, &core.ConfigError{Option: "pulse_width", Value: c.PulseWidth, Reason: "pulse reference too short at the decimated rate"}
		}
		result.minSamples = len(result.pulse)
		result.bins = c.TransformSize + len(result.pulse) - 1
	default:
		return nil, &core.ConfigError{Option: "mode", Value: c.Mode, Reason: "unknown mode"}
	}

	log.Printf("[INFO] pipeline: mode %s, decimation %d, output rate %.1fHz, %d bins", result.mode, result.decimation, result.OutputRate(), result.bins)
	return result, nil
}

// Pipeline turns blocks of IQ samples into rows of a heatmap. It is not safe for concurrent use,
// the DC state belongs to the goroutine that calls Process.
type Pipeline struct {
	hardwareRate float64
	decimation   int

	mixStep  float64
	mixPhase float64

	dcRemoval core.DCRemovalMode
	alpha     float64
	dcState   complex128

	mode          core.TransformMode
	transformSize int
	window        []float64
	pulse         []complex128
	minSamples    int
	bins          int
}

// Bins is the width of every row.
func (p *Pipeline) Bins() int {
	return p.bins
}

// Decimation is the effective decimation factor.
func (p *Pipeline) Decimation() int {
	return p.decimation
}

// OutputRate is the sample rate after decimation.
func (p *Pipeline) OutputRate() float64 {
	return p.hardwareRate / float64(p.decimation)
}

// Pulse returns the pulse reference used in correlation mode.
func (p *Pipeline) Pulse() []complex128 {
	return p.pulse
}

// Reset the running state: the mixer phase and the DC state.
func (p *Pipeline) Reset() {
	p.mixPhase = 0
	p.dcState = 0
}

// Process one block of samples. If too few samples remain after decimation, no row is produced
// and ok is false. The block is not modified.
func (p *Pipeline) Process(block core.Block) (row []float64, ok bool) {
	samples := p.mixAndDecimate(block)
	if len(samples) < p.minSamples {
		log.Printf("[DEBUG] decimated length %d < %d, skipping", len(samples), p.minSamples)
		return nil, false
	}

	if p.dcRemoval == core.DCRemovalIIRHighpass {
		p.dcState = removeDCHighpass(samples, p.alpha, p.dcState)
	}

	// Only the oldest transformSize samples of a long block are analyzed.
	analysis := samples
	if len(analysis) > p.transformSize {
		analysis = analysis[:p.transformSize]
	}
	if p.dcRemoval == core.DCRemovalBlockMean {
		removeMean(analysis)
	}

	switch p.mode {
	case core.SpectralMode:
		return spectrum(analysis, p.window), true
	case core.CorrelationMode:
		return padOrTruncate(correlate(analysis, p.pulse), p.bins), true
	default:
		return nil, false
	}
}

// mixAndDecimate shifts the block by the configured frequency offset and keeps every
// decimation-th sample. The mixer runs on the hardware time base and only for the kept samples.
func (p *Pipeline) mixAndDecimate(block core.Block) []complex128 {
	result := make([]complex128, decimatedLength(len(block), p.decimation))
	mixing := p.mixStep != 0
	for k := range result {
		s := complex128(block[k*p.decimation])
		if mixing {
			φ := p.mixPhase + p.mixStep*float64(k*p.decimation)
			s *= cmplx.Exp(complex(0, φ))
		}
		result[k] = s
	}
	if mixing {
		p.mixPhase = math.Mod(p.mixPhase+p.mixStep*float64(len(block)), 2*math.Pi)
	}
	return result
}

func decimatedLength(length, decimation int) int {
	return (length + decimation - 1) / decimation
}

func removeMean(samples []complex128) {
	if len(samples) == 0 {
		return
	}
	var sum complex128
	for _, s := range samples {
		sum += s
	}
	mean := sum / complex(float64(len(samples)), 0)
	for i := range samples {
		samples[i] -= mean
	}
}

// removeDCHighpass applies y = x - s, s = αs + (1-α)x in place and returns the new state.
func removeDCHighpass(samples []complex128, alpha float64, state complex128) complex128 {
	a := complex(alpha, 0)
	b := complex(1-alpha, 0)
	for i, x := range samples {
		samples[i] = x - state
		state = a*state + b*x
	}
	return state
}

// spectrum returns the windowed, centered magnitude spectrum in dB.
func spectrum(samples []complex128, w []float64) []float64 {
	windowed := make([]complex128, len(samples))
	for i, s := range samples {
		windowed[i] = s * complex(w[i], 0)
	}
	return magnitudesToDB(fftShift(fft.FFT(windowed)))
}

// fftShift moves the zero frequency to index len/2.
func fftShift(values []complex128) []complex128 {
	n := len(values)
	result := make([]complex128, n)
	for i, v := range values {
		result[(i+n/2)%n] = v
	}
	return result
}

func magnitudesToDB(values []complex128) []float64 {
	result := make([]float64, len(values))
	for i, v := range values {
		result[i] = 20 * math.Log10(cmplx.Abs(v)+dbFloor)
	}
	return result
}

// correlate returns the magnitude of the full cross-correlation of the samples with the reference.
// Index len(reference)-1 is the zero lag.
func correlate(samples []complex128, reference []complex128) []float64 {
	length := len(samples) + len(reference) - 1
	size := dsputils.NextPowerOf2(length)

	kernel := make([]complex128, len(reference))
	for i, r := range reference {
		kernel[len(reference)-1-i] = cmplx.Conj(r)
	}

	convolution := fft.Convolve(dsputils.ZeroPad(samples, size), dsputils.ZeroPad(kernel, size))

	result := make([]float64, length)
	for i := range result {
		result[i] = cmplx.Abs(convolution[i])
	}
	return result
}

func padOrTruncate(values []float64, size int) []float64 {
	if len(values) == size {
		return values
	}
	result := make([]float64, size)
	copy(result, values)
	return result
}

// NewPulse returns a Hann windowed complex exponential of the given width and frequency offset.
// Pulses shorter than MinPulseLength samples are returned empty.
func NewPulse(sampleRate float64, width time.Duration, frequency core.Frequency) []complex128 {
	length := int(sampleRate * width.Seconds())
	if length < MinPulseLength {
		return []complex128{}
	}
	w := window.Hann(length)
	result := make([]complex128, length)
	ω := 2 * math.Pi * float64(frequency) / sampleRate
	for i := range result {
		result[i] = cmplx.Exp(complex(0, ω*float64(i))) * complex(w[i], 0)
	}
	return result
}

// PulseBlock returns the pulse reference zero-padded to the given block size, ready for transmission.
func PulseBlock(pulse []complex128, size int) core.Block {
	result := make(core.Block, size)
	for i := 0; i < len(pulse) && i < size; i++ {
		result[i] = complex64(pulse[i])
	}
	return result
}

// Energy of the given samples.
func Energy(samples []complex128) float64 {
	var result float64
	for _, s := range samples {
		result += real(s)*real(s) + imag(s)*imag(s)
	}
	return result
}
