package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/ftl/rfheatmap/core"
)

func tone(blockSize int, rate float64) core.Block {
	result := make(core.Block, blockSize)
	ω := 2 * math.Pi * rate
	for i := range result {
		result[i] = complex64(cmplx.Exp(complex(0, ω*float64(i))))
	}
	return result
}

func constant(blockSize int, value complex64) core.Block {
	result := make(core.Block, blockSize)
	for i := range result {
		result[i] = value
	}
	return result
}

func spectralConfig(transformSize int) core.Configuration {
	return core.Configuration{
		HardwareSampleRate: 1000,
		DecimationFactor:   1,
		TransformSize:      transformSize,
		DCRemoval:          core.DCRemovalNone,
		Mode:               core.SpectralMode,
	}
}

func correlationConfig(transformSize int) core.Configuration {
	return core.Configuration{
		HardwareSampleRate: 1000000,
		DecimationFactor:   1,
		TransformSize:      transformSize,
		DCRemoval:          core.DCRemovalNone,
		Mode:               core.CorrelationMode,
		PulseWidth:         10 * time.Microsecond,
	}
}

func TestNewPipeline_RejectsInvalidConfiguration(t *testing.T) {
	tt := []struct {
		name   string
		modify func(*core.Configuration)
	}{
		{"no sample rate", func(c *core.Configuration) { c.HardwareSampleRate = 0 }},
		{"negative decimation", func(c *core.Configuration) { c.DecimationFactor = -2 }},
		{"zero-length transform", func(c *core.Configuration) { c.TransformSize = 0 }},
		{"unknown dc removal", func(c *core.Configuration) { c.DCRemoval = "median" }},
		{"alpha out of range", func(c *core.Configuration) {
			c.DCRemoval = core.DCRemovalIIRHighpass
			c.IIRAlpha = 1.5
		}},
		{"unknown mode", func(c *core.Configuration) { c.Mode = "" }},
		{"missing pulse reference", func(c *core.Configuration) {
			c.Mode = core.CorrelationMode
			c.PulseWidth = 0
		}},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			c := spectralConfig(64)
			tc.modify(&c)

			_, err := NewPipeline(c)

			var configErr *core.ConfigError
			assert.True(t, errors.As(err, &configErr), "%v", err)
		})
	}
}

func TestMixAndDecimate_DecimationInvariant(t *testing.T) {
	for _, decimation := range []int{1, 2, 3, 7} {
		for _, length := range []int{0, 1, 9, 10, 11, 100} {
			t.Run(fmt.Sprintf("%d_%d", decimation, length), func(t *testing.T) {
				c := spectralConfig(2)
				c.DecimationFactor = decimation
				p, err := NewPipeline(c)
				require.NoError(t, err)

				block := make(core.Block, length)
				for i := range block {
					block[i] = complex(float32(i), -float32(i))
				}

				actual := p.mixAndDecimate(block)

				require.Equal(t, int(math.Ceil(float64(length)/float64(decimation))), len(actual))
				for k, v := range actual {
					assert.Equal(t, complex128(block[k*decimation]), v)
				}
			})
		}
	}
}

func TestMixAndDecimate_PhaseContinuousAcrossBlocks(t *testing.T) {
	c := spectralConfig(2)
	c.FrequencyOffset = 50
	c.DecimationFactor = 3
	p, err := NewPipeline(c)
	require.NoError(t, err)

	signal := tone(30, 50.0/1000.0)
	for _, block := range []core.Block{signal[:10], signal[10:20], signal[20:]} {
		for _, v := range p.mixAndDecimate(block) {
			assert.InDelta(t, 1, real(v), 1e-5)
			assert.InDelta(t, 0, imag(v), 1e-5)
		}
	}
}

func TestRemoveMean(t *testing.T) {
	samples := []complex128{1 + 1i, 3 + 1i, 5 + 1i}

	removeMean(samples)

	assert.Equal(t, []complex128{-2, 0, 2}, samples)
}

func TestRemoveDCHighpass_Converges(t *testing.T) {
	const dc = 0.5 - 0.25i
	samples := make([]complex128, 500)
	for i := range samples {
		samples[i] = dc
	}

	state := removeDCHighpass(samples, 0.95, 0)

	assert.InDelta(t, real(dc), real(state), 1e-6)
	assert.InDelta(t, imag(dc), imag(state), 1e-6)
	assert.Equal(t, complex128(dc), samples[0], "the state starts at zero")
	assert.InDelta(t, 0, cmplx.Abs(samples[len(samples)-1]), 1e-6)
	for i := 1; i < len(samples); i++ {
		assert.True(t, cmplx.Abs(samples[i]) <= cmplx.Abs(samples[i-1]))
	}
}

func TestRemoveDCHighpass_StatePersistsAcrossBlocks(t *testing.T) {
	input := []complex128{1, 2, 3, 4, 5, 6, 7, 8}
	whole := append([]complex128{}, input...)
	first := append([]complex128{}, input[:3]...)
	second := append([]complex128{}, input[3:]...)

	removeDCHighpass(whole, 0.9, 0)
	state := removeDCHighpass(first, 0.9, 0)
	removeDCHighpass(second, 0.9, state)

	assert.InDeltaSlice(t, toFloats(whole), toFloats(append(first, second...)), 1e-12)
}

func TestFFTShift(t *testing.T) {
	tt := []struct {
		values   []complex128
		expected []complex128
	}{
		{[]complex128{0, 1, 2, 3}, []complex128{2, 3, 0, 1}},
		{[]complex128{0, 1, 2, 3, 4}, []complex128{3, 4, 0, 1, 2}},
		{[]complex128{7}, []complex128{7}},
	}

	for i, tc := range tt {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			assert.Equal(t, tc.expected, fftShift(tc.values))
		})
	}
}

func TestMagnitudesToDB_HasFloor(t *testing.T) {
	actual := magnitudesToDB([]complex128{0, 1, 10i})

	assert.InDelta(t, -240, actual[0], 1e-9)
	assert.InDelta(t, 0, actual[1], 1e-9)
	assert.InDelta(t, 20, actual[2], 1e-9)
}

func TestProcess_SpectralTone(t *testing.T) {
	c := spectralConfig(64)
	c.FrequencyOffset = 100
	p, err := NewPipeline(c)
	require.NoError(t, err)

	row, ok := p.Process(tone(64, 100.0/1000.0))

	require.True(t, ok)
	require.Len(t, row, 64)
	peak := floats.MaxIdx(row)
	assert.InDelta(t, 32, peak, 1)
	assert.True(t, row[peak] > 20, "peak %f", row[peak])
	for i, v := range row {
		if math.Abs(float64(i-peak)) > 1 {
			assert.True(t, row[peak]-v > 30, "%d:%f too close to peak %f", i, v, row[peak])
		}
	}
}

func TestProcess_SpectralToneWithoutMixing(t *testing.T) {
	c := spectralConfig(64)
	p, err := NewPipeline(c)
	require.NoError(t, err)

	row, ok := p.Process(tone(64, 8.0/64.0))

	require.True(t, ok)
	assert.Equal(t, 32+8, floats.MaxIdx(row))
}

func TestProcess_SkipOnUnderflow(t *testing.T) {
	c := spectralConfig(1024)
	c.DCRemoval = core.DCRemovalIIRHighpass
	c.IIRAlpha = 0.995
	p, err := NewPipeline(c)
	require.NoError(t, err)

	row, ok := p.Process(constant(500, 1))

	assert.False(t, ok)
	assert.Nil(t, row)
	assert.Equal(t, complex128(0), p.dcState, "a skipped block leaves the DC state untouched")
}

func TestProcess_SkipAfterDecimation(t *testing.T) {
	c := spectralConfig(64)
	c.DecimationFactor = 4
	p, err := NewPipeline(c)
	require.NoError(t, err)

	_, ok := p.Process(constant(252, 1))
	assert.False(t, ok)

	_, ok = p.Process(constant(253, 1))
	assert.True(t, ok)
}

func TestProcess_DCRemovalModes(t *testing.T) {
	for _, mode := range []core.DCRemovalMode{core.DCRemovalBlockMean, core.DCRemovalIIRHighpass} {
		t.Run(string(mode), func(t *testing.T) {
			c := spectralConfig(64)
			c.DCRemoval = mode
			c.IIRAlpha = 0.5
			p, err := NewPipeline(c)
			require.NoError(t, err)

			var row []float64
			for i := 0; i < 3; i++ {
				var ok bool
				row, ok = p.Process(constant(256, 0.75+0.5i))
				require.True(t, ok)
			}

			assert.True(t, row[32] < -100, "DC bin %f", row[32])
		})
	}
}

func TestProcess_BlockMeanOverAnalyzedSamples(t *testing.T) {
	c := spectralConfig(64)
	c.DCRemoval = core.DCRemovalBlockMean
	p, err := NewPipeline(c)
	require.NoError(t, err)

	block := make(core.Block, 512)
	for i := 0; i < 64; i++ {
		block[i] = 1
	}

	row, ok := p.Process(block)
	require.True(t, ok)

	for i, value := range row {
		assert.True(t, value < -100, "bin %d: %f", i, value)
	}
}

func TestProcess_RowWidthInvariant(t *testing.T) {
	spectral, err := NewPipeline(spectralConfig(64))
	require.NoError(t, err)
	correlation, err := NewPipeline(correlationConfig(64))
	require.NoError(t, err)
	decimated := correlationConfig(64)
	decimated.DecimationFactor = 2
	decimated.PulseWidth = 20 * time.Microsecond
	correlationDecimated, err := NewPipeline(decimated)
	require.NoError(t, err)

	for _, p := range []*Pipeline{spectral, correlation, correlationDecimated} {
		for _, length := range []int{5, 10, 17, 63, 64, 65, 100, 129, 1000} {
			t.Run(fmt.Sprintf("%s_%d_%d", p.mode, p.decimation, length), func(t *testing.T) {
				row, ok := p.Process(tone(length, 0.1))
				if !ok {
					assert.True(t, decimatedLength(length, p.decimation) < p.minSamples)
					return
				}
				assert.Len(t, row, p.Bins())
			})
		}
	}
	assert.Equal(t, 64+10-1, correlation.Bins())
	assert.Equal(t, 64+10-1, correlationDecimated.Bins())
}

func TestProcess_CorrelationWithItself(t *testing.T) {
	p, err := NewPipeline(correlationConfig(32))
	require.NoError(t, err)
	pulse := p.Pulse()
	require.Len(t, pulse, 10)

	block := PulseBlock(pulse, 32)
	row, ok := p.Process(block)

	require.True(t, ok)
	require.Len(t, row, 32+len(pulse)-1)
	assert.Equal(t, len(pulse)-1, floats.MaxIdx(row))
	assert.InDelta(t, Energy(pulse), row[len(pulse)-1], 1e-4)
}

func TestProcess_CorrelationFindsDelayedPulse(t *testing.T) {
	p, err := NewPipeline(correlationConfig(64))
	require.NoError(t, err)
	pulse := p.Pulse()

	const delay = 20
	block := make(core.Block, 64)
	for i, v := range pulse {
		block[delay+i] = complex64(v)
	}
	row, ok := p.Process(block)

	require.True(t, ok)
	assert.Equal(t, len(pulse)-1+delay, floats.MaxIdx(row))
}

func TestCorrelate_MatchesDirectSum(t *testing.T) {
	samples := []complex128{1, 2i, -1, 3 + 1i, 0.5}
	reference := []complex128{1i, 2, -1 + 1i}

	actual := correlate(samples, reference)

	require.Len(t, actual, len(samples)+len(reference)-1)
	for i := range actual {
		lag := i - (len(reference) - 1)
		var expected complex128
		for n, r := range reference {
			if n+lag >= 0 && n+lag < len(samples) {
				expected += samples[n+lag] * cmplx.Conj(r)
			}
		}
		assert.InDelta(t, cmplx.Abs(expected), actual[i], 1e-9, "index %d", i)
	}
}

func TestNewPulse(t *testing.T) {
	pulse := NewPulse(1000000, 10*time.Microsecond, 0)

	require.Len(t, pulse, 10)
	assert.InDelta(t, 0, cmplx.Abs(pulse[0]), 1e-12)
	assert.InDelta(t, 0, cmplx.Abs(pulse[9]), 1e-12)
	assert.InDelta(t, cmplx.Abs(pulse[4]), cmplx.Abs(pulse[5]), 1e-12)
	assert.Empty(t, NewPulse(1000, 10*time.Microsecond, 0))
}

func TestPulseBlock(t *testing.T) {
	block := PulseBlock([]complex128{1, 2, 3}, 5)
	assert.Equal(t, core.Block{1, 2, 3, 0, 0}, block)

	block = PulseBlock([]complex128{1, 2, 3}, 2)
	assert.Equal(t, core.Block{1, 2}, block)
}

func TestReset(t *testing.T) {
	c := spectralConfig(4)
	c.DCRemoval = core.DCRemovalIIRHighpass
	c.IIRAlpha = 0.9
	c.FrequencyOffset = 10
	p, err := NewPipeline(c)
	require.NoError(t, err)

	p.Process(constant(7, 1))
	require.NotEqual(t, complex128(0), p.dcState)
	require.NotEqual(t, 0.0, p.mixPhase)

	p.Reset()

	assert.Equal(t, complex128(0), p.dcState)
	assert.Equal(t, 0.0, p.mixPhase)
}

func toFloats(values []complex128) []float64 {
	result := make([]float64, 0, 2*len(values))
	for _, v := range values {
		result = append(result, real(v), imag(v))
	}
	return result
}

func BenchmarkProcessSpectral(b *testing.B) {
	c := spectralConfig(1024)
	c.HardwareSampleRate = 520834
	c.DecimationFactor = 0
	c.TargetRate = 2000
	c.FrequencyOffset = 1000
	c.DCRemoval = core.DCRemovalIIRHighpass
	c.IIRAlpha = 0.995
	p, err := NewPipeline(c)
	if err != nil {
		b.Fatal(err)
	}
	block := tone(262144, 0.01)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Process(block)
	}
}

func BenchmarkProcessCorrelation(b *testing.B) {
	c := correlationConfig(256)
	c.HardwareSampleRate = 520834
	p, err := NewPipeline(c)
	if err != nil {
		b.Fatal(err)
	}
	block := tone(256, 0.01)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Process(block)
	}
}
