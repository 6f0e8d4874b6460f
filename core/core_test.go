package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDBRange_Normalized(t *testing.T) {
	tt := []struct {
		from, to DB
		expected DBRange
	}{
		{10, -180, DBRange{-180, 10}},
		{-180, 10, DBRange{-180, 10}},
		{0, 0, DBRange{0, 0}},
	}

	for i, tc := range tt {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			actual := DBRange{tc.from, tc.to}.Normalized()
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestDBRange_Ratio(t *testing.T) {
	tt := []struct {
		from     DB
		to       DB
		value    DB
		expected float64
	}{
		{-80, 20, -90, 0},
		{-80, 20, -80, 0},
		{-80, 20, -60, 0.2},
		{-80, 20, 0, 0.8},
		{-80, 20, 30, 1},
		{0, 0, 30, 0},
	}

	for i, tc := range tt {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			actual := DBRange{tc.from, tc.to}.Ratio(tc.value)
			assert.InDelta(t, tc.expected, actual, 1e-9)
		})
	}
}

func TestConfiguration_Decimation(t *testing.T) {
	tt := []struct {
		name     string
		hardware float64
		target   float64
		explicit int
		expected int
	}{
		{"nothing set", 1000000, 0, 0, 1},
		{"from target rate", 520834, 2000, 0, 260},
		{"target above hardware rate", 1000, 2000, 0, 1},
		{"explicit wins", 1000000, 2000, 4, 4},
		{"no hardware rate", 0, 2000, 0, 1},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			c := Configuration{HardwareSampleRate: tc.hardware, TargetRate: tc.target, DecimationFactor: tc.explicit}
			assert.Equal(t, tc.expected, c.Decimation())
		})
	}
}

func TestConfiguration_PulseLength(t *testing.T) {
	c := Configuration{PulseWidth: 10 * time.Microsecond}
	assert.Equal(t, 5, c.PulseLength(520834))
	assert.Equal(t, 0, c.PulseLength(1000))
}

func TestModesValid(t *testing.T) {
	assert.True(t, DCRemovalIIRHighpass.Valid())
	assert.False(t, DCRemovalMode("median").Valid())
	assert.True(t, CorrelationMode.Valid())
	assert.False(t, TransformMode("wavelet").Valid())
	assert.True(t, TxMode("").Valid())
	assert.False(t, TxMode("chirp").Valid())
}
