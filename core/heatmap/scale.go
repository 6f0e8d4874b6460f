package heatmap

import (
	"math"

	"github.com/dustin/go-humanize"

	"github.com/ftl/rfheatmap/core"
)

// speedOfLight in m/s
const speedOfLight = 299792458.0

// Axis describes the horizontal axis of the heatmap. From belongs to the left edge of the first
// column, To to the right edge of the last column.
type Axis struct {
	Title string
	Unit  string
	From  float64
	To    float64
}

// Width of the axis.
func (a Axis) Width() float64 {
	return a.To - a.From
}

// Ratio of the given value on the axis.
func (a Axis) Ratio(value float64) float64 {
	if a.Width() <= 0 {
		return 0
	}
	return (value - a.From) / a.Width()
}

// Label formats the given value with SI prefix and unit.
func (a Axis) Label(value float64) string {
	return humanize.SIWithDigits(value, 2, a.Unit)
}

// FrequencyAxis covers the output band of the spectral mode relative to the tuned frequency.
// Column k of an N bin row is the frequency (k - N/2) * outputRate / N.
func FrequencyAxis(tuned core.Frequency, outputRate float64, bins int) Axis {
	resolution := outputRate / float64(bins)
	from := -float64(bins/2) * resolution
	return Axis{
		Title: humanize.SIWithDigits(float64(tuned), 6, "Hz"),
		Unit:  "Hz",
		From:  from - resolution/2,
		To:    from + float64(bins)*resolution - resolution/2,
	}
}

// RangeAxis covers the lags of the correlation mode as round trip distance. Column k of a row is
// the lag k - (pulseLength - 1).
func RangeAxis(outputRate float64, pulseLength, bins int) Axis {
	metersPerLag := speedOfLight / outputRate / 2
	from := -float64(pulseLength-1) * metersPerLag
	return Axis{
		Title: "range",
		Unit:  "m",
		From:  from - metersPerLag/2,
		To:    from + float64(bins)*metersPerLag - metersPerLag/2,
	}
}

// Mark on a scale. Ratio is the relative position of the mark on the axis.
type Mark struct {
	Value float64
	Ratio float64
}

// axisScale returns marks at round values, about one every tenth of the axis width.
func axisScale(axis Axis) []Mark {
	width := axis.Width()
	if width <= 0 || math.IsInf(width, 0) || math.IsNaN(width) {
		return []Mark{}
	}

	step := math.Pow(10, math.Floor(math.Log10(width))-1)
	for _, factor := range []float64{1, 2, 5, 10, 20, 50, 100} {
		if step*factor/width >= 0.1 {
			step *= factor
			break
		}
	}

	first := math.Ceil(axis.From/step) * step
	result := make([]Mark, 0, int(width/step)+1)
	for i := 0; first+float64(i)*step <= axis.To; i++ {
		value := first + float64(i)*step
		if math.Abs(value) < step*1e-9 {
			value = 0
		}
		result = append(result, Mark{Value: value, Ratio: axis.Ratio(value)})
	}
	return result
}

// valueScale returns marks every 10 dB within the value range. Narrow ranges use a finer step so
// that the legend has at least two marks.
func valueScale(valueRange core.DBRange) []Mark {
	width := float64(valueRange.Width())
	if width <= 0 {
		return []Mark{}
	}

	step := 10.0
	for width/step < 2 && step > 1e-6 {
		step /= 10
	}

	first := math.Ceil(float64(valueRange.From)/step) * step
	result := make([]Mark, 0, int(width/step)+1)
	for i := 0; first+float64(i)*step <= float64(valueRange.To); i++ {
		value := first + float64(i)*step
		result = append(result, Mark{Value: value, Ratio: valueRange.Ratio(core.DB(value))})
	}
	return result
}
