/*
Package heatmap renders the rolling buffer as annotated PNG image. Row 0 of the matrix is the
oldest row and drawn at the top, the newest row is at the bottom.
*/
package heatmap

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"gonum.org/v1/gonum/mat"

	"github.com/ftl/rfheatmap/core"
)

const (
	dpi      = 72.0
	fontSize = 11.0

	topBorder    = 40
	leftBorder   = 10
	rightBorder  = 80
	bottomBorder = 10
	tickLength   = 5
	legendGap    = 8
	legendWidth  = 12

	minPlotWidth  = 512
	minPlotHeight = 256
)

// New returns a renderer that writes the heatmap to the PNG file at the given path.
func New(path string, axis Axis, theme Theme) (*Renderer, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse font")
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(fontSize)
	context.SetHinting(font.HintingFull)
	context.SetSrc(image.Black)

	return &Renderer{
		path:    path,
		axis:    axis,
		colors:  NewColorMap(theme),
		context: context,
		face: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    fontSize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		}),
	}, nil
}

// Renderer draws heatmap images.
type Renderer struct {
	path    string
	axis    Axis
	colors  *ColorMap
	context *freetype.Context
	face    font.Face
}

// Render the given matrix into the PNG file. The file is replaced atomically, so viewers never
// see a partially written image.
func (r *Renderer) Render(m mat.Matrix, valueRange core.DBRange) error {
	img, err := r.Draw(m, valueRange)
	if err != nil {
		return err
	}
	return writePNG(r.path, img)
}

// Draw the given matrix into a new image.
func (r *Renderer) Draw(m mat.Matrix, valueRange core.DBRange) (*image.RGBA, error) {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.Errorf("cannot draw an empty heatmap (%dx%d)", rows, cols)
	}

	cellWidth := max(1, (minPlotWidth+cols-1)/cols)
	cellHeight := max(1, (minPlotHeight+rows-1)/rows)
	plot := image.Rect(leftBorder, topBorder, leftBorder+cols*cellWidth, topBorder+rows*cellHeight)
	img := image.NewRGBA(image.Rect(0, 0, plot.Max.X+rightBorder, plot.Max.Y+bottomBorder))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			c := r.colors.Color(m.At(row, col), valueRange)
			x0 := plot.Min.X + col*cellWidth
			y0 := plot.Min.Y + row*cellHeight
			for y := y0; y < y0+cellHeight; y++ {
				for x := x0; x < x0+cellWidth; x++ {
					img.SetRGBA(x, y, c)
				}
			}
		}
	}

	r.drawLegend(img, plot, valueRange)

	r.context.SetClip(img.Bounds())
	r.context.SetDst(img)
	if err := r.drawAxis(img, plot); err != nil {
		return nil, errors.Wrap(err, "cannot draw axis")
	}
	if err := r.drawLegendScale(img, plot, valueRange); err != nil {
		return nil, errors.Wrap(err, "cannot draw legend")
	}
	return img, nil
}

// Close releases the font resources.
func (r *Renderer) Close() error {
	return r.face.Close()
}

func (r *Renderer) drawLegend(img *image.RGBA, plot image.Rectangle, valueRange core.DBRange) {
	left := plot.Max.X + legendGap
	height := plot.Dy()
	for y := 0; y < height; y++ {
		ratio := 1 - float64(y)/float64(max(1, height-1))
		value := float64(valueRange.From) + ratio*float64(valueRange.Width())
		c := r.colors.Color(value, valueRange)
		for x := left; x < left+legendWidth; x++ {
			img.SetRGBA(x, plot.Min.Y+y, c)
		}
	}
}

func (r *Renderer) drawAxis(img *image.RGBA, plot image.Rectangle) error {
	metrics := r.face.Metrics()
	titleY := metrics.Ascent.Round() + 2
	if _, err := r.context.DrawString(r.axis.Title, freetype.Pt(plot.Min.X, titleY)); err != nil {
		return err
	}

	labelY := plot.Min.Y - tickLength - 3
	for _, mark := range axisScale(r.axis) {
		x := plot.Min.X + int(mark.Ratio*float64(plot.Dx()))
		if x < plot.Min.X || x >= plot.Max.X {
			continue
		}
		for y := plot.Min.Y - tickLength; y < plot.Min.Y; y++ {
			img.Set(x, y, color.Black)
		}

		label := r.axis.Label(mark.Value)
		width := font.MeasureString(r.face, label).Round()
		if _, err := r.context.DrawString(label, freetype.Pt(x-width/2, labelY)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) drawLegendScale(img *image.RGBA, plot image.Rectangle, valueRange core.DBRange) error {
	metrics := r.face.Metrics()
	left := plot.Max.X + legendGap + legendWidth
	for _, mark := range valueScale(valueRange) {
		y := plot.Max.Y - 1 - int(mark.Ratio*float64(plot.Dy()-1))
		for x := left; x < left+tickLength; x++ {
			img.Set(x, y, color.Black)
		}

		label := humanize.FtoaWithDigits(mark.Value, 2)
		textY := y + (metrics.Ascent.Round()-metrics.Descent.Round())/2
		if _, err := r.context.DrawString(label, freetype.Pt(left+tickLength+2, textY)); err != nil {
			return err
		}
	}
	return nil
}

func writePNG(filename string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".*")
	if err != nil {
		return errors.Wrap(err, "cannot create image file")
	}
	defer os.Remove(tmp.Name())

	err = png.Encode(tmp, img)
	if err != nil {
		tmp.Close()
		return errors.Wrapf(err, "cannot encode %s", filename)
	}
	err = tmp.Close()
	if err != nil {
		return errors.Wrapf(err, "cannot write %s", filename)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), filename), "cannot replace %s", filename)
}
