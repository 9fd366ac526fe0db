// Package render draws a room's stroke log onto a white canvas, as a PNG
// raster (gogpu/gg) or a single-page PDF (gofpdf). Strokes are painted in
// log order, so later strokes cover earlier ones and eraser strokes paint
// the background colour.
package render

import (
	"fmt"
	"io"
	"math"

	"github.com/gogpu/gg"
	"github.com/jung-kurt/gofpdf"

	"github.com/manpreetbhatti/canvasroom/internal/room"
)

const (
	background   = "#ffffff"
	defaultColor = "#000000"
	padding      = 16
	minSize      = 64
	maxSize      = 4096
)

// Options fixes the canvas size. A zero dimension is fitted to the
// strokes' bounds.
type Options struct {
	Width  int
	Height int
}

func (o Options) size(strokes []room.Stroke) (int, int) {
	w, h := o.Width, o.Height
	if w > 0 && h > 0 {
		return clamp(w), clamp(h)
	}

	var maxX, maxY float64
	for _, s := range strokes {
		for _, p := range s.Points {
			maxX = math.Max(maxX, p.X+s.Width/2)
			maxY = math.Max(maxY, p.Y+s.Width/2)
		}
	}
	if w <= 0 {
		w = int(math.Ceil(maxX)) + padding
	}
	if h <= 0 {
		h = int(math.Ceil(maxY)) + padding
	}
	return clamp(w), clamp(h)
}

func clamp(n int) int {
	return min(max(n, minSize), maxSize)
}

func strokeColor(s room.Stroke) string {
	if s.IsEraser {
		return background
	}
	if s.Color == "" {
		return defaultColor
	}
	return s.Color
}

// PNG writes the strokes as a PNG image
func PNG(w io.Writer, strokes []room.Stroke, opts Options) error {
	width, height := opts.size(strokes)

	dc := gg.NewContext(width, height)
	defer dc.Close()

	dc.ClearWithColor(gg.White)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	for _, s := range strokes {
		if len(s.Points) == 0 {
			continue
		}
		dc.SetHexColor(strokeColor(s))

		// A tap leaves a dot
		if len(s.Points) == 1 {
			dc.DrawCircle(s.Points[0].X, s.Points[0].Y, s.Width/2)
			if err := dc.Fill(); err != nil {
				return fmt.Errorf("fill stroke %s: %w", s.ID, err)
			}
			continue
		}

		dc.SetLineWidth(s.Width)
		dc.MoveTo(s.Points[0].X, s.Points[0].Y)
		for _, p := range s.Points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		if err := dc.Stroke(); err != nil {
			return fmt.Errorf("draw stroke %s: %w", s.ID, err)
		}
	}

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// PDF writes the strokes as a one-page PDF sized to the canvas, one point
// per canvas pixel.
func PDF(w io.Writer, strokes []room.Stroke, opts Options) error {
	width, height := opts.size(strokes)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: float64(width), Ht: float64(height)},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	for _, s := range strokes {
		if len(s.Points) == 0 {
			continue
		}
		r, g, b := rgb(strokeColor(s))
		pdf.SetDrawColor(r, g, b)
		pdf.SetFillColor(r, g, b)

		if len(s.Points) == 1 {
			pdf.Circle(s.Points[0].X, s.Points[0].Y, s.Width/2, "F")
			continue
		}

		pdf.SetLineWidth(s.Width)
		pdf.MoveTo(s.Points[0].X, s.Points[0].Y)
		for _, p := range s.Points[1:] {
			pdf.LineTo(p.X, p.Y)
		}
		pdf.DrawPath("D")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// rgb converts a hex colour to 0-255 components
func rgb(hex string) (int, int, int) {
	c := gg.Hex(hex)
	return int(math.Round(c.R * 255)), int(math.Round(c.G * 255)), int(math.Round(c.B * 255))
}
