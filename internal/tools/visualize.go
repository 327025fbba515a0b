// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/kestrel-ai/kestrel/internal/core/models"
)

// VisualizeTool renders simple charts from tabular data and returns them as
// a PNG data URI. Bar and line charts are supported; anything fancier is a
// job for a real charting frontend downstream.
type VisualizeTool struct{}

// NewVisualizeTool creates the tool.
func NewVisualizeTool() *VisualizeTool { return &VisualizeTool{} }

func (t *VisualizeTool) Name() models.ToolType { return models.ToolVisualize }

var chartPalette = []color.RGBA{
	{R: 0x33, G: 0x77, B: 0xbb, A: 0xff},
	{R: 0xee, G: 0x66, B: 0x77, A: 0xff},
	{R: 0x22, G: 0x88, B: 0x33, A: 0xff},
	{R: 0xcc, G: 0xbb, B: 0x44, A: 0xff},
}

// Run renders the rows in "data" using the "y" column (and optional "x"
// labels, unused in the raster output). "chart_type" accepts "bar"
// (default) and "line".
func (t *VisualizeTool) Run(ctx context.Context, params map[string]any) (map[string]any, error) {
	rows, err := tabularRows(params["data"])
	if err != nil {
		return nil, err
	}

	yCol, _ := params["y"].(string)
	if yCol == "" {
		numeric := numericColumns(rows)
		if len(numeric) == 0 {
			return nil, fmt.Errorf("no numeric column to plot")
		}
		yCol = numeric[0]
	}
	values := numericValues(rows, yCol)
	if len(values) == 0 {
		return nil, fmt.Errorf("column %q has no numeric values", yCol)
	}

	chartType, _ := params["chart_type"].(string)
	if chartType == "" {
		chartType = "bar"
	}

	width, height := intParam(params, "width", 800), intParam(params, "height", 400)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	switch chartType {
	case "bar":
		drawBars(img, values)
	case "line":
		drawLine(img, values)
	default:
		return nil, fmt.Errorf("unknown chart_type %q", chartType)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	return map[string]any{
		"status": "success",
		"data":   uri,
		"metadata": map[string]any{
			"chart_type": chartType,
			"column":     yCol,
			"points":     len(values),
		},
	}, nil
}

const chartMargin = 20

func drawBars(img *image.RGBA, values []float64) {
	bounds := img.Bounds()
	plotW := bounds.Dx() - 2*chartMargin
	plotH := bounds.Dy() - 2*chartMargin
	if plotW <= 0 || plotH <= 0 {
		return
	}

	top := maxOf(values)
	if top <= 0 {
		top = 1
	}
	barW := plotW / len(values)
	if barW < 1 {
		barW = 1
	}

	for i, v := range values {
		if v < 0 {
			v = 0
		}
		h := int(v / top * float64(plotH))
		x0 := chartMargin + i*barW
		fill := chartPalette[i%len(chartPalette)]
		rect := image.Rect(x0+1, bounds.Dy()-chartMargin-h, x0+barW-1, bounds.Dy()-chartMargin)
		draw.Draw(img, rect, image.NewUniform(fill), image.Point{}, draw.Src)
	}
}

func drawLine(img *image.RGBA, values []float64) {
	bounds := img.Bounds()
	plotW := bounds.Dx() - 2*chartMargin
	plotH := bounds.Dy() - 2*chartMargin
	if plotW <= 0 || plotH <= 0 || len(values) < 2 {
		return
	}

	lo, hi := minOf(values), maxOf(values)
	if hi == lo {
		hi = lo + 1
	}

	toPoint := func(i int) (int, int) {
		x := chartMargin + i*plotW/(len(values)-1)
		y := bounds.Dy() - chartMargin - int((values[i]-lo)/(hi-lo)*float64(plotH))
		return x, y
	}

	stroke := chartPalette[0]
	for i := 0; i < len(values)-1; i++ {
		x0, y0 := toPoint(i)
		x1, y1 := toPoint(i + 1)
		plotSegment(img, x0, y0, x1, y1, stroke)
	}
}

// plotSegment draws a line segment with integer stepping.
func plotSegment(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func intParam(params map[string]any, key string, fallback int) int {
	if v, ok := toFloat(params[key]); ok && v > 0 {
		return int(v)
	}
	return fallback
}
