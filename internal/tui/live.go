package tui

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/san-kum/blocksim/internal/vector"
)

const (
	width       = 70
	height      = 20
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer draws each sweep sample as a bar chart. It satisfies
// sweep.Observer. A frameRate of 0 draws every sample.
type LiveRenderer struct {
	out       io.Writer
	title     string
	frameRate int
	lastFrame time.Time
	canvas    [][]rune
}

func NewLiveRenderer(out io.Writer, title string, frameRate int) *LiveRenderer {
	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
	}
	return &LiveRenderer{
		out:       out,
		title:     title,
		frameRate: frameRate,
		canvas:    canvas,
	}
}

func (r *LiveRenderer) OnSample(t float64, y vector.Vector) {
	if r.frameRate > 0 {
		if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
			return
		}
		r.lastFrame = time.Now()
	}
	r.clear()
	r.drawBars(y)
	r.render(y, t)
}

func (r *LiveRenderer) clear() {
	for y := range r.canvas {
		for x := range r.canvas[y] {
			r.canvas[y][x] = ' '
		}
	}
}

func (r *LiveRenderer) set(x, y int, c rune) {
	if x >= 0 && x < width && y >= 0 && y < height {
		r.canvas[y][x] = c
	}
}

func (r *LiveRenderer) drawBars(y vector.Vector) {
	cy := height / 2
	for i := 5; i < width-5; i++ {
		r.set(i, cy, '-')
	}
	if len(y) == 0 {
		return
	}

	bw := max((width-15)/len(y), 3)
	scale := 1.0
	for _, v := range y {
		scale = max(scale, math.Abs(v))
	}

	for i, v := range y {
		bx := 8 + i*bw
		bh := int((v / scale) * float64(height/3))
		if bh > 0 {
			for row := cy - 1; row >= cy-bh && row >= 1; row-- {
				r.set(bx, row, '#')
			}
		} else {
			for row := cy + 1; row <= cy-bh && row < height-1; row++ {
				r.set(bx, row, '#')
			}
		}
	}
}

func (r *LiveRenderer) render(y vector.Vector, t float64) {
	var b strings.Builder
	b.WriteString(clearScreen)
	fmt.Fprintf(&b, "  %s  t=%.2fs\n", r.title, t)
	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	for _, row := range r.canvas {
		b.WriteString("  ")
		b.WriteString(string(row))
		b.WriteString("\n")
	}
	b.WriteString("  " + strings.Repeat("-", width) + "\n")

	b.WriteString("  ")
	for i, v := range y {
		if i >= 6 {
			b.WriteString("...")
			break
		}
		fmt.Fprintf(&b, "y%d=%.3f ", i, v)
	}
	b.WriteString("\n")
	fmt.Fprint(r.out, b.String())
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
