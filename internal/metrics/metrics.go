package metrics

import (
	"math"

	"github.com/san-kum/blocksim/internal/sweep"
	"github.com/san-kum/blocksim/internal/vector"
)

// Metric summarizes the samples of a sweep. Metrics are sweep observers.
type Metric interface {
	sweep.Observer
	Name() string
	Value() float64
	Reset()
}

// Default returns rms, peak, mean and the fraction of samples whose
// elements all stay within bound.
func Default(bound float64) []Metric {
	return []Metric{NewRMS(), NewPeak(), NewMean(), NewWithinBound(bound)}
}

// Observers adapts metrics for sweep.Run.
func Observers(ms []Metric) []sweep.Observer {
	obs := make([]sweep.Observer, len(ms))
	for i, m := range ms {
		obs[i] = m
	}
	return obs
}

// Values collects the current value of every metric by name.
func Values(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

type RMS struct {
	sum   float64
	count int
}

func NewRMS() *RMS { return &RMS{} }

func (m *RMS) Name() string { return "rms" }

func (m *RMS) OnSample(_ float64, y vector.Vector) {
	m.sum += y.Dot(y)
	m.count += len(y)
}

func (m *RMS) Value() float64 {
	if m.count == 0 {
		return 0
	}
	return math.Sqrt(m.sum / float64(m.count))
}

func (m *RMS) Reset() { m.sum, m.count = 0, 0 }

// Peak is the largest absolute element seen.
type Peak struct {
	peak float64
}

func NewPeak() *Peak { return &Peak{} }

func (m *Peak) Name() string { return "peak" }

func (m *Peak) OnSample(_ float64, y vector.Vector) {
	for _, v := range y {
		m.peak = max(m.peak, math.Abs(v))
	}
}

func (m *Peak) Value() float64 { return m.peak }
func (m *Peak) Reset()         { m.peak = 0 }

type Mean struct {
	sum   float64
	count int
}

func NewMean() *Mean { return &Mean{} }

func (m *Mean) Name() string { return "mean" }

func (m *Mean) OnSample(_ float64, y vector.Vector) {
	for _, v := range y {
		m.sum += v
	}
	m.count += len(y)
}

func (m *Mean) Value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

func (m *Mean) Reset() { m.sum, m.count = 0, 0 }

// WithinBound is the fraction of samples whose elements all satisfy
// |y_i| <= threshold. It reads 1 before any sample.
type WithinBound struct {
	threshold  float64
	violations int
	samples    int
}

func NewWithinBound(threshold float64) *WithinBound {
	return &WithinBound{threshold: threshold}
}

func (m *WithinBound) Name() string { return "within_bound" }

func (m *WithinBound) OnSample(_ float64, y vector.Vector) {
	m.samples++
	for _, v := range y {
		if math.Abs(v) > m.threshold {
			m.violations++
			break
		}
	}
}

func (m *WithinBound) Value() float64 {
	if m.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(m.violations)/float64(m.samples)
}

func (m *WithinBound) Reset() { m.violations, m.samples = 0, 0 }
