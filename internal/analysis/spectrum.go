package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

var ErrSamples = errors.New("analysis: not enough samples")

// Spectrum is the one-sided amplitude spectrum of a uniformly sampled
// signal. Amplitudes are scaled so a sine of amplitude A on an exact bin
// reads A.
type Spectrum struct {
	Frequencies []float64
	Amplitudes  []float64
}

func NewSpectrum(data []float64, dt float64) (*Spectrum, error) {
	n := len(data)
	if n < 2 {
		return nil, fmt.Errorf("%w: have %d, need 2", ErrSamples, n)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("analysis: sample spacing must be positive, got %g", dt)
	}

	coeffs := fft.FFTReal(data)
	bins := n/2 + 1
	s := &Spectrum{
		Frequencies: make([]float64, bins),
		Amplitudes:  make([]float64, bins),
	}
	for k := range bins {
		s.Frequencies[k] = float64(k) / (float64(n) * dt)
		amp := cmplx.Abs(coeffs[k]) / float64(n)
		if k != 0 && !(n%2 == 0 && k == n/2) {
			amp *= 2
		}
		s.Amplitudes[k] = amp
	}
	return s, nil
}

// Dominant returns the frequency and amplitude of the strongest non-DC bin.
func (s *Spectrum) Dominant() (freq, amplitude float64) {
	best := -1
	for k := 1; k < len(s.Amplitudes); k++ {
		if best < 0 || s.Amplitudes[k] > s.Amplitudes[best] {
			best = k
		}
	}
	if best < 0 {
		return 0, 0
	}
	return s.Frequencies[best], s.Amplitudes[best]
}

// Mean is the DC component.
func (s *Spectrum) Mean() float64 { return s.Amplitudes[0] }

// Resolution is the spacing between frequency bins.
func (s *Spectrum) Resolution() float64 {
	if len(s.Frequencies) < 2 {
		return math.Inf(1)
	}
	return s.Frequencies[1]
}
