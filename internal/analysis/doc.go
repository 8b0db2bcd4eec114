// Package analysis characterizes sampled signals, such as the columns of
// a sweep result.
//
//	s, err := analysis.NewSpectrum(res.Column(0), dt)
//	f, amp := s.Dominant()
package analysis
