// Package trend generates the synthetic series behind projections,
// forecasts and dashboard charts.
package trend

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/noise"
)

// Point is one step of a generated series.
type Point struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// Params describes a seasonal series:
//
//	s     = sin(2π(i + Phase) / Period)
//	value = (Base + Slope·i)(1 + Growth·i)(1 + Amplitude·s) + Swing·s + Jitter·u
//
// for i in [Start, Start+Points). A zero Period disables the sinusoid.
type Params struct {
	Points    int
	Start     int
	Base      float64
	Slope     float64 // additive change per step
	Growth    float64 // multiplicative change per step
	Amplitude float64 // relative seasonal swing
	Swing     float64 // absolute seasonal swing
	Period    float64
	Phase     float64
	Jitter    float64 // width of the uniform noise added to every point
}

// Seasonal generates the series described by p. src may be nil when
// Jitter is zero.
func Seasonal(p Params, src noise.Source) []Point {
	if p.Points <= 0 {
		return nil
	}
	points := make([]Point, 0, p.Points)
	for i := p.Start; i < p.Start+p.Points; i++ {
		x := float64(i)
		s := 0.0
		if p.Period != 0 {
			s = math.Sin(2 * math.Pi * (x + p.Phase) / p.Period)
		}
		v := (p.Base + p.Slope*x) * (1 + p.Growth*x) * (1 + p.Amplitude*s)
		v += p.Swing * s
		v += jitter(p.Jitter, src)
		points = append(points, Point{Index: i, Value: v})
	}
	return points
}

// DecayParams describes an exponential decay toward Floor:
//
//	value = Floor + Base·e^(−Rate·i) + Jitter·u
type DecayParams struct {
	Points int
	Start  int
	Base   float64
	Floor  float64
	Rate   float64
	Jitter float64
}

// Decay generates the series described by p.
func Decay(p DecayParams, src noise.Source) []Point {
	if p.Points <= 0 {
		return nil
	}
	points := make([]Point, 0, p.Points)
	for i := p.Start; i < p.Start+p.Points; i++ {
		v := p.Floor + p.Base*math.Exp(-p.Rate*float64(i)) + jitter(p.Jitter, src)
		points = append(points, Point{Index: i, Value: v})
	}
	return points
}

func jitter(width float64, src noise.Source) float64 {
	if width == 0 || src == nil {
		return 0
	}
	return width * src.Float64()
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Values extracts the values of points.
func Values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// MonthNames are the labels used for monthly series.
var MonthNames = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
