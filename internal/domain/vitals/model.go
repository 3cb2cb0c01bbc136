package vitals

import (
	"math"
	"strings"
	"time"
)

// Plausibility floors applied to patient self-reported readings.
const (
	MinSystolic  = 60
	MinDiastolic = 40
	MinGlycemia  = 0.5
)

// maxDecimal is the largest value a NUMERIC(5,2) column holds.
const maxDecimal = 999.99

// DefaultChartWindow is the number of readings plotted on dashboards.
const DefaultChartWindow = 15

// Reading is an immutable vitals measurement. RecordedAt is always assigned
// by the server.
type Reading struct {
	ID         int64     `json:"id"`
	PatientID  int64     `json:"patient_id"`
	RecordedAt time.Time `json:"date_releve"`
	Systolic   *int      `json:"tension_systolique"`
	Diastolic  *int      `json:"tension_diastolique"`
	Glycemia   *float64  `json:"glycemie"`
	Weight     *float64  `json:"poids"`
	Note       string    `json:"notes_patient"`
}

// Input carries the caller-supplied measurement fields. There is no
// timestamp field: a client-sent date_releve is dropped when binding.
type Input struct {
	Systolic  *int     `json:"tension_systolique"`
	Diastolic *int     `json:"tension_diastolique"`
	Glycemia  *float64 `json:"glycemie"`
	Weight    *float64 `json:"poids"`
	Note      *string  `json:"notes_patient"`
}

// HasMeasurement reports whether any numeric field is present.
func (in Input) HasMeasurement() bool {
	return in.Systolic != nil || in.Diastolic != nil || in.Glycemia != nil || in.Weight != nil
}

// Empty reports whether the input carries neither a measurement nor a note.
func (in Input) Empty() bool {
	return !in.HasMeasurement() && (in.Note == nil || strings.TrimSpace(*in.Note) == "")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// TrendSeries is a chronological chart series. Missing values are null so
// charting clients skip the point.
type TrendSeries struct {
	Labels     []string    `json:"labels"`
	Timestamps []time.Time `json:"timestamps"`
	Systolic   []*int      `json:"tension_systolique"`
	Diastolic  []*int      `json:"tension_diastolique"`
	Glycemia   []*float64  `json:"glycemie"`
	Weight     []*float64  `json:"poids"`
}

// BuildTrend turns a most-recent-first page into a chronological series.
// Labels are rendered in loc.
func BuildTrend(recentFirst []*Reading, loc *time.Location) *TrendSeries {
	n := len(recentFirst)
	ts := &TrendSeries{
		Labels:     make([]string, 0, n),
		Timestamps: make([]time.Time, 0, n),
		Systolic:   make([]*int, 0, n),
		Diastolic:  make([]*int, 0, n),
		Glycemia:   make([]*float64, 0, n),
		Weight:     make([]*float64, 0, n),
	}
	for i := n - 1; i >= 0; i-- {
		r := recentFirst[i]
		ts.Labels = append(ts.Labels, r.RecordedAt.In(loc).Format("02/01 15:04"))
		ts.Timestamps = append(ts.Timestamps, r.RecordedAt)
		ts.Systolic = append(ts.Systolic, r.Systolic)
		ts.Diastolic = append(ts.Diastolic, r.Diastolic)
		ts.Glycemia = append(ts.Glycemia, r.Glycemia)
		ts.Weight = append(ts.Weight, r.Weight)
	}
	return ts
}
