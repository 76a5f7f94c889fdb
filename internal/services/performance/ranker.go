package performance

import (
	"math"
	"sort"

	"github.com/bobmcallan/screener/internal/models"
)

// OutlierBounds is the inclusive range of returns kept for ranking.
type OutlierBounds struct {
	Min float64
	Max float64
}

// DefaultOutlierBounds keeps returns between -90% and +900%.
func DefaultOutlierBounds() OutlierBounds {
	return OutlierBounds{Min: -90, Max: 900}
}

// Contains reports whether pct lies inside the bounds, inclusive.
func (b OutlierBounds) Contains(pct float64) bool {
	return pct >= b.Min && pct <= b.Max
}

// ComputePerformance returns the percentage change from the first to the last
// close. ok is false when the series has fewer than two points.
func ComputePerformance(series models.PriceSeries) (float64, bool) {
	if series.Len() < 2 {
		return 0, false
	}
	first := series.Points[0].Close
	last := series.Points[len(series.Points)-1].Close
	if first <= 0 {
		return 0, false
	}
	pct := (last - first) / first * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0, false
	}
	return pct, true
}

// ComputeRecords computes one record per usable series, in input order.
// Series outside bounds are dropped. Names default to the symbol.
func ComputeRecords(series []models.PriceSeries, names map[string]string, bounds OutlierBounds) []models.PerformanceRecord {
	records := make([]models.PerformanceRecord, 0, len(series))
	for _, s := range series {
		pct, ok := ComputePerformance(s)
		if !ok || !bounds.Contains(pct) {
			continue
		}
		name := names[s.Symbol]
		if name == "" {
			name = s.Symbol
		}
		records = append(records, models.PerformanceRecord{
			Symbol:         s.Symbol,
			DisplayName:    name,
			PerformancePct: pct,
		})
	}
	return records
}

// Rank returns the topN best records, best first, and the topN worst, worst
// first. Ties keep input order. The input is not modified.
func Rank(records []models.PerformanceRecord, topN int) (top, bottom []models.PerformanceRecord) {
	if topN <= 0 || len(records) == 0 {
		return []models.PerformanceRecord{}, []models.PerformanceRecord{}
	}

	sorted := make([]models.PerformanceRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PerformancePct > sorted[j].PerformancePct
	})

	n := topN
	if n > len(sorted) {
		n = len(sorted)
	}

	top = make([]models.PerformanceRecord, n)
	copy(top, sorted[:n])

	bottom = make([]models.PerformanceRecord, n)
	copy(bottom, sorted[len(sorted)-n:])
	sort.SliceStable(bottom, func(i, j int) bool {
		return bottom[i].PerformancePct < bottom[j].PerformancePct
	})

	return top, bottom
}

// CumulativeReturns converts a series to percentage change from its first close.
func CumulativeReturns(series models.PriceSeries) []float64 {
	if series.IsEmpty() {
		return nil
	}
	base := series.Points[0].Close
	out := make([]float64, len(series.Points))
	for i, p := range series.Points {
		out[i] = round2((p.Close/base - 1) * 100)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
