package fluctuation

import (
	"sort"

	"github.com/bobmcallan/screener/internal/models"
)

// FindEvents scans a series for decline-then-rebound episodes.
//
// A point is a trough candidate when its close is at least DeclineRate percent
// below the close DeclinePeriod trading days earlier. The rebound window covers
// the points strictly after the trough and up to ReboundPeriod calendar days
// later; its highest close (first occurrence on ties) is the rebound. An event
// is emitted when the rebound is at least ReboundRate percent above the trough.
// Consecutive candidates may produce overlapping events.
func FindEvents(symbol, name string, series models.PriceSeries, params models.FluctuationParams) []models.FluctuationEvent {
	points := series.Points
	if params.DeclinePeriod < 1 || len(points) <= params.DeclinePeriod {
		return nil
	}

	var events []models.FluctuationEvent
	for i := params.DeclinePeriod; i < len(points); i++ {
		trough := points[i]
		base := points[i-params.DeclinePeriod].Close
		if base <= 0 || trough.Close <= 0 {
			continue
		}

		decline := (trough.Close/base - 1) * 100
		if decline > params.DeclineRate {
			continue
		}

		windowEnd := trough.Date.AddDate(0, 0, params.ReboundPeriod)
		best := -1
		for j := i + 1; j < len(points) && !points[j].Date.After(windowEnd); j++ {
			if best < 0 || points[j].Close > points[best].Close {
				best = j
			}
		}
		if best < 0 || points[best].Close <= trough.Close {
			continue
		}

		rebound := (points[best].Close/trough.Close - 1) * 100
		if rebound < params.ReboundRate {
			continue
		}

		events = append(events, models.FluctuationEvent{
			Symbol:                symbol,
			DisplayName:           name,
			TroughDate:            trough.Date,
			TroughPrice:           trough.Close,
			ReboundDate:           points[best].Date,
			ReboundPrice:          points[best].Close,
			ReboundPerformancePct: rebound,
		})
	}

	return events
}

// Aggregate groups events by symbol in order of first appearance. Each
// summary lists its events most recent trough first; summaries are ordered
// by occurrence count, descending, with ties keeping first-appearance order.
func Aggregate(events []models.FluctuationEvent) []models.FluctuationSummary {
	if len(events) == 0 {
		return []models.FluctuationSummary{}
	}

	index := make(map[string]int)
	var groups [][]models.FluctuationEvent
	for _, e := range events {
		i, ok := index[e.Symbol]
		if !ok {
			i = len(groups)
			index[e.Symbol] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}

	summaries := make([]models.FluctuationSummary, 0, len(groups))
	for _, group := range groups {
		sort.SliceStable(group, func(a, b int) bool {
			return group[a].TroughDate.After(group[b].TroughDate)
		})
		latest := group[0]
		summaries = append(summaries, models.FluctuationSummary{
			Symbol:                          latest.Symbol,
			DisplayName:                     latest.DisplayName,
			OccurrenceCount:                 len(group),
			MostRecentTroughDate:            latest.TroughDate.Format(models.DateLayout),
			MostRecentTroughPrice:           latest.TroughPrice,
			MostRecentReboundDate:           latest.ReboundDate.Format(models.DateLayout),
			MostRecentReboundPerformancePct: latest.ReboundPerformancePct,
			Events:                          group,
		})
	}

	sort.SliceStable(summaries, func(a, b int) bool {
		return summaries[a].OccurrenceCount > summaries[b].OccurrenceCount
	})

	return summaries
}
