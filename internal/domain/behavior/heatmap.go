package behavior

// Heatmap counts events by weekday (0=Sunday) and hour of day.
type Heatmap [7][24]int

// Sum returns the total of all 168 cells.
func (h *Heatmap) Sum() int {
	total := 0
	for d := range h {
		for hr := range h[d] {
			total += h[d][hr]
		}
	}
	return total
}

// Max returns the largest cell value.
func (h *Heatmap) Max() int {
	m := 0
	for d := range h {
		for hr := range h[d] {
			m = max(m, h[d][hr])
		}
	}
	return m
}

// HourTotals sums each hour across all days.
func (h *Heatmap) HourTotals() [24]int {
	var out [24]int
	for d := range h {
		for hr := range h[d] {
			out[hr] += h[d][hr]
		}
	}
	return out
}

// DayTotals sums each weekday across all hours.
func (h *Heatmap) DayTotals() [7]int {
	var out [7]int
	for d := range h {
		for hr := range h[d] {
			out[d] += h[d][hr]
		}
	}
	return out
}

// Period is an 8-hour segment of the day.
type Period string

const (
	PeriodMorning   Period = "morning"   // 06:00–14:00
	PeriodAfternoon Period = "afternoon" // 14:00–22:00
	PeriodNight     Period = "night"     // 22:00–06:00
	PeriodNone      Period = "none"
)

// periods is the tie-break order.
var periods = []Period{PeriodMorning, PeriodAfternoon, PeriodNight}

// PeriodOf returns the segment containing an hour.
func PeriodOf(hour int) Period {
	switch {
	case hour >= 6 && hour < 14:
		return PeriodMorning
	case hour >= 14 && hour < 22:
		return PeriodAfternoon
	default:
		return PeriodNight
	}
}

// PeriodTotals sums the heatmap into the three segments.
func (h *Heatmap) PeriodTotals() map[Period]int {
	out := map[Period]int{PeriodMorning: 0, PeriodAfternoon: 0, PeriodNight: 0}
	for hr, n := range h.HourTotals() {
		out[PeriodOf(hr)] += n
	}
	return out
}

// MostActivePeriod returns the busiest segment, or PeriodNone for an empty map.
// Ties resolve to the earlier segment in morning, afternoon, night order.
func (h *Heatmap) MostActivePeriod() Period {
	totals := h.PeriodTotals()
	best, bestN := PeriodNone, 0
	for _, p := range periods {
		if totals[p] > bestN {
			best, bestN = p, totals[p]
		}
	}
	return best
}

// argmax returns the index of the largest value, lowest index on ties.
func argmax(values []int) int {
	idx := 0
	for i, v := range values {
		if v > values[idx] {
			idx = i
		}
	}
	return idx
}
