package indicator

// multiplier is the EMA smoothing factor 2/(period+1).
func multiplier(period int) float64 {
	return 2.0 / float64(period+1)
}

// nextEMA applies one step of the EMA recurrence.
// O(1) per bar, no window storage needed.
func nextEMA(prev, price, mult float64) float64 {
	return (price-prev)*mult + prev
}
