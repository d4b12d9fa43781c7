package cluster

// minuteRing is a fixed 5-slot ring of per-minute mention counts, indexed
// by absolute minute mod 5. Slots older than five minutes are lazily reset
// when their index comes around again or when velocity is read.
type minuteRing struct {
	counts  [5]int
	minutes [5]int64
}

// bump increments the bucket for the given absolute minute and returns the
// bucket's new count.
func (r *minuteRing) bump(minute int64) int {
	i := slot(minute)
	if r.minutes[i] != minute {
		r.minutes[i] = minute
		r.counts[i] = 0
	}
	r.counts[i]++
	return r.counts[i]
}

// velocity is the average of the last five minute buckets ending at the
// given minute, counting empty buckets as zero.
func (r *minuteRing) velocity(minute int64) float64 {
	sum := 0
	for i := 0; i < 5; i++ {
		if r.minutes[i] > minute-5 && r.minutes[i] <= minute {
			sum += r.counts[i]
		}
	}
	return float64(sum) / 5
}

func slot(minute int64) int {
	return int(((minute % 5) + 5) % 5)
}
