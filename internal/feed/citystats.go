package feed

import "github.com/arquivodaviolencia/incident-pipeline/internal/models"

// UpdateCityStats applies spec §4.4 step 4's bookkeeping rule in-place:
// record the result count; if it meets the sharding threshold, increment
// hit-limit-count; if the threshold is hit twice, set needs-sharding. The
// needs-sharding flag becomes true on the *second* poll whose result count
// meets the threshold, not the first (spec §8 boundary behavior).
func UpdateCityStats(stats *models.CityStats, resultCount int, threshold int) {
	stats.LastResultCount = resultCount
	if resultCount >= threshold {
		stats.HitLimitCount++
		if stats.HitLimitCount >= 2 {
			stats.NeedsSharding = true
		}
	}
}
