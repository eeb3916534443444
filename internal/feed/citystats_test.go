package feed

import (
	"testing"

	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

func TestUpdateCityStats_NeedsShardingOnSecondHit(t *testing.T) {
	stats := &models.CityStats{}

	UpdateCityStats(stats, 100, 100)
	if stats.NeedsSharding {
		t.Fatal("expected needs_sharding still false after first threshold hit")
	}
	if stats.HitLimitCount != 1 {
		t.Fatalf("expected hit_limit_count 1, got %d", stats.HitLimitCount)
	}

	UpdateCityStats(stats, 120, 100)
	if !stats.NeedsSharding {
		t.Fatal("expected needs_sharding true after second threshold hit")
	}
	if stats.HitLimitCount != 2 {
		t.Fatalf("expected hit_limit_count 2, got %d", stats.HitLimitCount)
	}
}

func TestUpdateCityStats_BelowThresholdNeverShards(t *testing.T) {
	stats := &models.CityStats{}
	for i := 0; i < 5; i++ {
		UpdateCityStats(stats, 10, 100)
	}
	if stats.NeedsSharding || stats.HitLimitCount != 0 {
		t.Fatalf("expected no sharding below threshold, got hit_limit_count=%d needs_sharding=%v", stats.HitLimitCount, stats.NeedsSharding)
	}
	if stats.LastResultCount != 10 {
		t.Errorf("expected last_result_count 10, got %d", stats.LastResultCount)
	}
}
