package inventory

import (
	"reflect"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func expirySnap(at time.Time, items map[string]*time.Time) *Snapshot {
	obs := make([]Observation, 0, len(items))
	for name, exp := range items {
		obs = append(obs, Observation{
			ProductKey:  NormalizeKey(name),
			DisplayName: name,
			Quantity:    qty(1),
			ExpiryDate:  exp,
			ObservedAt:  at,
		})
	}
	s := NewSnapshot(at, obs)
	return &s
}

func TestScanExpiryInclusiveBoundary(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 30, 0, 0, time.UTC)
	curr := expirySnap(now, map[string]*time.Time{
		"at-threshold":   date(2026, time.March, 31), // exactly 30 days
		"past-threshold": date(2026, time.April, 1),  // 31 days
		"today":          date(2026, time.March, 1),  // 0 days
		"yesterday":      date(2026, time.February, 28),
		"no-expiry":      nil,
	})

	alerts := ScanExpiry(curr, 30, now)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d: %+v", len(alerts), alerts)
	}
	if alerts[0].ProductKey != "today" || alerts[0].DaysRemaining != 0 {
		t.Fatalf("unexpected first alert: %+v", alerts[0])
	}
	if alerts[1].ProductKey != "at-threshold" || alerts[1].DaysRemaining != 30 {
		t.Fatalf("expected item at exactly 30 days to be included: %+v", alerts[1])
	}
}

func TestScanExpirySeverity(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	curr := expirySnap(now, map[string]*time.Time{
		"critical-edge": date(2026, time.March, 8),  // 7 days
		"warning-edge":  date(2026, time.March, 9),  // 8 days
		"far":           date(2026, time.March, 20), // 19 days
	})

	alerts := ScanExpiry(curr, 30, now)
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}
	bySev := map[string]Severity{}
	for _, a := range alerts {
		bySev[a.ProductKey] = a.Severity
	}
	if bySev["critical-edge"] != SeverityCritical {
		t.Fatalf("7 days remaining must be critical")
	}
	if bySev["warning-edge"] != SeverityWarning || bySev["far"] != SeverityWarning {
		t.Fatalf("8+ days remaining must be warning: %+v", bySev)
	}
}

func TestScanExpiryIdempotent(t *testing.T) {
	now := time.Date(2026, time.June, 15, 9, 0, 0, 0, time.UTC)
	curr := expirySnap(now, map[string]*time.Time{
		"b": date(2026, time.June, 20),
		"a": date(2026, time.June, 20),
		"c": date(2026, time.June, 16),
	})

	first := ScanExpiry(curr, 30, now)
	second := ScanExpiry(curr, 30, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("scan must be idempotent:\n%+v\n%+v", first, second)
	}
	// Ascending days remaining, ties by product key.
	var got []string
	for _, a := range first {
		got = append(got, a.ProductKey)
	}
	want := []string{"c", "a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

func TestScanExpiryTimeOfDayIrrelevant(t *testing.T) {
	curr := expirySnap(time.Time{}, map[string]*time.Time{
		"a": date(2026, time.March, 2),
	})
	morning := time.Date(2026, time.March, 1, 0, 5, 0, 0, time.UTC)
	evening := time.Date(2026, time.March, 1, 23, 55, 0, 0, time.UTC)

	am := ScanExpiry(curr, 30, morning)
	pm := ScanExpiry(curr, 30, evening)
	if len(am) != 1 || len(pm) != 1 {
		t.Fatalf("expected one alert at both times of day")
	}
	if am[0].DaysRemaining != 1 || pm[0].DaysRemaining != 1 {
		t.Fatalf("days remaining must be whole calendar days: am=%d pm=%d", am[0].DaysRemaining, pm[0].DaysRemaining)
	}
}

func TestScanExpiryDisabledThreshold(t *testing.T) {
	now := time.Now()
	curr := expirySnap(now, map[string]*time.Time{"a": date(2026, time.March, 2)})
	if alerts := ScanExpiry(curr, -1, now); alerts != nil {
		t.Fatalf("negative threshold must scan nothing, got %+v", alerts)
	}
	if alerts := ScanExpiry(nil, 30, now); alerts != nil {
		t.Fatalf("nil snapshot must scan nothing, got %+v", alerts)
	}
}
