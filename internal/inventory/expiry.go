package inventory

import (
	"sort"
	"time"
)

// criticalDays is the cutoff at or below which an alert escalates to critical.
const criticalDays = 7

// ScanExpiry flags every observation whose expiry date falls within
// [0, thresholdDays] whole days of now (both boundaries inclusive).
//
// It is a pure function of (curr, thresholdDays, now): no internal state, no
// suppression of repeats. Repeat-suppression across cycles belongs to the
// notification dispatcher. Alerts are sorted ascending by days remaining,
// ties broken by product key.
func ScanExpiry(curr *Snapshot, thresholdDays int, now time.Time) []ExpiryAlert {
	if curr == nil || thresholdDays < 0 {
		return nil
	}

	var alerts []ExpiryAlert
	for key, obs := range curr.Observations {
		if obs.ExpiryDate == nil {
			continue
		}
		days := daysUntil(now, *obs.ExpiryDate)
		if days < 0 || days > thresholdDays {
			continue
		}
		sev := SeverityWarning
		if days <= criticalDays {
			sev = SeverityCritical
		}
		alerts = append(alerts, ExpiryAlert{
			ProductKey:    key,
			DisplayName:   obs.DisplayName,
			Quantity:      copyQty(obs.Quantity),
			ExpiryDate:    *obs.ExpiryDate,
			DaysRemaining: days,
			Severity:      sev,
		})
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].DaysRemaining != alerts[j].DaysRemaining {
			return alerts[i].DaysRemaining < alerts[j].DaysRemaining
		}
		return alerts[i].ProductKey < alerts[j].ProductKey
	})
	return alerts
}

// daysUntil counts whole calendar days from now to target, in now's location.
// Comparing at date granularity keeps the result stable across the day
// regardless of the poll's time-of-day.
func daysUntil(now, target time.Time) int {
	ny, nm, nd := now.Date()
	ty, tm, td := target.In(now.Location()).Date()
	from := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	to := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from) / (24 * time.Hour))
}
