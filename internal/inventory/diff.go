package inventory

import (
	"sort"
	"time"
)

// Compare classifies the deltas between two consecutive snapshots.
//
// Rules:
//   - prev == nil means this is the first poll ever: the cycle only
//     establishes a baseline and no events are emitted.
//   - A key present in both snapshots yields ShipmentOut/Restock only when
//     both quantities were readable; an unreadable quantity on either side
//     suppresses the comparison for that key this cycle, so a failed read
//     never masquerades as a shipment.
//   - Equal quantities emit nothing.
//   - Keys appearing or disappearing yield NewProduct/RemovedProduct based on
//     presence alone, regardless of quantity readability.
//
// The result is sorted by product key so identical inputs always produce
// identical output.
func Compare(prev *Snapshot, curr *Snapshot, detectedAt time.Time) []ChangeEvent {
	if prev == nil || curr == nil {
		return nil
	}

	var events []ChangeEvent

	for key, cur := range curr.Observations {
		old, existed := prev.Observations[key]
		if !existed {
			ev := ChangeEvent{
				ProductKey:      key,
				DisplayName:     cur.DisplayName,
				Kind:            NewProduct,
				CurrentQuantity: copyQty(cur.Quantity),
				DetectedAt:      detectedAt,
			}
			if cur.HasQuantity() {
				ev.Delta = *cur.Quantity
			}
			events = append(events, ev)
			continue
		}

		if !old.HasQuantity() || !cur.HasQuantity() {
			continue
		}
		delta := *cur.Quantity - *old.Quantity
		if delta == 0 {
			continue
		}
		kind := Restock
		if delta < 0 {
			kind = ShipmentOut
		}
		events = append(events, ChangeEvent{
			ProductKey:       key,
			DisplayName:      cur.DisplayName,
			Kind:             kind,
			PreviousQuantity: copyQty(old.Quantity),
			CurrentQuantity:  copyQty(cur.Quantity),
			Delta:            delta,
			DetectedAt:       detectedAt,
		})
	}

	for key, old := range prev.Observations {
		if _, exists := curr.Observations[key]; exists {
			continue
		}
		ev := ChangeEvent{
			ProductKey:       key,
			DisplayName:      old.DisplayName,
			Kind:             RemovedProduct,
			PreviousQuantity: copyQty(old.Quantity),
			DetectedAt:       detectedAt,
		}
		if old.HasQuantity() {
			ev.Delta = -*old.Quantity
		}
		events = append(events, ev)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].ProductKey < events[j].ProductKey
	})
	return events
}

// copyQty detaches the pointer so events never alias snapshot data.
func copyQty(q *int) *int {
	if q == nil {
		return nil
	}
	v := *q
	return &v
}
