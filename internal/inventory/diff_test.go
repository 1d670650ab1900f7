package inventory

import (
	"reflect"
	"testing"
	"time"
)

func qty(v int) *int { return &v }

func snap(at time.Time, items map[string]*int) *Snapshot {
	obs := make([]Observation, 0, len(items))
	for name, q := range items {
		obs = append(obs, Observation{
			ProductKey:  NormalizeKey(name),
			DisplayName: name,
			Quantity:    q,
			ObservedAt:  at,
		})
	}
	s := NewSnapshot(at, obs)
	return &s
}

func TestCompareBaselineOnly(t *testing.T) {
	now := time.Now()
	curr := snap(now, map[string]*int{"milk": qty(20), "bread": qty(5)})
	if events := Compare(nil, curr, now); len(events) != 0 {
		t.Fatalf("expected no events on first poll, got %d", len(events))
	}
}

func TestCompareNoChange(t *testing.T) {
	now := time.Now()
	prev := snap(now.Add(-time.Hour), map[string]*int{"milk": qty(10), "rice": qty(3)})
	curr := snap(now, map[string]*int{"milk": qty(10), "rice": qty(3)})
	if events := Compare(prev, curr, now); len(events) != 0 {
		t.Fatalf("expected no events for equal quantities, got %+v", events)
	}
}

func TestCompareShipmentOut(t *testing.T) {
	now := time.Now()
	prev := snap(now.Add(-time.Hour), map[string]*int{"A": qty(10)})
	curr := snap(now, map[string]*int{"A": qty(7)})

	events := Compare(prev, curr, now)
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != ShipmentOut {
		t.Fatalf("expected shipment_out, got %s", ev.Kind)
	}
	if ev.Magnitude() != 3 || ev.Delta != -3 {
		t.Fatalf("expected magnitude 3 (delta -3), got magnitude %d delta %d", ev.Magnitude(), ev.Delta)
	}
	if *ev.PreviousQuantity != 10 || *ev.CurrentQuantity != 7 {
		t.Fatalf("unexpected quantities: %+v", ev)
	}
}

func TestCompareRestock(t *testing.T) {
	now := time.Now()
	prev := snap(now.Add(-time.Hour), map[string]*int{"A": qty(4)})
	curr := snap(now, map[string]*int{"A": qty(9)})

	events := Compare(prev, curr, now)
	if len(events) != 1 || events[0].Kind != Restock || events[0].Delta != 5 {
		t.Fatalf("expected one restock delta 5, got %+v", events)
	}
}

func TestCompareNewProduct(t *testing.T) {
	now := time.Now()
	prev := snap(now.Add(-time.Hour), map[string]*int{"A": qty(10)})
	curr := snap(now, map[string]*int{"A": qty(10), "B": qty(5)})

	events := Compare(prev, curr, now)
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != NewProduct || ev.ProductKey != "b" {
		t.Fatalf("expected new_product for b, got %+v", ev)
	}
	if ev.PreviousQuantity != nil {
		t.Fatalf("new product must have absent previous quantity")
	}
	if ev.CurrentQuantity == nil || *ev.CurrentQuantity != 5 {
		t.Fatalf("unexpected current quantity: %+v", ev)
	}
}

func TestCompareRemovedProduct(t *testing.T) {
	now := time.Now()
	prev := snap(now.Add(-time.Hour), map[string]*int{"A": qty(10), "C": qty(4)})
	curr := snap(now, map[string]*int{"A": qty(10)})

	events := Compare(prev, curr, now)
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != RemovedProduct || ev.ProductKey != "c" {
		t.Fatalf("expected removed_product for c, got %+v", ev)
	}
	if ev.CurrentQuantity != nil {
		t.Fatalf("removed product must have absent current quantity")
	}
	if ev.Magnitude() != 4 {
		t.Fatalf("expected magnitude = last known quantity 4, got %d", ev.Magnitude())
	}
}

func TestCompareUnreadableQuantitySuppressed(t *testing.T) {
	now := time.Now()
	prev := snap(now.Add(-time.Hour), map[string]*int{"A": qty(10), "B": nil})
	curr := snap(now, map[string]*int{"A": nil, "B": qty(12)})

	// Both keys are present on both sides; each has one unreadable side,
	// so neither may produce a shipment/restock signal.
	if events := Compare(prev, curr, now); len(events) != 0 {
		t.Fatalf("expected unreadable quantities to suppress events, got %+v", events)
	}
}

func TestComparePresenceChangeWithUnreadableQuantity(t *testing.T) {
	now := time.Now()
	prev := snap(now.Add(-time.Hour), map[string]*int{"A": nil})
	curr := snap(now, map[string]*int{"B": nil})

	events := Compare(prev, curr, now)
	if len(events) != 2 {
		t.Fatalf("expected 2 presence events, got %d", len(events))
	}
	// Sorted by key: "a" removed, then "b" new.
	if events[0].Kind != RemovedProduct || events[0].ProductKey != "a" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[0].PreviousQuantity != nil || events[0].Delta != 0 {
		t.Fatalf("removal of unreadable product must carry no magnitude: %+v", events[0])
	}
	if events[1].Kind != NewProduct || events[1].ProductKey != "b" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}

func TestCompareDeterministicOrder(t *testing.T) {
	now := time.Now()
	prev := snap(now.Add(-time.Hour), map[string]*int{"d": qty(1), "c": qty(5), "b": qty(9)})
	curr := snap(now, map[string]*int{"a": qty(2), "c": qty(3), "b": qty(11)})

	first := Compare(prev, curr, now)
	second := Compare(prev, curr, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("compare is not deterministic:\n%+v\n%+v", first, second)
	}
	keys := make([]string, 0, len(first))
	for _, ev := range first {
		keys = append(keys, ev.ProductKey)
	}
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("expected key order %v, got %v", want, keys)
	}
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"  Whole Milk  1L ": "whole milk 1l",
		"BREAD":             "bread",
		"a\tb\n c":          "a b c",
	}
	for in, want := range cases {
		if got := NormalizeKey(in); got != want {
			t.Fatalf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSnapshotCopiesInput(t *testing.T) {
	now := time.Now()
	obs := []Observation{{ProductKey: "a", DisplayName: "A", Quantity: qty(1), ObservedAt: now}}
	s := NewSnapshot(now, obs)

	obs[0].ProductKey = "mutated"
	if _, ok := s.Observations["a"]; !ok {
		t.Fatalf("snapshot must not alias caller's slice")
	}
}
