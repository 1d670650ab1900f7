package inventory

import (
	"sort"
	"strings"
	"time"
)

// Observation is one product's reading within a snapshot.
//
// Quantity is a pointer on purpose: nil means "could not be read this cycle",
// which is not the same thing as zero stock. ExpiryDate is nil when the source
// does not print one for the product.
type Observation struct {
	ProductKey  string     `json:"product_key"`
	DisplayName string     `json:"display_name"`
	Quantity    *int       `json:"quantity,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	ObservedAt  time.Time  `json:"observed_at"`
}

// HasQuantity reports whether the quantity was readable this cycle.
func (o Observation) HasQuantity() bool { return o.Quantity != nil }

// Snapshot is one immutable, timestamped set of observations from a single poll.
//
// ID is assigned by the history store on append (0 = not yet persisted).
// The observations map must be treated as read-only; NewSnapshot copies its
// input so callers cannot mutate a snapshot after handing it over.
type Snapshot struct {
	ID           int64                  `json:"snapshot_id"`
	CapturedAt   time.Time              `json:"captured_at"`
	Observations map[string]Observation `json:"observations"`
}

// NewSnapshot builds an unpersisted snapshot from a list of observations.
// Later observations win on duplicate product keys.
func NewSnapshot(capturedAt time.Time, obs []Observation) Snapshot {
	m := make(map[string]Observation, len(obs))
	for _, o := range obs {
		if o.ProductKey == "" {
			continue
		}
		m[o.ProductKey] = o
	}
	return Snapshot{CapturedAt: capturedAt, Observations: m}
}

// Keys returns the product keys in ascending order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Observations))
	for k := range s.Observations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ChangeKind classifies an inter-poll delta.
type ChangeKind string

const (
	// ShipmentOut: quantity decreased between two consecutive snapshots.
	ShipmentOut ChangeKind = "shipment_out"
	// Restock: quantity increased between two consecutive snapshots.
	Restock ChangeKind = "restock"
	// NewProduct: key present now, absent before.
	NewProduct ChangeKind = "new_product"
	// RemovedProduct: key absent now, present before. Whether the stock was
	// fully shipped or the product delisted is genuinely ambiguous; this kind
	// deliberately does not guess.
	RemovedProduct ChangeKind = "removed_product"
)

// ChangeEvent is a derived, ephemeral classification of one product's change.
// Events are produced fresh each cycle and never persisted by this engine.
type ChangeEvent struct {
	ProductKey       string     `json:"product_key"`
	DisplayName      string     `json:"display_name"`
	Kind             ChangeKind `json:"kind"`
	PreviousQuantity *int       `json:"previous_quantity,omitempty"`
	CurrentQuantity  *int       `json:"current_quantity,omitempty"`
	Delta            int        `json:"delta"`
	DetectedAt       time.Time  `json:"detected_at"`
}

// Magnitude returns the absolute quantity change.
func (e ChangeEvent) Magnitude() int {
	if e.Delta < 0 {
		return -e.Delta
	}
	return e.Delta
}

// Severity grades how close an item is to expiry.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ExpiryAlert flags one observation as nearing expiry.
type ExpiryAlert struct {
	ProductKey    string    `json:"product_key"`
	DisplayName   string    `json:"display_name"`
	Quantity      *int      `json:"quantity,omitempty"`
	ExpiryDate    time.Time `json:"expiry_date"`
	DaysRemaining int       `json:"days_remaining"`
	Severity      Severity  `json:"severity"`
}

// NormalizeKey derives the stable product identity from a display name.
// Display names may be re-styled by the source without creating a new logical
// product, so identity is the lowercased, whitespace-collapsed form.
func NormalizeKey(displayName string) string {
	return strings.Join(strings.Fields(strings.ToLower(displayName)), " ")
}
