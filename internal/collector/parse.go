package collector

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"stockwatch/internal/inventory"
)

// row mirrors one product entry of the portal's inventory listing. Quantity is
// kept raw because the portal emits both numbers and strings depending on the
// column renderer.
type row struct {
	Product  string          `json:"product"`
	Quantity json.RawMessage `json:"quantity"`
	Expiry   string          `json:"expiry_date"`
}

var expiryLayouts = []string{"2006-01-02", "2006/01/02"}

// parseRow converts a source row into an observation. A missing product name
// fails the row; unreadable quantity or expiry degrade to absent fields so a
// single bad column never drops an entire cycle's worth of valid data.
func parseRow(r row, observedAt time.Time) (inventory.Observation, error) {
	name := strings.TrimSpace(r.Product)
	if name == "" {
		return inventory.Observation{}, errors.New("row has no product name")
	}

	return inventory.Observation{
		ProductKey:  inventory.NormalizeKey(name),
		DisplayName: name,
		Quantity:    parseQuantity(r.Quantity),
		ExpiryDate:  parseExpiry(r.Expiry),
		ObservedAt:  observedAt,
	}, nil
}

// parseQuantity accepts a JSON number or numeric string. Anything else,
// including negatives, reads as absent ("could not be read this cycle").
func parseQuantity(raw json.RawMessage) *int {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func parseExpiry(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
