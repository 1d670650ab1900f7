package notify

import (
	"fmt"
	"strings"

	"stockwatch/internal/inventory"
)

// renderChangeDigest groups one cycle's change events into a single message,
// one line per product.
func renderChangeDigest(events []inventory.ChangeEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 Inventory changes detected (%d)\n", len(events))
	for _, ev := range events {
		b.WriteString("• ")
		b.WriteString(displayName(ev))
		b.WriteString(" — ")
		switch ev.Kind {
		case inventory.ShipmentOut:
			fmt.Fprintf(&b, "shipment out: %d", ev.Magnitude())
			if ev.PreviousQuantity != nil && ev.CurrentQuantity != nil {
				fmt.Fprintf(&b, " (%d → %d)", *ev.PreviousQuantity, *ev.CurrentQuantity)
			}
		case inventory.Restock:
			fmt.Fprintf(&b, "restock: +%d", ev.Magnitude())
			if ev.PreviousQuantity != nil && ev.CurrentQuantity != nil {
				fmt.Fprintf(&b, " (%d → %d)", *ev.PreviousQuantity, *ev.CurrentQuantity)
			}
		case inventory.NewProduct:
			b.WriteString("new product")
			if ev.CurrentQuantity != nil {
				fmt.Fprintf(&b, ": %d in stock", *ev.CurrentQuantity)
			}
		case inventory.RemovedProduct:
			// The cause is ambiguous and stays that way; never report a
			// removal as a plain shipment.
			b.WriteString("removed (shipped out or delisted)")
			if ev.PreviousQuantity != nil {
				fmt.Fprintf(&b, ", last seen %d", *ev.PreviousQuantity)
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderExpiryDigest lists near-expiry items, already sorted ascending by
// days remaining by the scanner.
func renderExpiryDigest(alerts []inventory.ExpiryAlert, thresholdDays int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ %d product(s) expire within %d days\n", len(alerts), thresholdDays)
	for _, a := range alerts {
		name := a.DisplayName
		if name == "" {
			name = a.ProductKey
		}
		fmt.Fprintf(&b, "• %s — %s (%d day(s) left)", name, a.ExpiryDate.Format("2006-01-02"), a.DaysRemaining)
		if a.Quantity != nil {
			fmt.Fprintf(&b, ", %d in stock", *a.Quantity)
		}
		if a.Severity == inventory.SeverityCritical {
			b.WriteString(" [CRITICAL]")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func displayName(ev inventory.ChangeEvent) string {
	if ev.DisplayName != "" {
		return ev.DisplayName
	}
	return ev.ProductKey
}
