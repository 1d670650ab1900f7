package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"stockwatch/internal/inventory"
	"stockwatch/pkg/logx"
)

const (
	defaultSnapshotSheet = "InventoryHistory"
	defaultChangesSheet  = "InventoryChanges"
)

var snapshotHeader = []interface{}{"Snapshot", "Captured At", "Product", "Quantity", "Expiry", "Observed At"}
var changesHeader = []interface{}{"Detected At", "Product", "Kind", "Previous Qty", "Current Qty", "Delta"}

// SheetsConfig configures the Google Sheets sink.
type SheetsConfig struct {
	SpreadsheetID   string
	CredentialsFile string
	SnapshotSheet   string
	ChangesSheet    string
}

// SheetsSink appends snapshot and change rows to two sheets of one
// spreadsheet, bootstrapping header rows on first use.
type SheetsSink struct {
	cfg SheetsConfig
	log logx.Logger
	svc *sheets.Service

	headerChecked map[string]bool
}

func NewSheets(ctx context.Context, cfg SheetsConfig, log logx.Logger) (*SheetsSink, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("sheets spreadsheet id is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.SnapshotSheet == "" {
		cfg.SnapshotSheet = defaultSnapshotSheet
	}
	if cfg.ChangesSheet == "" {
		cfg.ChangesSheet = defaultChangesSheet
	}

	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &SheetsSink{cfg: cfg, log: log, svc: svc, headerChecked: map[string]bool{}}, nil
}

func (s *SheetsSink) MirrorSnapshot(ctx context.Context, snap inventory.Snapshot) error {
	rows := make([][]interface{}, 0, len(snap.Observations))
	for _, key := range snap.Keys() {
		obs := snap.Observations[key]
		rows = append(rows, []interface{}{
			snap.ID,
			snap.CapturedAt.Format("2006-01-02 15:04:05"),
			obs.DisplayName,
			cellQty(obs.Quantity),
			cellExpiry(obs),
			obs.ObservedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return s.appendRows(ctx, s.cfg.SnapshotSheet, snapshotHeader, rows)
}

func (s *SheetsSink) MirrorChanges(ctx context.Context, events []inventory.ChangeEvent) error {
	rows := make([][]interface{}, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []interface{}{
			ev.DetectedAt.Format("2006-01-02 15:04:05"),
			ev.DisplayName,
			string(ev.Kind),
			cellQty(ev.PreviousQuantity),
			cellQty(ev.CurrentQuantity),
			ev.Delta,
		})
	}
	return s.appendRows(ctx, s.cfg.ChangesSheet, changesHeader, rows)
}

func (s *SheetsSink) appendRows(ctx context.Context, sheet string, header []interface{}, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.ensureHeader(ctx, sheet, header); err != nil {
		return err
	}
	_, err := s.svc.Spreadsheets.Values.
		Append(s.cfg.SpreadsheetID, sheet, &sheets.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", sheet, err)
	}
	return nil
}

// ensureHeader writes the header row once per sheet per process lifetime.
func (s *SheetsSink) ensureHeader(ctx context.Context, sheet string, header []interface{}) error {
	if s.headerChecked[sheet] {
		return nil
	}
	resp, err := s.svc.Spreadsheets.Values.
		Get(s.cfg.SpreadsheetID, sheet+"!1:1").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", sheet, err)
	}
	if len(resp.Values) == 0 {
		_, err = s.svc.Spreadsheets.Values.
			Update(s.cfg.SpreadsheetID, sheet+"!1:1", &sheets.ValueRange{Values: [][]interface{}{header}}).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("write header of %s: %w", sheet, err)
		}
	}
	s.headerChecked[sheet] = true
	return nil
}

func cellQty(q *int) interface{} {
	if q == nil {
		return "n/a"
	}
	return *q
}

func cellExpiry(obs inventory.Observation) string {
	if obs.ExpiryDate == nil {
		return ""
	}
	return obs.ExpiryDate.Format("2006-01-02")
}
