package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"stockwatch/internal/inventory"
	"stockwatch/pkg/logx"
)

// Config configures the HTTP inventory collector.
//
// If LoginURL is set, a form login runs before each fetch; the session cookie
// lives in the client's jar for the duration of the cycle.
type Config struct {
	URL      string
	LoginURL string
	Username string
	Password string
	Timeout  time.Duration
}

// HTTPCollector fetches the inventory listing as JSON rows from a warehouse
// portal endpoint.
type HTTPCollector struct {
	cfg    Config
	log    logx.Logger
	client *http.Client
}

func NewHTTP(cfg Config, log logx.Logger) (*HTTPCollector, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("collector url is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPCollector{
		cfg: cfg,
		log: log,
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}, nil
}

// Collect logs in (when configured), fetches the inventory listing, and
// converts it into a snapshot. Unreadable quantity/expiry fields degrade to
// absent on a per-product basis; an unreadable page fails the whole call.
func (c *HTTPCollector) Collect(ctx context.Context) (inventory.Snapshot, error) {
	if c.cfg.LoginURL != "" {
		if err := c.login(ctx); err != nil {
			return inventory.Snapshot{}, &CollectionError{Stage: "login", Err: err}
		}
	}

	rows, err := c.fetchRows(ctx)
	if err != nil {
		return inventory.Snapshot{}, err
	}
	if len(rows) == 0 {
		// An empty page is indistinguishable from a broken one; failing here
		// keeps a rendering bug from turning into a flood of removal events.
		return inventory.Snapshot{}, &CollectionError{Stage: "decode", Err: errors.New("empty inventory listing")}
	}

	now := time.Now()
	obs := make([]inventory.Observation, 0, len(rows))
	for _, r := range rows {
		o, err := parseRow(r, now)
		if err != nil {
			c.log.Warn("skipping unparseable inventory row", logx.Err(err))
			continue
		}
		obs = append(obs, o)
	}
	if len(obs) == 0 {
		return inventory.Snapshot{}, &CollectionError{Stage: "decode", Err: errors.New("no parseable inventory rows")}
	}
	return inventory.NewSnapshot(now, obs), nil
}

func (c *HTTPCollector) login(ctx context.Context) error {
	form := url.Values{
		"username": {c.cfg.Username},
		"password": {c.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("login failed: %s", resp.Status)
	}
	return nil
}

func (c *HTTPCollector) fetchRows(ctx context.Context) ([]row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, &CollectionError{Stage: "fetch", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &CollectionError{Stage: "fetch", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &CollectionError{Stage: "fetch", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var rows []row
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&rows); err != nil {
		return nil, &CollectionError{Stage: "decode", Err: err}
	}
	return rows, nil
}
