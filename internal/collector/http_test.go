package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockwatch/pkg/logx"
)

func TestParseQuantity(t *testing.T) {
	cases := []struct {
		raw  string
		want *int
	}{
		{`12`, intp(12)},
		{`"34"`, intp(34)},
		{`" 5 "`, intp(5)},
		{`0`, intp(0)},
		{`-3`, nil},
		{`"n/a"`, nil},
		{`null`, nil},
		{``, nil},
	}
	for _, c := range cases {
		got := parseQuantity(json.RawMessage(c.raw))
		if (got == nil) != (c.want == nil) {
			t.Fatalf("parseQuantity(%s): got %v, want %v", c.raw, got, c.want)
		}
		if got != nil && *got != *c.want {
			t.Fatalf("parseQuantity(%s) = %d, want %d", c.raw, *got, *c.want)
		}
	}
}

func TestParseExpiryLayouts(t *testing.T) {
	if got := parseExpiry("2026-03-01"); got == nil || got.Month() != time.March {
		t.Fatalf("dash layout not parsed: %v", got)
	}
	if got := parseExpiry("2026/03/01"); got == nil || got.Day() != 1 {
		t.Fatalf("slash layout not parsed: %v", got)
	}
	if got := parseExpiry("soon"); got != nil {
		t.Fatalf("garbage expiry must read as absent, got %v", got)
	}
}

func TestCollectIsolatesBadFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"product":"Milk 1L","quantity":20,"expiry_date":"2026-03-01"},
			{"product":"Rice","quantity":"unreadable","expiry_date":""},
			{"product":"","quantity":5}
		]`))
	}))
	defer srv.Close()

	c, err := NewHTTP(Config{URL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	snap, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if len(snap.Observations) != 2 {
		t.Fatalf("expected 2 observations (nameless row dropped), got %d", len(snap.Observations))
	}
	milk := snap.Observations["milk 1l"]
	if milk.Quantity == nil || *milk.Quantity != 20 || milk.ExpiryDate == nil {
		t.Fatalf("milk fields wrong: %+v", milk)
	}
	rice := snap.Observations["rice"]
	if rice.Quantity != nil {
		t.Fatalf("unreadable quantity must be absent, got %d", *rice.Quantity)
	}
}

func TestCollectFailsWholePage(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"not json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		},
		"empty listing": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			c, err := NewHTTP(Config{URL: srv.URL}, logx.Nop())
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			_, err = c.Collect(context.Background())
			var ce *CollectionError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CollectionError, got %v", err)
			}
		})
	}
}

func TestCollectLoginThenFetch(t *testing.T) {
	var loggedIn bool
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.FormValue("username") != "u" {
			http.Error(w, "bad login", http.StatusUnauthorized)
			return
		}
		loggedIn = true
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok"})
	})
	mux.HandleFunc("/inventory", func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("session"); err != nil || cookie.Value != "ok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"product":"Milk","quantity":3}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewHTTP(Config{
		URL:      srv.URL + "/inventory",
		LoginURL: srv.URL + "/login",
		Username: "u",
		Password: "p",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	snap, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !loggedIn {
		t.Fatalf("login was not performed")
	}
	if len(snap.Observations) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(snap.Observations))
	}
}

func TestCollectHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := NewHTTP(Config{URL: srv.URL, Timeout: time.Minute}, logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Collect(ctx); err == nil {
		t.Fatalf("expected context deadline to fail collection")
	}
}

func intp(v int) *int { return &v }
