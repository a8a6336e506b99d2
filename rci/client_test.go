package rci

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSend_RequestShape(t *testing.T) {
	var gotBody []map[string]string
	var gotHeader http.Header
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rci/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotHeader = r.Header.Clone()
		if c, err := r.Cookie("sid"); err == nil {
			gotCookie = c.Value
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Write([]byte(`[{"parse":{"status":[]}}]`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "/rci/", WithCookieSource(func(context.Context) ([]*http.Cookie, error) {
		return []*http.Cookie{{Name: "sid", Value: "abc"}}, nil
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Send(context.Background(), "interface Dsl0 down"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(gotBody) != 1 || gotBody[0]["parse"] != "interface Dsl0 down" {
		t.Errorf("body: got %v", gotBody)
	}
	if got := gotHeader.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type: got %q", got)
	}
	if got := gotHeader.Get("Accept"); got != "application/json, text/plain, */*" {
		t.Errorf("Accept: got %q", got)
	}
	if got := gotHeader.Get("Referer"); got != srv.URL+"/webcli/parse" {
		t.Errorf("Referer: got %q", got)
	}
	if gotCookie != "abc" {
		t.Errorf("cookie: got %q, want abc", gotCookie)
	}
}

func TestReadLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"parse":{"message":["Uptime: 1d 00:00:01","CRC errors fast: 3 0"]}}]`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "")
	lines, err := c.ReadLines(context.Background(), "more proc:/driver/ensoc_dsl/dsl_stats")
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(lines) != 2 || lines[1] != "CRC errors fast: 3 0" {
		t.Errorf("lines: got %q", lines)
	}
}

func TestSend_RedirectIsSessionExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "")
	_, err := c.Send(context.Background(), "show version")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Location != "/login" {
		t.Errorf("TransportError: got %+v", te)
	}
}

func TestSend_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "")
	_, err := c.Send(context.Background(), "show version")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Status != http.StatusUnauthorized {
		t.Errorf("status: got %d", te.Status)
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Error("401 must not match ErrSessionExpired")
	}
}

func TestSend_NotJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>login</html>"))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "")
	_, err := c.Send(context.Background(), "show version")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestSend_CookieSourceError(t *testing.T) {
	c, _ := New("http://192.0.2.1", "", WithCookieSource(func(context.Context) ([]*http.Cookie, error) {
		return nil, errors.New("tab closed")
	}))
	_, err := c.Send(context.Background(), "show version")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestMessages(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"valid", `[{"parse":{"message":["a","b"]}}]`, true},
		{"empty message", `[{"parse":{"message":[]}}]`, true},
		{"empty array", `[]`, false},
		{"no parse", `[{}]`, false},
		{"no message", `[{"parse":{"status":[]}}]`, false},
		{"object", `{"parse":{}}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Messages(json.RawMessage(tc.raw))
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok {
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Errorf("expected ParseError, got %v", err)
				}
			}
		})
	}
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New("192.168.1.1", ""); err == nil {
		t.Error("expected error for url without scheme")
	}
}
