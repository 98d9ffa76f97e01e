package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestSemverLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"0.1.0", "0.2.0", true},
		{"0.1.0", "0.1.0", false},
		{"1.0.0", "0.9.9", false},
		{"v0.1.0", "v0.1.1", true},
		{"0.1", "0.1.1", true},
		{"garbage", "0.0.1", true},
	}
	for _, tc := range cases {
		if got := semverLess(tc.a, tc.b); got != tc.want {
			t.Errorf("semverLess(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	if got := summarize("first line\nsecond line", 200); got != "first line" {
		t.Errorf("summarize kept more than the first line: %q", got)
	}
	long := "aaaaaaaaaaaaaaaaaaaa"
	if got := summarize(long, 10); got != "aaaaaaa..." {
		t.Errorf("summarize did not cap length: %q", got)
	}
}

func TestCheckFetchesRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "Dagr/"+Version {
			t.Errorf("unexpected user agent %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tag_name":"v99.0.0","html_url":"https://example.com/rel","body":"Big release\nDetails below"}`))
	}))
	defer srv.Close()

	c := NewChecker(zerolog.Nop())
	c.endpoint = srv.URL
	c.check(context.Background())

	info := c.Info()
	if info.LatestVersion != "99.0.0" {
		t.Fatalf("latest = %q, want 99.0.0", info.LatestVersion)
	}
	if !info.UpdateAvailable {
		t.Fatal("expected update to be available")
	}
	if info.ReleaseNotes != "Big release" {
		t.Errorf("notes = %q", info.ReleaseNotes)
	}
	if info.CheckedAt.IsZero() {
		t.Error("CheckedAt not set")
	}
}

func TestCheckKeepsSnapshotOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewChecker(zerolog.Nop())
	c.endpoint = srv.URL
	c.check(context.Background())

	info := c.Info()
	if info.CurrentVersion != Version {
		t.Fatalf("current = %q, want %q", info.CurrentVersion, Version)
	}
	if info.UpdateAvailable {
		t.Error("failed check must not report an update")
	}
}
