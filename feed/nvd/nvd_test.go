package nvd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/feed"
)

func loadPage(t *testing.T) *response {
	t.Helper()
	b, err := os.ReadFile("testdata/page.json")
	if err != nil {
		t.Fatal(err)
	}
	var r response
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatal(err)
	}
	return &r
}

func TestParse(t *testing.T) {
	t.Parallel()
	page := loadPage(t)

	v, err := parse(&page.Vulnerabilities[0].CVE)
	if err != nil {
		t.Fatal(err)
	}

	if v.CVE != "CVE-2024-0001" {
		t.Errorf("cve: %q", v.CVE)
	}
	if want := "A heap overflow in the widget parser allows remote code execution."; v.Description != want {
		t.Errorf("description: %q", v.Description)
	}
	if v.CVSSScore == nil || *v.CVSSScore != 7.5 {
		t.Errorf("cvss: %v", v.CVSSScore)
	}
	if v.Severity != threatdex.High {
		t.Errorf("severity: %v", v.Severity)
	}
	if v.PublishedAt == nil || v.PublishedAt.Format("2006-01-02") != "2024-02-01" {
		t.Errorf("published: %v", v.PublishedAt)
	}
	if !v.ExploitedInTheWild {
		t.Error("KEV fields did not set exploited flag")
	}
	if v.CISADueDate == nil || v.CISADueDate.Format("2006-01-02") != "2024-03-01" {
		t.Errorf("due date: %v", v.CISADueDate)
	}
	if want := []string{"CWE-787"}; !cmp.Equal(v.CWEIDs, want) {
		t.Error(cmp.Diff(v.CWEIDs, want))
	}
	if want := []string{"Acme"}; !cmp.Equal(v.Vendors, want) {
		t.Error(cmp.Diff(v.Vendors, want))
	}
	if want := []string{"Widget Server"}; !cmp.Equal(v.Products, want) {
		t.Error(cmp.Diff(v.Products, want))
	}
	if want := []string{"acme:widget_server:1.2.3"}; !cmp.Equal(v.AffectedProducts, want) {
		t.Error(cmp.Diff(v.AffectedProducts, want))
	}
	for _, src := range []string{threatdex.SourceNVD, threatdex.SourceCISAKEV} {
		if !v.HasSource(src) {
			t.Errorf("missing source %q", src)
		}
	}

	// The ftp reference must be dropped; the rest classified.
	types := map[string]string{}
	for _, r := range v.References {
		types[r.URL] = r.Type
	}
	want := map[string]string{
		"https://nvd.nist.gov/vuln/detail/CVE-2024-0001": threatdex.RefNVD,
		"https://acme.example/advisories/42":             threatdex.RefAdvisory,
		"https://github.com/poc/CVE-2024-0001":           threatdex.RefExploit,
	}
	if !cmp.Equal(types, want) {
		t.Error(cmp.Diff(types, want))
	}
}

func TestParseCVSSv2Fallback(t *testing.T) {
	t.Parallel()
	page := loadPage(t)

	v, err := parse(&page.Vulnerabilities[1].CVE)
	if err != nil {
		t.Fatal(err)
	}
	if v.CVSSScore == nil || *v.CVSSScore != 7.5 {
		t.Errorf("cvss: %v", v.CVSSScore)
	}
	if v.Severity != threatdex.High {
		t.Errorf("severity: %v", v.Severity)
	}
	if v.ExploitedInTheWild {
		t.Error("exploited flag set without KEV fields")
	}
}

func TestParseRejectsNonCVE(t *testing.T) {
	t.Parallel()

	_, err := parse(&cveItem{ID: "GHSA-abcd-1234"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, threatdex.ErrPermanent) {
		t.Errorf("wrong kind: %v", err)
	}
}

func TestFetchPagination(t *testing.T) {
	t.Parallel()

	raw, err := os.ReadFile("testdata/page.json")
	if err != nil {
		t.Fatal(err)
	}
	var sawStart, sawPer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawStart = r.URL.Query().Get("startIndex")
		sawPer = r.URL.Query().Get("resultsPerPage")
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
	}))
	defer srv.Close()

	c := New(srv.Client(), WithRoot(srv.URL), WithPageSize(2000))
	page, err := c.Fetch(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if sawStart != "0" || sawPer != "2000" {
		t.Errorf("query: startIndex=%s resultsPerPage=%s", sawStart, sawPer)
	}
	if len(page.Vulnerabilities) != 2 {
		t.Fatalf("got %d records", len(page.Vulnerabilities))
	}
	if page.TotalEstimate != 5000 {
		t.Errorf("total estimate: %d", page.TotalEstimate)
	}
	if page.Next != feed.Cursor("2") {
		t.Errorf("next cursor: %q", page.Next)
	}
}

func TestFetchRateLimitedSignal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	// Bare transport: the retrying one would eat the 429s first.
	c := New(&http.Client{}, WithRoot(srv.URL))
	_, err := c.Fetch(context.Background(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, threatdex.ErrRateLimited) {
		t.Errorf("wrong kind: %v", err)
	}
	if d, ok := threatdex.BackoffHint(err); !ok || d.Seconds() != 30 {
		t.Errorf("backoff hint: %v, %v", d, ok)
	}
}
