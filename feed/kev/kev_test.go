package kev

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/threatdex/threatdex"
)

const catalogDoc = `{
  "title": "CISA Catalog of Known Exploited Vulnerabilities",
  "catalogVersion": "2024.02.10",
  "dateReleased": "2024-02-10T12:00:00.000Z",
  "count": 2,
  "vulnerabilities": [
    {
      "cveID": "CVE-2024-0001",
      "vendorProject": "Acme",
      "product": "Widget Server",
      "vulnerabilityName": "Widget Parser Overflow",
      "dateAdded": "2024-02-10",
      "shortDescription": "Widget parser overflow, exploited.",
      "requiredAction": "Apply updates per vendor instructions.",
      "dueDate": "2024-03-01",
      "knownRansomwareCampaignUse": "Known",
      "notes": "https://cisa.gov/kev/CVE-2024-0001 ; https://acme.example/advisories/42",
      "cwes": ["CWE-787"]
    },
    {
      "cveID": "not-a-cve",
      "vulnerabilityName": "Bogus Entry",
      "dateAdded": "2024-02-10",
      "shortDescription": "Should be skipped.",
      "dueDate": "2024-03-01",
      "notes": "",
      "cwes": []
    }
  ]
}`

func TestFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(catalogDoc))
	}))
	defer srv.Close()

	c := New(srv.Client(), WithFeed(srv.URL))
	page, err := c.Fetch(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if page.Next != "" {
		t.Errorf("catalog is single-page, got cursor %q", page.Next)
	}
	if len(page.Vulnerabilities) != 1 {
		t.Fatalf("got %d records, want 1 (bogus entry skipped)", len(page.Vulnerabilities))
	}

	v := page.Vulnerabilities[0]
	if v.CVE != "CVE-2024-0001" {
		t.Errorf("cve: %q", v.CVE)
	}
	if !v.ExploitedInTheWild {
		t.Error("exploited flag not set")
	}
	if v.CISADueDate == nil || v.CISADueDate.Format("2006-01-02") != "2024-03-01" {
		t.Errorf("due date: %v", v.CISADueDate)
	}
	if want := []string{"CWE-787"}; !cmp.Equal(v.CWEIDs, want) {
		t.Error(cmp.Diff(v.CWEIDs, want))
	}
	urls := []string{}
	for _, r := range v.References {
		urls = append(urls, r.URL)
	}
	want := []string{"https://cisa.gov/kev/CVE-2024-0001", "https://acme.example/advisories/42"}
	if !cmp.Equal(urls, want) {
		t.Error(cmp.Diff(urls, want))
	}
	if len(v.SourceTags) != 1 || v.SourceTags[0].Title != "Widget Parser Overflow" {
		t.Errorf("source tags: %+v", v.SourceTags)
	}
}

func TestFetchPermanentError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.Client(), WithFeed(srv.URL))
	_, err := c.Fetch(context.Background(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, threatdex.ErrPermanent) {
		t.Errorf("wrong kind: %v", err)
	}
}
