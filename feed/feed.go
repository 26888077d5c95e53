// Package feed defines the contract between the update manager and the
// per-source clients.
//
// A Feeder produces a lazy, finite sequence of pages of normalized records,
// restartable from an opaque cursor. The consumer drives pagination and is
// responsible for checkpointing the cursor after each page it has durably
// processed; re-fetching a page is safe because merging is idempotent.
package feed

import (
	"context"

	"github.com/threatdex/threatdex"
)

// Cursor is an opaque resume token. The empty cursor means "from the
// beginning"; a page with an empty Next cursor is the last page.
type Cursor string

// Page is one page of normalized records from a source.
//
// A page may be empty. Records are already projected into the canonical
// shape; raw source forms never cross this boundary.
type Page struct {
	Vulnerabilities []*threatdex.Vulnerability
	Articles        []*threatdex.Article

	// Next resumes the fetch after this page; empty when exhausted.
	Next Cursor
	// TotalEstimate is the source's own count of matching records, or 0
	// when the source does not report one.
	TotalEstimate int
}

// Feeder is a bounded client for one external source.
//
// Fetch must classify failures: transient network or 5xx errors unwrap to
// threatdex.ErrTransient, HTTP 429 to threatdex.ErrRateLimited (carrying a
// backoff hint when the upstream provided one), and other 4xx or malformed
// payloads to threatdex.ErrPermanent. Fetch has no side effects beyond HTTP.
type Feeder interface {
	Name() string
	Fetch(ctx context.Context, c Cursor) (*Page, error)
}
