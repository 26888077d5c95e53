// Package postgres implements the datastore interfaces on PostgreSQL.
//
// The layout is one file per operation, each carrying its SQL and its
// metrics. All queries go through the shared pool; per-CVE write
// serialization is a row lock inside the upsert transaction.
package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
)

var _ datastore.Store = (*Store)(nil)

// Store implements datastore.Store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an initialized pool. See [Connect].
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// vulnCols is the canonical column list, kept in sync with scanVuln and
// the insert/update statements in upsertvulnerability.go.
const vulnCols = `cve_id, title, description, cvss_score, cvss_vector, severity, published_at, modified_at, exploited_in_the_wild, cisa_due_date, cwe_ids, vendors, products, affected_products, refs, sources, source_tags, priority_score, simple_title, simple_description, llm_processed, llm_processed_at, llm_provenance, created_at, updated_at`

// scanVuln reads one row in vulnCols order.
func scanVuln(row pgx.Row) (*threatdex.Vulnerability, error) {
	var (
		v          threatdex.Vulnerability
		refs, tags []byte
	)
	err := row.Scan(
		&v.CVE, &v.Title, &v.Description, &v.CVSSScore, &v.CVSSVector, &v.Severity,
		&v.PublishedAt, &v.ModifiedAt, &v.ExploitedInTheWild, &v.CISADueDate,
		&v.CWEIDs, &v.Vendors, &v.Products, &v.AffectedProducts,
		&refs, &v.Sources, &tags,
		&v.PriorityScore, &v.SimpleTitle, &v.SimpleDescription,
		&v.LLMProcessed, &v.LLMProcessedAt, &v.LLMProvenance,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(refs) != 0 {
		if err := json.Unmarshal(refs, &v.References); err != nil {
			return nil, fmt.Errorf("decoding references for %s: %w", v.CVE, err)
		}
	}
	if len(tags) != 0 {
		if err := json.Unmarshal(tags, &v.SourceTags); err != nil {
			return nil, fmt.Errorf("decoding source tags for %s: %w", v.CVE, err)
		}
	}
	return &v, nil
}

// vulnArgs produces the statement arguments in vulnCols order.
func vulnArgs(v *threatdex.Vulnerability) ([]any, error) {
	refs, err := json.Marshal(orEmptyRefs(v.References))
	if err != nil {
		return nil, fmt.Errorf("encoding references for %s: %w", v.CVE, err)
	}
	tags, err := json.Marshal(orEmptyTags(v.SourceTags))
	if err != nil {
		return nil, fmt.Errorf("encoding source tags for %s: %w", v.CVE, err)
	}
	return []any{
		v.CVE, v.Title, v.Description, v.CVSSScore, v.CVSSVector, v.Severity,
		v.PublishedAt, v.ModifiedAt, v.ExploitedInTheWild, v.CISADueDate,
		orEmpty(v.CWEIDs), orEmpty(v.Vendors), orEmpty(v.Products), orEmpty(v.AffectedProducts),
		refs, orEmpty(v.Sources), tags,
		v.PriorityScore, v.SimpleTitle, v.SimpleDescription,
		v.LLMProcessed, v.LLMProcessedAt, v.LLMProvenance,
		v.CreatedAt, v.UpdatedAt,
	}, nil
}

// prefixCols qualifies vulnCols with a table alias for joined queries.
func prefixCols(alias string) string {
	cols := strings.Split(vulnCols, ", ")
	for i, c := range cols {
		cols[i] = alias + c
	}
	return strings.Join(cols, ", ")
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyRefs(r []threatdex.Reference) []threatdex.Reference {
	if r == nil {
		return []threatdex.Reference{}
	}
	return r
}

func orEmptyTags(t []threatdex.SourceTag) []threatdex.SourceTag {
	if t == nil {
		return []threatdex.SourceTag{}
	}
	return t
}
