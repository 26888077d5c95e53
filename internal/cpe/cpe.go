// Package cpe parses Common Platform Enumeration URIs into the vendor,
// product, and version fields the vulnerability store keeps.
//
// Both the 2.2 URI form (cpe:/a:vendor:product:version) and the 2.3
// formatted-string form (cpe:2.3:a:vendor:product:version:...) are accepted.
// A backslash-escaped colon is part of the field, not a separator.
package cpe

import (
	"fmt"
	"strings"
)

// CPE holds the fields of a parsed CPE URI that matter to the store.
type CPE struct {
	Part    string
	Vendor  string
	Product string
	Version string
}

// Parse parses a CPE URI in 2.2 or 2.3 form.
func Parse(uri string) (CPE, error) {
	var fields []string
	switch {
	case strings.HasPrefix(uri, "cpe:2.3:"):
		fields = split(uri[len("cpe:2.3:"):])
	case strings.HasPrefix(uri, "cpe:/"):
		fields = split(uri[len("cpe:/"):])
	default:
		return CPE{}, fmt.Errorf("cpe: unrecognized URI %q", uri)
	}
	if len(fields) < 3 {
		return CPE{}, fmt.Errorf("cpe: too few components in %q", uri)
	}
	c := CPE{
		Part:    fields[0],
		Vendor:  unbind(fields[1]),
		Product: unbind(fields[2]),
	}
	if len(fields) > 3 {
		c.Version = unbind(fields[3])
	}
	if c.Vendor == "" || c.Product == "" {
		return CPE{}, fmt.Errorf("cpe: missing vendor or product in %q", uri)
	}
	return c, nil
}

// split breaks a CPE body on unescaped colons.
func split(s string) []string {
	var out []string
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				b.WriteByte(s[i])
				b.WriteByte(s[i+1])
				i++
				continue
			}
			b.WriteByte(s[i])
		case ':':
			out = append(out, b.String())
			b.Reset()
		default:
			b.WriteByte(s[i])
		}
	}
	out = append(out, b.String())
	return out
}

// unbind maps the CPE "any" and "not applicable" markers to the empty
// string and removes escapes.
func unbind(s string) string {
	switch s {
	case "*", "-", "":
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Tuple renders the vendor:product[:version] form stored in
// affected_products.
func (c CPE) Tuple() string {
	if c.Version == "" {
		return c.Vendor + ":" + c.Product
	}
	return c.Vendor + ":" + c.Product + ":" + c.Version
}

// Display renders a raw CPE name for presentation: underscores become
// spaces and each word is title-cased. The raw form is kept for matching.
func Display(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == ' ' })
	for i, w := range words {
		if len(w) > 0 && 'a' <= w[0] && w[0] <= 'z' {
			words[i] = string(w[0]-'a'+'A') + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Normalize folds a vendor or product name for matching: lower case with
// dots, spaces, and underscores removed.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case '.', ' ', '_':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
