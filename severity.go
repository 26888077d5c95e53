package threatdex

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Severity is the normalized severity of a vulnerability.
//
// The zero value is Unknown. Unknown is only valid when no CVSS information
// is available for the record.
type Severity uint8

const (
	Unknown Severity = iota
	Low
	Medium
	High
	Critical
)

var severityNames = [...]string{
	Unknown:  "UNKNOWN",
	Low:      "LOW",
	Medium:   "MEDIUM",
	High:     "HIGH",
	Critical: "CRITICAL",
}

func (s Severity) String() string {
	if int(s) >= len(severityNames) {
		return "UNKNOWN"
	}
	return severityNames[s]
}

// ParseSeverity maps a severity string to a Severity, case-insensitively.
// Anything outside the allowed set maps to Unknown.
func ParseSeverity(v string) Severity {
	switch strings.ToUpper(v) {
	case "LOW":
		return Low
	case "MEDIUM":
		return Medium
	case "HIGH":
		return High
	case "CRITICAL":
		return Critical
	}
	return Unknown
}

// SeverityFromScore derives a Severity from a CVSS base score.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= 9.0:
		return Critical
	case score >= 7.0:
		return High
	case score >= 4.0:
		return Medium
	case score > 0:
		return Low
	default:
		return Unknown
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v := ParseSeverity(string(b))
	if v == Unknown && !strings.EqualFold(string(b), "UNKNOWN") && len(b) != 0 {
		return fmt.Errorf("unknown severity %q", string(b))
	}
	*s = v
	return nil
}

func (s Severity) Value() (driver.Value, error) {
	return s.String(), nil
}

func (s *Severity) Scan(i interface{}) error {
	switch v := i.(type) {
	case []byte:
		*s = ParseSeverity(string(v))
	case string:
		*s = ParseSeverity(v)
	case int64:
		if v < 0 || v > int64(Critical) {
			return fmt.Errorf("unable to scan Severity from enum %d", v)
		}
		*s = Severity(v)
	case nil:
		*s = Unknown
	default:
		return fmt.Errorf("unable to scan Severity from type %T", i)
	}
	return nil
}
