package threatdex

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCVE(t *testing.T) {
	t.Parallel()

	tt := []struct {
		In   string
		Want string
		OK   bool
	}{
		{In: "CVE-2024-0001", Want: "CVE-2024-0001", OK: true},
		{In: "cve-2024-0001", Want: "CVE-2024-0001", OK: true},
		{In: "  CVE-2021-44228 ", Want: "CVE-2021-44228", OK: true},
		{In: "CVE-2024-123456789", Want: "CVE-2024-123456789", OK: true},
		{In: "CVE-2024-001", OK: false},
		{In: "CVE-24-0001", OK: false},
		{In: "GHSA-xxxx-yyyy", OK: false},
		{In: "CVE-2024-0001 extra", OK: false},
		{In: "", OK: false},
	}
	for _, tc := range tt {
		got, ok := ParseCVE(tc.In)
		if ok != tc.OK {
			t.Errorf("ParseCVE(%q): got ok=%v, want %v", tc.In, ok, tc.OK)
		}
		if ok && got != tc.Want {
			t.Errorf("ParseCVE(%q): got %q, want %q", tc.In, got, tc.Want)
		}
	}
}

func TestFindCVEs(t *testing.T) {
	t.Parallel()

	in := `Attackers are exploiting cve-2021-44228 (Log4Shell) together with
CVE-2021-45046; patches for CVE-2021-44228 shipped in December.`
	want := []string{"CVE-2021-44228", "CVE-2021-45046"}
	if got := FindCVEs(in); !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
	if got := FindCVEs("no identifiers here"); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestFindCWEs(t *testing.T) {
	t.Parallel()

	in := "CWE-79 and CWE-89, plus CWE-79 again"
	want := []string{"CWE-79", "CWE-89"}
	if got := FindCWEs(in); !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}
