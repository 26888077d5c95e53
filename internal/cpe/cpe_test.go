package cpe

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tt := []struct {
		Name string
		In   string
		Want CPE
		Err  bool
	}{
		{
			Name: "Formatted23",
			In:   "cpe:2.3:a:apache:http_server:2.4.57:*:*:*:*:*:*:*",
			Want: CPE{Part: "a", Vendor: "apache", Product: "http_server", Version: "2.4.57"},
		},
		{
			Name: "URI22",
			In:   "cpe:/a:openbsd:openssh:9.3",
			Want: CPE{Part: "a", Vendor: "openbsd", Product: "openssh", Version: "9.3"},
		},
		{
			Name: "AnyVersion",
			In:   "cpe:2.3:a:microsoft:exchange_server:*:*:*:*:*:*:*:*",
			Want: CPE{Part: "a", Vendor: "microsoft", Product: "exchange_server"},
		},
		{
			Name: "NAVersion",
			In:   "cpe:2.3:o:cisco:ios:-:*:*:*:*:*:*:*",
			Want: CPE{Part: "o", Vendor: "cisco", Product: "ios"},
		},
		{
			// An escaped colon is field content, not a separator.
			Name: "EscapedColon",
			In:   `cpe:2.3:a:example:proxy\:server:1.0:*:*:*:*:*:*:*`,
			Want: CPE{Part: "a", Vendor: "example", Product: "proxy:server", Version: "1.0"},
		},
		{
			Name: "NotACPE",
			In:   "pkg:golang/github.com/example/mod@v1.0.0",
			Err:  true,
		},
		{
			Name: "TooShort",
			In:   "cpe:2.3:a",
			Err:  true,
		},
		{
			Name: "MissingVendor",
			In:   "cpe:2.3:a:*:product:1.0:*:*:*:*:*:*:*",
			Err:  true,
		},
	}
	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			got, err := Parse(tc.In)
			if tc.Err {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !cmp.Equal(got, tc.Want) {
				t.Error(cmp.Diff(got, tc.Want))
			}
		})
	}
}

func TestTuple(t *testing.T) {
	t.Parallel()

	c := CPE{Vendor: "apache", Product: "http_server", Version: "2.4.57"}
	if got, want := c.Tuple(), "apache:http_server:2.4.57"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	c.Version = ""
	if got, want := c.Tuple(), "apache:http_server"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDisplayAndNormalize(t *testing.T) {
	t.Parallel()

	if got, want := Display("http_server"), "Http Server"; got != want {
		t.Errorf("Display: got %q, want %q", got, want)
	}
	// Dots, spaces, and underscores all fold to the same matching form.
	for _, in := range []string{"Http_Server", "http server", "HTTP.SERVER"} {
		if got, want := Normalize(in), "httpserver"; got != want {
			t.Errorf("Normalize(%q): got %q, want %q", in, got, want)
		}
	}
}
