package threatdex

import "testing"

func TestSeverityFromScore(t *testing.T) {
	t.Parallel()

	tt := []struct {
		Score float64
		Want  Severity
	}{
		{10.0, Critical},
		{9.0, Critical},
		{8.9, High},
		{7.0, High},
		{6.9, Medium},
		{4.0, Medium},
		{3.9, Low},
		{0.1, Low},
		{0.0, Unknown},
	}
	for _, tc := range tt {
		if got := SeverityFromScore(tc.Score); got != tc.Want {
			t.Errorf("SeverityFromScore(%v): got %v, want %v", tc.Score, got, tc.Want)
		}
	}
}

func TestSeverityRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []Severity{Unknown, Low, Medium, High, Critical} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got Severity
		if err := got.UnmarshalText(b); err != nil {
			t.Fatal(err)
		}
		if got != s {
			t.Errorf("round trip: got %v, want %v", got, s)
		}
	}

	var s Severity
	if err := s.UnmarshalText([]byte("EXTREME")); err == nil {
		t.Error("expected error for unknown severity")
	}
	if err := s.Scan("high"); err != nil || s != High {
		t.Errorf("Scan(high): got %v, %v", s, err)
	}
}
