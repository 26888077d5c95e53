package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitList(t *testing.T) {
	t.Parallel()
	tt := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"10.0.0.1", []string{"10.0.0.1"}},
		{"10.0.0.1, 10.0.0.2 ,", []string{"10.0.0.1", "10.0.0.2"}},
	}
	for _, tc := range tt {
		if got := splitList(tc.in); !cmp.Equal(got, tc.want) {
			t.Errorf("splitList(%q): %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.ListenAddr == "" || c.RedisURL == "" {
		t.Errorf("defaults missing: %+v", c)
	}
	if c.RateLimitPerMinute != 60 || c.RateLimitPerHour != 1000 {
		t.Errorf("rate defaults: %d %d", c.RateLimitPerMinute, c.RateLimitPerHour)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "200")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.9,10.0.0.10")
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.RateLimitPerMinute != 200 {
		t.Errorf("override not applied: %d", c.RateLimitPerMinute)
	}
	if !cmp.Equal(c.RateLimitWhitelist, []string{"10.0.0.9", "10.0.0.10"}) {
		t.Errorf("whitelist: %v", c.RateLimitWhitelist)
	}
}

func TestPoolSize(t *testing.T) {
	t.Parallel()
	c := &Config{WorkersPerInstance: 4, BackendInstances: 2}
	if got := c.PoolSize(); got != 18 {
		t.Errorf("PoolSize: %d", got)
	}
	if got := (&Config{}).PoolSize(); got != 10 {
		t.Errorf("PoolSize floor: %d", got)
	}
}
