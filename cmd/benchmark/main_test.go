package main

import (
	"testing"
	"time"
)

func TestOptionsValidate(t *testing.T) {
	good := options{
		baseURL:     "http://localhost:8080",
		workers:     10,
		duration:    time.Second,
		workload:    "uniform",
		accounts:    1000,
		amountMinor: 100,
	}
	if err := good.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*options)
	}{
		{"single account", func(o *options) { o.accounts = 1 }},
		{"zero accounts", func(o *options) { o.accounts = 0 }},
		{"no workers", func(o *options) { o.workers = 0 }},
		{"zero amount", func(o *options) { o.amountMinor = 0 }},
		{"unknown workload", func(o *options) { o.workload = "ramp" }},
	}
	for _, tc := range cases {
		opts := good
		tc.mutate(&opts)
		if err := opts.validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestPickPairReturnsDistinctAccounts(t *testing.T) {
	opts := options{workload: "uniform", accounts: 2}
	for i := 0; i < 100; i++ {
		a, b := pickPair(opts)
		if a == b {
			t.Fatalf("drew identical pair %d/%d", a, b)
		}
		if a < 1 || a > 2 || b < 1 || b > 2 {
			t.Fatalf("pair %d/%d outside seeded range", a, b)
		}
	}
}
