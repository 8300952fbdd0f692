package main

import "testing"

func TestResolveThreshold(t *testing.T) {
	cases := []struct {
		name      string
		flagValue float64
		config    float64
		want      float64
	}{
		{"unset falls back to config", -1, 0.3, 0.3},
		{"explicit zero disables filtering", 0, 0.3, 0},
		{"explicit value wins", 0.7, 0.3, 0.7},
	}
	for _, c := range cases {
		if got := resolveThreshold(c.flagValue, c.config); got != c.want {
			t.Errorf("%s: resolveThreshold(%v, %v) = %v, want %v", c.name, c.flagValue, c.config, got, c.want)
		}
	}
}
