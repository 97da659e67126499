package main

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		in         string
		api, works bool
	}{
		{"all", true, true},
		{"api", true, false},
		{"worker", false, true},
	}
	for _, tt := range tests {
		r, err := ParseRole(tt.in)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", tt.in, err)
		}
		if r.ServesAPI() != tt.api || r.RunsWorkers() != tt.works {
			t.Errorf("%s: ServesAPI=%v RunsWorkers=%v", tt.in, r.ServesAPI(), r.RunsWorkers())
		}
	}

	if _, err := ParseRole("scheduler"); err == nil {
		t.Error("expected error for unknown role")
	}
}
