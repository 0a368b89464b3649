package domain

import "testing"

func TestConsistencyScore(t *testing.T) {
	tests := []struct {
		name         string
		checked      int
		inconsistent int
		expect       int
	}{
		{"nothing checked", 0, 0, 100},
		{"all consistent", 50, 0, 100},
		{"half consistent", 10, 5, 50},
		{"rounding up", 3, 1, 67},
		{"rounding down", 3, 2, 33},
		{"all inconsistent", 25, 25, 0},
		{"inconsistent exceeds checked", 4, 9, 0},
		{"negative checked treated as empty", -1, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConsistencyScore(tt.checked, tt.inconsistent)
			if got != tt.expect {
				t.Errorf("ConsistencyScore(%d, %d) = %d, want %d", tt.checked, tt.inconsistent, got, tt.expect)
			}
			if got < 0 || got > 100 {
				t.Errorf("score %d outside [0,100]", got)
			}
		})
	}
}
