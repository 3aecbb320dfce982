package eventstore

import "testing"

func TestShouldSnapshot(t *testing.T) {
	cases := []struct {
		name          string
		sinceLastSnap int
		threshold     int
		want          bool
	}{
		{"below default threshold", 99, 0, false},
		{"at default threshold", 100, 0, true},
		{"custom threshold not reached", 5, 10, false},
		{"custom threshold reached", 10, 10, true},
		{"custom threshold exceeded", 50, 10, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldSnapshot(tc.sinceLastSnap, tc.threshold); got != tc.want {
				t.Fatalf("ShouldSnapshot(%d, %d) = %v, want %v", tc.sinceLastSnap, tc.threshold, got, tc.want)
			}
		})
	}
}
