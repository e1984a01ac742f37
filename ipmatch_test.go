package goSession

import "testing"

func TestIPMatches(t *testing.T) {
	tests := []struct {
		name   string
		octets int
		req    string
		sess   string
		want   bool
	}{
		{"disabled matches anything", 0, "10.0.0.1", "192.168.1.1", true},
		{"disabled matches empty stored", 0, "10.0.0.1", "", true},
		{"one octet match", 1, "10.1.2.3", "10.9.9.9", true},
		{"one octet mismatch", 1, "10.1.2.3", "11.1.2.3", false},
		{"two octets match", 2, "10.1.2.3", "10.1.9.9", true},
		{"two octets mismatch", 2, "10.1.2.3", "10.2.2.3", false},
		{"three octets match", 3, "10.1.2.3", "10.1.2.9", true},
		{"three octets mismatch", 3, "10.1.2.3", "10.1.3.3", false},
		{"full match", 4, "10.1.2.3", "10.1.2.3", true},
		{"full mismatch last octet", 4, "10.1.2.3", "10.1.2.4", false},
		{"empty stored never matches when enabled", 1, "10.1.2.3", "", false},
		{"empty request never matches when enabled", 1, "", "10.1.2.3", false},
		{"malformed stored address", 4, "10.1.2.3", "10.1.2", false},
		{"octets clamped above four", 9, "10.1.2.3", "10.1.2.3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ipMatches(tt.octets, tt.req, tt.sess); got != tt.want {
				t.Fatalf("ipMatches(%d, %q, %q) = %v, want %v",
					tt.octets, tt.req, tt.sess, got, tt.want)
			}
		})
	}
}
