package probe

import "testing"

func TestIsNewer(t *testing.T) {
	cases := []struct {
		latest, current string
		want             bool
	}{
		{"v1.2.3", "v1.2.2", true},
		{"v1.2.3", "v1.2.3", false},
		{"v1.2.3", "v1.3.0", false},
		{"v2.0.0-rc1", "v1.9.9", true},
		{"v1.0.0-rc1", "v1.0.0", false},
	}
	for _, c := range cases {
		if got := isNewer(c.latest, c.current); got != c.want {
			t.Errorf("isNewer(%q, %q) = %v, want %v", c.latest, c.current, got, c.want)
		}
	}
}
