package civil

import "testing"

func TestFormatSignedHours(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{-23.5, "-23:30h"},
		{-24, "-24:00h"},
		{-0.5, "-0:30h"},
		{-1.25, "-1:15h"},
		{8.33, "8:20h"},
		{-100.5, "-100:30h"},
	}
	for _, c := range cases {
		if got := FormatSignedHours(c.in); got != c.want {
			t.Errorf("FormatSignedHours(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
