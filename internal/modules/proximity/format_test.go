package proximity

import "testing"

func TestFormatDistance(t *testing.T) {
	cases := map[float64]string{
		0:      "0 m",
		0.3:    "300 m",
		0.9996: "1000 m",
		1:      "1.0 km",
		14.04:  "14.0 km",
		3935.7: "3935.7 km",
	}
	for km, want := range cases {
		if got := FormatDistance(km); got != want {
			t.Errorf("FormatDistance(%v) = %q, want %q", km, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[float64]string{
		0:     "0 min",
		16.8:  "17 min",
		60:    "1 hr",
		95:    "1 hr 35 min",
		119.7: "2 hr",
		4723:  "78 hr 43 min",
	}
	for minutes, want := range cases {
		if got := FormatDuration(minutes); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", minutes, got, want)
		}
	}
}
