package domain

import "testing"

func TestASIN(t *testing.T) {
	t.Parallel()
	cases := []struct {
		row  Row
		want string
	}{
		{Row{"asin": "b000000001"}, "B000000001"},
		{Row{"childAsin": " B2 "}, "B2"},
		{Row{"asin": "", "parentAsin": "P1"}, "P1"},
		{Row{"asin": 12}, ""},
		{Row{}, ""},
	}
	for _, c := range cases {
		if got := ASIN(c.row); got != c.want {
			t.Fatalf("ASIN(%v) = %q, want %q", c.row, got, c.want)
		}
	}
}
