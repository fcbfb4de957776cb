package repository

import "testing"

func TestEscapeLikePattern(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"graph", "graph"},
		{"100%", `100\%`},
		{"snake_case", `snake\_case`},
		{`C:\notes`, `C:\\notes`},
		{"%_%", `\%\_\%`},
		{"", ""},
	}

	for _, tc := range cases {
		if got := escapeLikePattern(tc.in); got != tc.want {
			t.Errorf("escapeLikePattern(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
