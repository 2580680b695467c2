package version

import "testing"

func TestFormat(t *testing.T) {
	cases := []struct {
		info Info
		want string
	}{
		{Info{Version: "v0.3.0"}, "v0.3.0"},
		{Info{Version: "dev", Commit: "0123456789abcdef"}, "dev (0123456789ab)"},
		{Info{Version: "dev", Commit: "abc", Modified: true}, "dev (abc-dirty)"},
	}
	for _, tc := range cases {
		if got := format(tc.info); got != tc.want {
			t.Fatalf("format(%+v) = %q, want %q", tc.info, got, tc.want)
		}
	}
}

func TestResolvePrefersLinkerValues(t *testing.T) {
	prev := Version
	Version = "v9.9.9"
	defer func() { Version = prev }()

	if got := Resolve().Version; got != "v9.9.9" {
		t.Fatalf("Resolve().Version = %q", got)
	}
}
