package version

import (
	"testing"

	"github.com/fatih/color"
)

func TestColoredKeepsVersionText(t *testing.T) {
	prevNoColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prevNoColor }()

	origVersion := Version
	defer func() { Version = origVersion }()

	tests := []struct {
		in   string
		want string
	}{
		{in: "0.1.0-dev", want: "0.1.0-dev"},
		{in: "1.2.3", want: "1.2.3"},
		{in: "1.0.0-rc.1", want: "1.0.0-rc.1"},
		{in: "nightly", want: "nightly"},
	}
	for _, tc := range tests {
		Version = tc.in
		if got := Colored(); got != tc.want {
			t.Errorf("Colored() with %q = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestVersion_DefaultValues(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
}
