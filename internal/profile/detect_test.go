package profile

import (
	"strings"
	"testing"
)

func TestDetectKey(t *testing.T) {
	tests := []struct {
		name       string
		env        string
		configured string
		want       string
	}{
		{name: "env takes priority", env: "engagement-7", configured: "lab", want: "engagement-7"},
		{name: "configured when env empty", configured: "lab", want: "lab"},
		{name: "whitespace configured falls back", configured: "  ", want: DefaultKey},
		{name: "nothing set", want: DefaultKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPSDECK_PROFILE", tt.env)
			if got := DetectKey(tt.configured); got != tt.want {
				t.Errorf("DetectKey(%q) = %q, want %q", tt.configured, got, tt.want)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	valid := []string{"default", "lab-01", "client_a.v2", strings.Repeat("k", maxKeyLen)}
	for _, key := range valid {
		if err := ValidateKey(key); err != nil {
			t.Errorf("ValidateKey(%q) = %v, want nil", key, err)
		}
	}

	invalid := []string{"", "..", ".", "a/b", "with space", "é", strings.Repeat("k", maxKeyLen+1)}
	for _, key := range invalid {
		if err := ValidateKey(key); err == nil {
			t.Errorf("ValidateKey(%q) = nil, want error", key)
		}
	}
}
