package profile

import (
	"fmt"
	"os"
	"strings"
)

// DefaultKey is used when nothing else names a profile.
const DefaultKey = "default"

// maxKeyLen bounds a key so it stays a single URL path segment.
const maxKeyLen = 128

// DetectKey picks the profile key to use.
// Priority order:
// 1. OPSDECK_PROFILE environment variable (explicit)
// 2. configured, usually deck.profile from config.toml
// 3. Fallback to "default"
func DetectKey(configured string) string {
	if key := strings.TrimSpace(os.Getenv("OPSDECK_PROFILE")); key != "" {
		return key
	}
	if key := strings.TrimSpace(configured); key != "" {
		return key
	}
	return DefaultKey
}

// ValidateKey rejects keys that cannot round-trip through /api/profile/{key}.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("profile key is empty")
	}
	if len(key) > maxKeyLen {
		return fmt.Errorf("profile key longer than %d bytes", maxKeyLen)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("profile key %q: invalid character %q", key, r)
		}
	}
	if key == "." || key == ".." {
		return fmt.Errorf("profile key %q is reserved", key)
	}
	return nil
}
