package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWellFormedKey(t *testing.T) {
	secret := strings.Repeat("4f", 32)
	sum := sha256.Sum256([]byte(secret))
	good := hex.EncodeToString(sum[:2])
	bad := "0000"
	if good == bad {
		bad = "1111"
	}

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{
			name: "Valid live key",
			key:  fmt.Sprintf("rw_live_%s_%s", secret, good),
			want: true,
		},
		{
			name: "Valid test key",
			key:  fmt.Sprintf("rw_test_%s_%s", secret, good),
			want: true,
		},
		{
			name: "Wrong prefix",
			key:  fmt.Sprintf("pk_live_%s_%s", secret, good),
			want: false,
		},
		{
			name: "Unknown environment",
			key:  fmt.Sprintf("rw_prod_%s_%s", secret, good),
			want: false,
		},
		{
			name: "Short secret",
			key:  fmt.Sprintf("rw_live_%s_%s", secret[:10], good),
			want: false,
		},
		{
			name: "Corrupted checksum",
			key:  fmt.Sprintf("rw_live_%s_%s", secret, bad),
			want: false,
		},
		{
			name: "Missing sections",
			key:  "rw_live",
			want: false,
		},
		{
			name: "Empty",
			key:  "",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wellFormedKey(tt.key))
		})
	}
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		want   string
		result bool
	}{
		{
			name:   "Exact match",
			scopes: []string{"routes:merge", "routes:read"},
			want:   "routes:merge",
			result: true,
		},
		{
			name:   "Wildcard grants everything",
			scopes: []string{"*"},
			want:   "routes:merge",
			result: true,
		},
		{
			name:   "Missing scope",
			scopes: []string{"routes:read"},
			want:   "routes:merge",
			result: false,
		},
		{
			name:   "No scopes at all",
			scopes: nil,
			want:   "routes:read",
			result: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.result, hasScope(tt.scopes, tt.want))
		})
	}
}
