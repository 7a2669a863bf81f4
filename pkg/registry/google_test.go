package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGoogleRegistry(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"gcr.io", true},
		{"eu.gcr.io", true},
		{"us-docker.pkg.dev", true},
		{"pkg.dev", true},
		{"notgcr.io", false},
		{"registry.example.com", false},
		{"docker.io", false},
		{"amazonaws.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, isGoogleRegistry(tt.host))
		})
	}
}
