package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDeliveryAddress(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		ok       bool
	}{
		{"standard suffix", "foo@kindle.com", "foo", true},
		{"free tier rewritten", "foo@free.kindle.com", "foo", true},
		{"mixed case", "Foo@FREE.KINDLE.COM", "foo", true},
		{"uppercase standard", "BAR@Kindle.Com", "bar", true},
		{"wrong domain", "foo@gmail.com", "", false},
		{"no suffix", "foo", "", false},
		{"empty", "", "", false},
		{"suffix only", "@kindle.com", "", true},
		{"free tier in the middle", "foo@free.kindle.com.evil.com", "", false},
		{"whitespace not trimmed", " foo@kindle.com ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			localPart, ok := NormalizeDeliveryAddress(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, localPart)
		})
	}
}

// A free-tier address always normalizes the same as its standard-tier twin.
func TestNormalizeDeliveryAddressFreeTierEquivalence(t *testing.T) {
	locals := []string{"a", "reader42", "first.last", "UPPER", "weird+tag"}

	for _, local := range locals {
		freeResult, freeOK := NormalizeDeliveryAddress(local + "@free.kindle.com")
		stdResult, stdOK := NormalizeDeliveryAddress(local + "@kindle.com")

		assert.Equal(t, stdOK, freeOK, "ok mismatch for %q", local)
		assert.Equal(t, stdResult, freeResult, "result mismatch for %q", local)
		assert.Equal(t, strings.ToLower(local), freeResult)
	}
}
