package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanupPhone(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"already clean", "+14155552671", "+14155552671"},
		{"formatting stripped", "(415) 555-2671", "4155552671"},
		{"dots and dashes", "415.555.2671", "4155552671"},
		{"double zero prefix", "0014155552671", "+14155552671"},
		{"double zero with spaces", "00 44 20 7946 0958", "+442079460958"},
		{"extension x", "4155552671 x123", "4155552671"},
		{"extension ext", "4155552671 ext. 45", "4155552671"},
		{"extension hash", "4155552671#9", "4155552671"},
		{"plus kept only at start", "+1 (415) 555-2671", "+14155552671"},
		{"arabic-indic digits", "١٢٣", "123"},
		{"leading zeros kept", "0415555267", "0415555267"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanupPhone(tt.raw))
		})
	}
}

func TestValidatePhoneBasic(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"valid with plus", "+14155552671", "+14155552671", true},
		{"valid without plus", "14155552671", "+14155552671", true},
		{"too short", "555-0100", "", false},
		{"too long", "12345678901234567", "", false},
		{"letters", "not a phone", "", false},
		{"email", "user@example.com", "", false},
		{"eight digits minimum", "12345678", "+12345678", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ValidatePhoneBasic(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPhoneValidatorValidate(t *testing.T) {
	v := NewPhoneValidator("US")

	t.Run("valid US number", func(t *testing.T) {
		info := v.Validate("(415) 555-2671")
		assert.True(t, info.Valid)
		assert.Equal(t, "+14155552671", info.E164)
		assert.Equal(t, "US", info.Country)
	})

	t.Run("valid international number", func(t *testing.T) {
		info := v.Validate("+44 20 7946 0958")
		assert.True(t, info.Valid)
		assert.Equal(t, "+442079460958", info.E164)
		assert.Equal(t, "GB", info.Country)
	})

	t.Run("uk mobile detected", func(t *testing.T) {
		info := v.Validate("+44 7911 123456")
		assert.True(t, info.Valid)
		assert.True(t, info.IsMobile)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		info := v.Validate("hello world")
		assert.False(t, info.Valid)
		assert.Empty(t, info.E164)
	})

	t.Run("empty rejected", func(t *testing.T) {
		info := v.Validate("")
		assert.False(t, info.Valid)
	})

	t.Run("default region fallback", func(t *testing.T) {
		v := NewPhoneValidator("")
		info := v.Validate("+14155552671")
		assert.True(t, info.Valid)
	})
}
