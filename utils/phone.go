// Package utils provides utility functions for the application.
package utils

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// PhoneInfo is the outcome of validating a raw phone value.
type PhoneInfo struct {
	E164     string
	Country  string
	IsMobile bool
	Valid    bool
}

var (
	digitsOnlyRe = regexp.MustCompile(`^\+?\d+$`)
	extensionRe  = regexp.MustCompile(`(?i)(ext\.?|x|#)\s*\d*$`)
)

// CleanupPhone normalizes a raw phone value before validation: unicode
// digits become ASCII, international 00 prefixes become +, trailing
// extensions are dropped, and formatting characters are stripped.
func CleanupPhone(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) && r > '9' {
			// Decimal digit runs start at the zero digit, so the offset
			// from the run start is the digit value.
			off := rune(0)
			for off < 9 && unicode.IsDigit(r-off-1) {
				off++
			}
			b.WriteRune('0' + off)
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	s = extensionRe.ReplaceAllString(s, "")

	var out strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			out.WriteRune(r)
		case r == '+' && i == 0:
			out.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// formatting noise, dropped
		default:
			out.WriteRune(r)
		}
	}

	s = out.String()
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	return s
}

// ValidatePhoneBasic applies the fallback validation used when full
// metadata validation is unavailable: cleanup, digits only, 8 to 16
// digits, returned in a +-prefixed canonical form.
func ValidatePhoneBasic(raw string) (string, bool) {
	s := CleanupPhone(raw)
	if s == "" || !digitsOnlyRe.MatchString(s) {
		return "", false
	}
	digits := strings.TrimPrefix(s, "+")
	if len(digits) < 8 || len(digits) > 16 {
		return "", false
	}
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	return s, true
}

// PhoneValidator validates phone numbers against carrier metadata and
// falls back to basic validation when a value cannot be parsed.
type PhoneValidator struct {
	defaultRegion string
}

// NewPhoneValidator creates a validator that assumes the given region
// for numbers without a country code.
func NewPhoneValidator(defaultRegion string) *PhoneValidator {
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	return &PhoneValidator{defaultRegion: defaultRegion}
}

// Validate returns the E.164 form of raw along with country and line
// type metadata. Invalid values yield PhoneInfo{Valid: false}.
func (v *PhoneValidator) Validate(raw string) PhoneInfo {
	cleaned := CleanupPhone(raw)
	if cleaned == "" {
		return PhoneInfo{}
	}

	num, err := phonenumbers.Parse(cleaned, v.defaultRegion)
	if err != nil {
		e164, ok := ValidatePhoneBasic(raw)
		return PhoneInfo{E164: e164, Valid: ok}
	}
	if !phonenumbers.IsValidNumber(num) {
		e164, ok := ValidatePhoneBasic(raw)
		return PhoneInfo{E164: e164, Valid: ok}
	}

	t := phonenumbers.GetNumberType(num)
	return PhoneInfo{
		E164:     phonenumbers.Format(num, phonenumbers.E164),
		Country:  phonenumbers.GetRegionCodeForNumber(num),
		IsMobile: t == phonenumbers.MOBILE || t == phonenumbers.FIXED_LINE_OR_MOBILE,
		Valid:    true,
	}
}
