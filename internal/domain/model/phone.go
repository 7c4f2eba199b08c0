package model

import (
	"regexp"
	"strings"

	"momo-billing/internal/domain"
)

// Correspondents (operator/country pairs) accepted by the provider.
const (
	CorrespondentMTN    = "MTN_MOMO_CMR"
	CorrespondentOrange = "ORANGE_CMR"
)

const DefaultCountryCode = "237"

var msisdnRe = regexp.MustCompile(`^2376\d{8}$`)

// NormalizePhone turns user input into the provider's MSISDN format: country code
// followed by the 9-digit subscriber number, digits only.
func NormalizePhone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimPrefix(s, "00")
	if s == "" {
		return "", domain.NewValidationError("phoneNumber", "required")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", domain.NewValidationError("phoneNumber", "must contain digits only")
		}
	}
	if len(s) == 9 {
		s = countryCode + s
	}
	if countryCode == DefaultCountryCode && !msisdnRe.MatchString(s) {
		return "", domain.NewValidationError("phoneNumber", "expected 237 followed by 9 digits starting with 6")
	}
	if !strings.HasPrefix(s, countryCode) {
		return "", domain.NewValidationError("phoneNumber", "unsupported country code")
	}
	return s, nil
}

// DetectCorrespondent infers the operator from a normalized MSISDN prefix.
func DetectCorrespondent(msisdn string) (string, bool) {
	local := strings.TrimPrefix(msisdn, DefaultCountryCode)
	if len(local) != 9 {
		return "", false
	}
	p2, p3 := local[:2], local[:3]
	switch {
	case p2 == "67", p2 == "68", p3 >= "650" && p3 <= "654":
		return CorrespondentMTN, true
	case p2 == "69", p3 == "640", p3 >= "655" && p3 <= "659":
		return CorrespondentOrange, true
	}
	return "", false
}

// ResolveCorrespondent validates an explicit choice or falls back to prefix detection.
func ResolveCorrespondent(explicit, msisdn string) (string, error) {
	if c := strings.ToUpper(strings.TrimSpace(explicit)); c != "" {
		switch c {
		case CorrespondentMTN, CorrespondentOrange:
			return c, nil
		case "MTN":
			return CorrespondentMTN, nil
		case "ORANGE":
			return CorrespondentOrange, nil
		}
		return "", domain.NewValidationError("correspondent", "unsupported operator "+explicit)
	}
	c, ok := DetectCorrespondent(msisdn)
	if !ok {
		return "", domain.NewValidationError("correspondent", "operator could not be detected from phone number")
	}
	return c, nil
}
