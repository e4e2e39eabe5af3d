package normalize

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrInvalidDomain indicates the input is not a usable domain name.
	ErrInvalidDomain = errors.New("invalid domain")
	// ErrUnrecognizedSuffix indicates the domain does not end in a recognized suffix.
	ErrUnrecognizedSuffix = errors.New("unrecognized domain suffix")
)

var (
	ldhRe = regexp.MustCompile(`^[a-z0-9-]{1,63}$`)
)

// DefaultSuffixes are the national suffixes accepted when none are configured.
var DefaultSuffixes = []string{".br", ".com.br"}

// StripDecorations trims whitespace, drops any scheme, path, query or fragment,
// and removes a trailing dot.
// Examples:
//
//	" https://Exemplo.com.br/loja " -> "Exemplo.com.br"
//	"exemplo.com.br." -> "exemplo.com.br"
func StripDecorations(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/#?"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, ".")
}

// ToASCII converts a full domain to its lowercase A-label form using the IDNA Lookup profile.
func ToASCII(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", ErrInvalidDomain
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", ErrInvalidDomain
	}
	return strings.ToLower(ascii), nil
}

// ValidateLDH asserts every label is LDH, within length, with no leading/trailing hyphen.
func ValidateLDH(ascii string) error {
	if len(ascii) > 253 {
		return ErrInvalidDomain
	}
	labels := strings.Split(ascii, ".")
	if len(labels) < 2 {
		return ErrInvalidDomain
	}
	for _, l := range labels {
		if !ldhRe.MatchString(l) {
			return ErrInvalidDomain
		}
		if strings.HasPrefix(l, "-") || strings.HasSuffix(l, "-") {
			return ErrInvalidDomain
		}
	}
	return nil
}

// Domain normalizes a raw spreadsheet cell into a lowercase A-label domain.
func Domain(input string) (string, error) {
	s := StripDecorations(input)
	if s == "" || strings.ContainsAny(s, " \t") {
		return "", ErrInvalidDomain
	}
	ascii, err := ToASCII(s)
	if err != nil {
		return "", err
	}
	if err := ValidateLDH(ascii); err != nil {
		return "", err
	}
	return ascii, nil
}

// Suffixes canonicalizes a suffix list to lowercase with a leading dot.
func Suffixes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || s == "." {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		out = append(out, s)
	}
	return out
}

// HasSuffix reports whether domain ends in one of the canonical suffixes with
// at least one label in front of it.
func HasSuffix(domain string, suffixes []string) bool {
	for _, s := range suffixes {
		if len(domain) > len(s) && strings.HasSuffix(domain, s) {
			return true
		}
	}
	return false
}

// DomainWithSuffix normalizes input and requires a recognized suffix.
func DomainWithSuffix(input string, suffixes []string) (string, error) {
	d, err := Domain(input)
	if err != nil {
		return "", err
	}
	if !HasSuffix(d, suffixes) {
		return "", ErrUnrecognizedSuffix
	}
	return d, nil
}
