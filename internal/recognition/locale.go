package recognition

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocale is the fallback when the requested locale is unsupported.
var DefaultLocale = language.AmericanEnglish

// ResolveLocale validates the requested locale against the supported set and
// returns the negotiated tag. When the request cannot be matched the default
// locale is returned with fellBack=true; recognition still proceeds, the
// caller records that the fallback occurred. A malformed locale string is the
// only hard error.
func ResolveLocale(requested string, supported []language.Tag) (tag language.Tag, fellBack bool, err error) {
	trimmed := strings.TrimSpace(requested)
	if trimmed == "" {
		return DefaultLocale, true, nil
	}
	want, err := language.Parse(trimmed)
	if err != nil {
		return language.Und, false, fmt.Errorf("%w: parse %q: %v", ErrLocaleUnsupported, requested, err)
	}
	if len(supported) == 0 {
		return DefaultLocale, true, nil
	}

	matcher := language.NewMatcher(supported)
	_, idx, conf := matcher.Match(want)
	if conf == language.No {
		return fallbackLocale(supported), true, nil
	}
	return supported[idx], false, nil
}

// fallbackLocale prefers DefaultLocale when the engine supports it, else the
// engine's first supported locale.
func fallbackLocale(supported []language.Tag) language.Tag {
	for _, tag := range supported {
		if tag == DefaultLocale {
			return tag
		}
	}
	matcher := language.NewMatcher(supported)
	_, idx, conf := matcher.Match(DefaultLocale)
	if conf != language.No {
		return supported[idx]
	}
	return supported[0]
}
