package recognition

import (
	"errors"
	"testing"

	"golang.org/x/text/language"
)

var testLocales = []language.Tag{
	language.AmericanEnglish,
	language.BritishEnglish,
	language.Japanese,
}

func TestResolveLocaleExactMatch(t *testing.T) {
	tag, fellBack, err := ResolveLocale("en-GB", testLocales)
	if err != nil {
		t.Fatalf("ResolveLocale: %v", err)
	}
	if fellBack {
		t.Fatalf("exact match must not report a fallback")
	}
	if tag != language.BritishEnglish {
		t.Fatalf("expected en-GB, got %v", tag)
	}
}

func TestResolveLocaleEmptyUsesDefault(t *testing.T) {
	tag, fellBack, err := ResolveLocale("  ", testLocales)
	if err != nil {
		t.Fatalf("ResolveLocale: %v", err)
	}
	if !fellBack {
		t.Fatalf("empty request must report fallback")
	}
	if tag != DefaultLocale {
		t.Fatalf("expected default locale, got %v", tag)
	}
}

func TestResolveLocaleUnsupportedFallsBack(t *testing.T) {
	tag, fellBack, err := ResolveLocale("fr-FR", testLocales)
	if err != nil {
		t.Fatalf("ResolveLocale: %v", err)
	}
	if !fellBack {
		t.Fatalf("unsupported locale must report fallback")
	}
	if tag != DefaultLocale {
		t.Fatalf("expected default locale, got %v", tag)
	}
}

func TestResolveLocaleFallbackWithoutDefault(t *testing.T) {
	supported := []language.Tag{language.Japanese, language.German}
	tag, fellBack, err := ResolveLocale("fr-FR", supported)
	if err != nil {
		t.Fatalf("ResolveLocale: %v", err)
	}
	if !fellBack {
		t.Fatalf("expected fallback")
	}
	if tag != language.Japanese && tag != language.German {
		t.Fatalf("fallback must be a supported locale, got %v", tag)
	}
}

func TestResolveLocaleMalformed(t *testing.T) {
	_, _, err := ResolveLocale("not a locale!!", testLocales)
	if !errors.Is(err, ErrLocaleUnsupported) {
		t.Fatalf("expected ErrLocaleUnsupported, got %v", err)
	}
}

func TestResolveLocaleRegionVariant(t *testing.T) {
	// en-AU is not in the set but should negotiate to an English variant, not
	// fall back to nothing.
	tag, _, err := ResolveLocale("en-AU", testLocales)
	if err != nil {
		t.Fatalf("ResolveLocale: %v", err)
	}
	base, _ := tag.Base()
	if base.String() != "en" {
		t.Fatalf("expected an English variant, got %v", tag)
	}
}
