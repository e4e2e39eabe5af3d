package normalize

import (
	"errors"
	"testing"
)

func TestStripDecorations(t *testing.T) {
	cases := map[string]string{
		" Exemplo.com.br ":              "Exemplo.com.br",
		"https://exemplo.com.br/loja":   "exemplo.com.br",
		"exemplo.com.br.":               "exemplo.com.br",
		"exemplo.com.br?utm=1":          "exemplo.com.br",
		"http://exemplo.net.br#contato": "exemplo.net.br",
	}
	for in, want := range cases {
		if got := StripDecorations(in); got != want {
			t.Fatalf("StripDecorations(%q)=%q; want %q", in, got, want)
		}
	}
}

func TestDomain(t *testing.T) {
	got, err := Domain("  FreeDomain123.COM.BR ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "freedomain123.com.br" {
		t.Fatalf("got %q", got)
	}

	got, err = Domain("pão.com.br")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "xn--po-sia.com.br" {
		t.Fatalf("idn: got %q; want %q", got, "xn--po-sia.com.br")
	}

	for _, bad := range []string{"", "semponto", "-ruim.com.br", "ruim-.com.br", "com espaco.com.br", "a..com.br"} {
		if _, err := Domain(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestSuffixes(t *testing.T) {
	got := Suffixes([]string{" BR", ".com.br", "", "."})
	if len(got) != 2 || got[0] != ".br" || got[1] != ".com.br" {
		t.Fatalf("Suffixes=%v", got)
	}
}

func TestDomainWithSuffix(t *testing.T) {
	sfx := Suffixes([]string{".br", ".com.br"})
	if _, err := DomainWithSuffix("exemplo.com.br", sfx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := DomainWithSuffix("exemplo.com", sfx); !errors.Is(err, ErrUnrecognizedSuffix) {
		t.Fatalf("expected ErrUnrecognizedSuffix, got %v", err)
	}
	if HasSuffix(".br", sfx) || HasSuffix("br", sfx) {
		t.Fatalf("bare suffix must not match")
	}
}
