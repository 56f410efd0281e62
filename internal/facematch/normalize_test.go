package facematch

import (
	"errors"
	"testing"
)

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Diogo", "Diogo"},
		{"Letícia", "Leticia"},
		{"João", "Joao"},
		{"Žluťoučký kůň", "Zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeIdentity(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"leticia", "leticia"},
		{"Letícia Loureiro", "leticia-loureiro"},
		{"  diogo  ", "diogo"},
		{"ana--maria", "ana-maria"},
		{"user_01", "user_01"},
		{"../etc/passwd", "etcpasswd"},
		{"Jan   Novák-", "jan-novak"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := SanitizeIdentity(tt.input)
			if err != nil {
				t.Fatalf("SanitizeIdentity(%q) returned error: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("SanitizeIdentity(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeIdentity_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "...", "Unknown", "unknown", "產品"} {
		t.Run(input, func(t *testing.T) {
			_, err := SanitizeIdentity(input)
			if !errors.Is(err, ErrInvalidIdentity) {
				t.Errorf("SanitizeIdentity(%q) error = %v, want ErrInvalidIdentity", input, err)
			}
		})
	}
}

func TestValidIdentity(t *testing.T) {
	if !ValidIdentity("leticia") {
		t.Error("expected leticia to be valid")
	}
	if ValidIdentity("Leticia") {
		t.Error("expected Leticia to need sanitizing")
	}
	if ValidIdentity("a/b") {
		t.Error("expected a/b to be invalid")
	}
}

func TestStorableIdentity(t *testing.T) {
	for _, id := range []string{"leticia", "Diogo", "Letícia", "mary_jane", "a.b"} {
		if !StorableIdentity(id) {
			t.Errorf("StorableIdentity(%q) = false, want true", id)
		}
	}
	for _, id := range []string{"", ".", "..", ".git", "a/b", `a\b`, " x", "x ", "Unknown", "UNKNOWN", "a\x00b", "a\nb"} {
		if StorableIdentity(id) {
			t.Errorf("StorableIdentity(%q) = true, want false", id)
		}
	}
}
