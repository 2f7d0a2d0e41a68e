package utils

import "testing"

func TestNormalizePlate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already canonical", "AB123CD", "AB123CD"},
		{"lowercase with separators", "ab-123 cd", "AB123CD"},
		{"dots and spaces", " xy.789.zw ", "XY789ZW"},
		{"valid plate never corrected", "OB123CD", "OB123CD"},
		{"ambiguous letter in digit block repaired", "AB1O3CD", "AB103CD"},
		{"ambiguous digit in letter block repaired", "AB123C0", "AB123CO"},
		{"ambiguous digit leading the plate repaired", "5B123CD", "SB123CD"},
		{"ambiguous on both sides of the digit block", "AB1O3C0", "AB103CO"},
		{"empty", "   ", ""},
		{"punctuation only", "--..", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizePlate(tc.in); got != tc.want {
				t.Errorf("NormalizePlate(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizePlateKeepsUnrepairable(t *testing.T) {
	// not coercible into the canonical shape; returned stripped but intact
	if got := NormalizePlate("A1B2C3D4E5"); got != "A1B2C3D4E5" {
		t.Errorf("got %q", got)
	}
}

func TestWithinEditDistanceOne(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"AB123CD", "AB123CD", true},
		{"AB123CD", "AB123CO", true},
		{"AB123CD", "AB123C", true},
		{"AB123CD", "AB1235CD", true},
		{"AB123CD", "AB124CE", false},
		{"AB123CD", "AB123CDXX", false},
		{"", "A", true},
		{"AB", "BA", false},
	}
	for _, tc := range cases {
		if got := WithinEditDistanceOne(tc.a, tc.b); got != tc.want {
			t.Errorf("WithinEditDistanceOne(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestWithinEditDistance(t *testing.T) {
	cases := []struct {
		a, b string
		max  int
		want bool
	}{
		{"AB123CD", "AB123CD", 0, true},
		{"AB123CD", "AB123CO", 0, false},
		{"AB123CD", "AB124CE", 1, false},
		{"AB123CD", "AB124CE", 2, true},
		{"AB123CD", "AB123CDXX", 2, true},
		{"AB123CD", "XY789ZW", 2, false},
		{"AB123CD", "CD123AB", 4, true},
	}
	for _, tc := range cases {
		if got := WithinEditDistance(tc.a, tc.b, tc.max); got != tc.want {
			t.Errorf("WithinEditDistance(%q, %q, %d) = %v, want %v", tc.a, tc.b, tc.max, got, tc.want)
		}
	}
}
