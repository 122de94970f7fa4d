package util

import "testing"

func TestCapitalizeWords(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"apple", "Apple"},
		{"screen damage", "Screen Damage"},
		{"iphone 12", "Iphone 12"},
		{"Samsung", "Samsung"},
		{"", ""},
		{"one-two", "One-Two"},
	}
	for _, c := range cases {
		if got := CapitalizeWords(c.in); got != c.want {
			t.Errorf("CapitalizeWords(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatINR(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{12345, "12,345"},
		{123456, "1,23,456"},
		{1234567, "12,34,567"},
		{12345678, "1,23,45,678"},
		{-4500, "-4,500"},
	}
	for _, c := range cases {
		if got := FormatINR(c.in); got != c.want {
			t.Errorf("FormatINR(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
