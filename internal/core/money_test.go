package core

import (
	"strings"
	"testing"
)

func TestIsDecimalInput(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"", true},
		{"12", true},
		{"12.5", true},
		{"12,5", true},
		{".5", true},
		{"5.", true},
		{",", true},
		{"1.2.3", false},
		{"1,2.3", false},
		{"-1", false},
		{"1e3", false},
		{" 1", false},
		{"abc", false},
	}
	for _, tc := range cases {
		if got := IsDecimalInput(tc.in); got != tc.ok {
			t.Errorf("IsDecimalInput(%q) = %v, want %v", tc.in, got, tc.ok)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"12,5", 12.5, true},
		{"12.5", 12.5, true},
		{"", 0, true},
		{".", 0, true},
		{",5", 0.5, true},
		{"40", 40, true},
		{"1.2.3", 0, false},
		{"x", 0, false},
		{strings.Repeat("9", 400), 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimal(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ParseDecimal(%q) unexpected error %v", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseDecimal(%q) expected error", tc.in)
		}
		if got != tc.out {
			t.Errorf("ParseDecimal(%q) = %v, want %v", tc.in, got, tc.out)
		}
	}
}

func TestParseLooseNumber(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"55,5", 55.5, true},
		{" 42 ", 42, true},
		{"-3.5", -3.5, true},
		{"", 0, false},
		{"abc", 0, false},
		{"1" + strings.Repeat("0", 400), 0, false},
		{"-" + strings.Repeat("9", 400), 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseLooseNumber(tc.in)
		if ok != tc.ok || got != tc.out {
			t.Errorf("ParseLooseNumber(%q) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.out, tc.ok)
		}
	}
}

func TestRound(t *testing.T) {
	cases := []struct {
		v      float64
		places int32
		want   float64
	}{
		{1.5333333, 3, 1.533},
		{1.0005, 3, 1.001},
		{7.6530612, 1, 7.7},
		{7.25, 1, 7.3},
		{0, 3, 0},
	}
	for _, tc := range cases {
		if got := Round(tc.v, tc.places); got != tc.want {
			t.Errorf("Round(%v, %d) = %v, want %v", tc.v, tc.places, got, tc.want)
		}
	}
}
