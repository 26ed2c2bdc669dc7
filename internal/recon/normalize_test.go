package recon

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeMerchant(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"UBER *TRIP", "uber trip"},
		{"  Uber   Trip ", "uber trip"},
		{"AMZN Mktp US*RT4", "amzn mktp us rt4"},
		{"STARBUCKS #1234", "starbucks 1234"},
		{"", ""},
		{"***", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeMerchant(tt.input); got != tt.want {
				t.Errorf("NormalizeMerchant(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"UBER", "uber", 1, 1},
		{"UBER *TRIP", "Uber Trip", 1, 1},
		{"UBER", "LYFT", 0, 0.3},
		{"STARBUCKS", "STARBUCKS COFFEE", 0.5, 1},
		{"", "", 1, 1},
		{"UBER", "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Similarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestMerchantsCompatible(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"UBER", "UBER *TRIP", true},
		{"UBER *TRIP", "UBER", true},
		{"UBER", "uber", true},
		{"UBER", "LYFT", false},
		{"GROCERY MART", "GROCERY MART INC", true},
		{"", "UBER", false},
		{"AB", "AB LONG DESCRIPTOR", false}, // too short for the prefix rule
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := merchantsCompatible(tt.a, tt.b); got != tt.want {
				t.Errorf("merchantsCompatible(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAmountsEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"-12.50", "-12.50", true},
		{"-12.50", "-12.501", true}, // sub-cent noise rounds away
		{"-12.50", "-12.51", false},
		{"0", "0.00", true},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			a := decimal.RequireFromString(tt.a)
			b := decimal.RequireFromString(tt.b)
			if got := amountsEqual(a, b); got != tt.want {
				t.Errorf("amountsEqual(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestOppositeAmounts(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"-500.00", "500.00", true},
		{"500.00", "-500.00", true},
		{"-500.00", "-500.00", false},
		{"-500.00", "499.99", false},
		{"0", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			a := decimal.RequireFromString(tt.a)
			b := decimal.RequireFromString(tt.b)
			if got := oppositeAmounts(a, b); got != tt.want {
				t.Errorf("oppositeAmounts(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
