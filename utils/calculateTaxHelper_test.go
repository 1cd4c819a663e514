package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculateTaxAmount(t *testing.T) {
	cases := []struct {
		amount   string
		rate     string
		expected string
	}{
		{"300", "5", "15"},
		{"500", "5", "25"},
		{"100", "0", "0"},
		{"0", "5", "0"},
		{"199.99", "7.5", "14.99925"},
	}
	for _, tc := range cases {
		amount := decimal.RequireFromString(tc.amount)
		rate := decimal.RequireFromString(tc.rate)
		got := CalculateTaxAmount(amount, rate)
		if !got.Equal(decimal.RequireFromString(tc.expected)) {
			t.Fatalf("CalculateTaxAmount(%s, %s) expected %s, got %s", tc.amount, tc.rate, tc.expected, got)
		}
	}
}
