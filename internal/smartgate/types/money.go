package types

import "fmt"

// Cents is an amount in minor currency units (sen for MYR).
type Cents int64

func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Float returns the amount in major units. Only for display and wire formats
// that carry decimals; arithmetic stays in Cents.
func (c Cents) Float() float64 { return float64(c) / 100 }

// CentsFromFloat rounds a major-unit amount to the nearest minor unit.
func CentsFromFloat(f float64) Cents {
	if f < 0 {
		return -CentsFromFloat(-f)
	}
	return Cents(f*100 + 0.5)
}
