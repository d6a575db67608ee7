package unit

import "errors"

var ErrDivideByZero = errors.New("cannot divide by zero")

// Calculator has one branch per outcome so coverage shows untested paths
type Calculator struct{}

func (Calculator) Add(a, b float64) float64 {
	return a + b
}

func (Calculator) Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	return a / b, nil
}

func (Calculator) IsPositive(n float64) bool {
	if n > 0 {
		return true
	}
	return false
}
