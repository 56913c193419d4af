package models

import "fmt"

// Estimate is a single point on the planning poker scale.
type Estimate int

// The fixed estimation scale.
const (
	EstimateOne   Estimate = 1
	EstimateTwo   Estimate = 2
	EstimateThree Estimate = 3
	EstimateFive  Estimate = 5
	EstimateSeven Estimate = 7
)

// Scale lists every accepted estimate in ascending order.
var Scale = []Estimate{EstimateOne, EstimateTwo, EstimateThree, EstimateFive, EstimateSeven}

// Valid reports whether e is on the estimation scale.
func (e Estimate) Valid() bool {
	switch e {
	case EstimateOne, EstimateTwo, EstimateThree, EstimateFive, EstimateSeven:
		return true
	default:
		return false
	}
}

// ParseEstimate converts a raw integer into an Estimate.
func ParseEstimate(v int) (Estimate, error) {
	e := Estimate(v)
	if !e.Valid() {
		return 0, fmt.Errorf("estimate %d is not on the scale %v", v, Scale)
	}
	return e, nil
}
