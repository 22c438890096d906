package simulator

import (
	"fmt"
	"math"
)

// Boundary is a linear time-varying decision bound. Slope is in degrees.
type Boundary struct {
	Slope     float64 `json:"slope" yaml:"slope"`
	Intercept float64 `json:"intercept" yaml:"intercept"`
}

func (b Boundary) String() string {
	return fmt.Sprintf("(%.3f°, %.3f)", b.Slope, b.Intercept)
}

// ClampIntercept 返回截距不小于 0 的边界。
func (b Boundary) ClampIntercept() Boundary {
	if b.Intercept <= 0 {
		b.Intercept = 0
	}
	return b
}

// ThresholdCurve 返回 t=0..maxStep-1 的上边界 floor(rad(slope)*t+intercept)，下边界为其逐点取负。
func ThresholdCurve(b Boundary, maxStep int) (upper, lower []int) {
	if maxStep <= 0 {
		return nil, nil
	}
	rad := b.Slope * math.Pi / 180
	upper = make([]int, maxStep)
	lower = make([]int, maxStep)
	for t := 0; t < maxStep; t++ {
		v := int(math.Floor(rad*float64(t) + b.Intercept))
		upper[t] = v
		lower[t] = -v
	}
	return upper, lower
}
