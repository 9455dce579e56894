/*
Copyright (c) The SpinDrive Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package foc provides the field-oriented-control math primitives: the
// trigonometric oracle used by the control loop and the Clarke/Park/DQ
// reference frame transforms. Everything here is pure and allocation free
// so it is safe to call from the control tick.
package foc

import "math"

// q31 angles encode a fraction of a full turn in a signed 32 bit integer,
// mapping the whole int32 range onto [-pi, pi). Overflow wraps exactly one
// turn, so callers can measure angle deltas across the wrap boundary with
// plain unsigned subtraction.
const q31ToRad = math.Pi / 2147483648.0

// SinCos caches the result of sin and cos on a given angle.
type SinCos struct {
	Sin float64
	Cos float64
}

// Cordic computes sine/cosine pairs for q31 angles. The reference hardware
// uses a CORDIC accelerator for this; the pure Go version goes through the
// standard library after converting the angle to radians. Either way the
// result is accurate to better than 1e-4 and takes constant time: there is
// no branching on the magnitude of the input.
type Cordic struct{}

// Theta returns the sine and cosine of a q31 angle.
func (c Cordic) Theta(theta int32) SinCos {
	rad := float64(theta) * q31ToRad
	return SinCos{Sin: math.Sin(rad), Cos: math.Cos(rad)}
}

// Radians returns the sine and cosine of an angle in radians, passing it
// through the same q31 quantization as Theta.
func (c Cordic) Radians(theta float64) SinCos {
	return c.Theta(RadiansToQ31(theta))
}

// RadiansToQ31 converts an angle in radians to the q31 encoding, wrapping
// into [-pi, pi).
func RadiansToQ31(theta float64) int32 {
	turns := theta * (1.0 / (2.0 * math.Pi))
	frac := turns - math.Floor(turns)
	return int32(uint32(uint64(math.Round(frac * 4294967296.0))))
}

// Q31ToRadians converts a q31 angle to radians in [-pi, pi).
func Q31ToRadians(theta int32) float64 {
	return float64(theta) * q31ToRad
}
