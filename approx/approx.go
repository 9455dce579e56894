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

// Package approx provides fast polynomial approximations of the base-2
// transcendental functions used in the torque saturation model. Both
// functions are monotonic, continuous across binade boundaries to within
// the stated error, and run in constant time with no table lookups.
//
// Accuracy: Log2 is within 2e-3 absolute of math.Log2, Pow2 is within
// 2e-4 relative of math.Exp2. Callers that can afford the cycles may
// substitute the exact standard library functions; the round trip
// Pow2(Log2(x)) stays within 0.2% either way.
package approx

import "math"

// Log2 returns an approximation of the base-2 logarithm of x for x > 0.
// The mantissa is fit with a cubic polynomial, the exponent is exact.
func Log2(x float64) float64 {
	f, e := math.Frexp(x) // f in [0.5, 1)
	y := 1.23149591368684
	y = y*f - 4.11852516267426
	y = y*f + 6.02197014179219
	y = y*f - 3.13396450166353
	return y + float64(e)
}

// Pow2 returns an approximation of 2 raised to the power x. The fractional
// part is fit with a cubic polynomial constrained to be exact (to 3e-7) at
// integer arguments, which keeps the result monotonic across them.
func Pow2(x float64) float64 {
	e := math.Floor(x)
	f := x - e // in [0, 1)
	y := 1.0 + f*(0.6960656421638072+
		f*(0.224494337302845+
			f*0.07944023841053369))
	return math.Ldexp(y, int(e))
}
