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

package foc

const (
	sqrt3 = 1.7320508075688772
	// sin(120 degrees), the coefficient of the +-120 degree phase offsets
	// in the fused DQ transform.
	sqrt3_4 = 0.8660254037844386
)

// Clarke converts three-phase quantities (a, b, c) to the two-phase
// stationary frame (x, y). It assumes a + b + c is approximately zero but
// does not enforce it.
func Clarke(a, b, c float64) (x, y float64) {
	x = (2.0*a - b - c) * (1.0 / 3.0)
	y = (b - c) * (1.0 / sqrt3)
	return x, y
}

// InverseClarke converts stationary frame (x, y) quantities back into a
// balanced three-phase triple.
func InverseClarke(x, y float64) (a, b, c float64) {
	a = x
	b = (-x + sqrt3*y) * 0.5
	c = (-x - sqrt3*y) * 0.5
	return a, b, c
}

// Park rotates stationary frame (x, y) quantities into the rotating (d, q)
// frame given the sine and cosine of the electrical angle.
func Park(sc SinCos, x, y float64) (d, q float64) {
	d = sc.Cos*x + sc.Sin*y
	q = sc.Cos*y - sc.Sin*x
	return d, q
}

// InversePark rotates (d, q) quantities back into the stationary frame.
func InversePark(sc SinCos, d, q float64) (x, y float64) {
	x = sc.Cos*d - sc.Sin*q
	y = sc.Cos*q + sc.Sin*d
	return x, y
}

// DQ is the fused Clarke and Park transform, converting three-phase
// samples directly into the rotating frame with the amplitude invariant
// 2/3 scaling.
func DQ(sc SinCos, a, b, c float64) (d, q float64) {
	d = (2.0 / 3.0) * (a*sc.Cos +
		(sqrt3_4*sc.Sin-0.5*sc.Cos)*b +
		(-sqrt3_4*sc.Sin-0.5*sc.Cos)*c)
	q = (2.0 / 3.0) * (-sc.Sin*a -
		(-sqrt3_4*sc.Cos-0.5*sc.Sin)*b -
		(sqrt3_4*sc.Cos-0.5*sc.Sin)*c)
	return d, q
}

// InverseDQ converts rotating frame (d, q) quantities into a balanced
// three-phase triple. For any angle and any balanced input triple,
// InverseDQ(DQ(a, b, c)) recovers (a, b, c) to numerical precision.
func InverseDQ(sc SinCos, d, q float64) (a, b, c float64) {
	a = sc.Cos*d - sc.Sin*q
	b = (sqrt3_4*sc.Sin-0.5*sc.Cos)*d - (-sqrt3_4*sc.Cos-0.5*sc.Sin)*q
	c = (-sqrt3_4*sc.Sin-0.5*sc.Cos)*d - (sqrt3_4*sc.Cos-0.5*sc.Sin)*q
	return a, b, c
}
