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

package approx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog2Accuracy(t *testing.T) {
	for x := 0.001; x < 1000; x *= 1.01 {
		require.InDelta(t, math.Log2(x), Log2(x), 2e-3, "x=%v", x)
	}
}

func TestPow2Accuracy(t *testing.T) {
	for x := -20.0; x < 20.0; x += 0.013 {
		exact := math.Exp2(x)
		require.InEpsilon(t, exact, Pow2(x), 2e-4, "x=%v", x)
	}
}

func TestLog2Monotonic(t *testing.T) {
	prev := Log2(0.001)
	for x := 0.001 * 1.002; x < 1000; x *= 1.002 {
		y := Log2(x)
		require.Greater(t, y, prev, "x=%v", x)
		prev = y
	}
}

func TestPow2Monotonic(t *testing.T) {
	prev := Pow2(-30.0)
	for x := -30.0 + 0.004; x < 30.0; x += 0.004 {
		y := Pow2(x)
		require.Greater(t, y, prev, "x=%v", x)
		prev = y
	}
}

func TestRoundTrip(t *testing.T) {
	for x := 0.01; x < 100; x *= 1.07 {
		require.InEpsilon(t, x, Pow2(Log2(x)), 2e-3, "x=%v", x)
	}
}
