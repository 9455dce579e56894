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

package torque

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func testModel() Model {
	return Model{
		TorqueConstant: 0.1,
		CurrentCutoff:  10.0,
		CurrentScale:   0.36,
		TorqueScale:    0.5,
	}
}

func TestLinearRegionRoundTrip(t *testing.T) {
	m := testModel()
	for current := -9.9; current < 10.0; current += 0.7 {
		torque := m.CurrentToTorque(current)
		require.InDelta(t, current*m.TorqueConstant, torque, 1e-12)
		require.InDelta(t, current, m.TorqueToCurrent(torque), 1e-9)
	}
}

func TestSaturationRoundTrip(t *testing.T) {
	m := testModel()
	// Including 10x the cutoff current.
	for _, current := range []float64{10.5, 15, 25, 50, 100} {
		torque := m.CurrentToTorque(current)
		back := m.TorqueToCurrent(torque)
		require.InEpsilon(t, current, back, 0.01, "current=%v", current)
	}
}

func TestSaturationBendsTheCurve(t *testing.T) {
	m := testModel()
	// Above the cutoff, torque must fall short of the linear
	// extrapolation.
	torque := m.CurrentToTorque(50.0)
	require.Less(t, torque, 50.0*m.TorqueConstant)
	require.Greater(t, torque, m.CurrentCutoff*m.TorqueConstant)
}

func TestMonotonic(t *testing.T) {
	m := testModel()
	prev := math.Inf(-1)
	for current := -100.0; current <= 100.0; current += 0.1 {
		torque := m.CurrentToTorque(current)
		require.Greater(t, torque, prev, "current=%v", current)
		prev = torque
	}

	prev = math.Inf(-1)
	for torque := -3.0; torque <= 3.0; torque += 0.01 {
		current := m.TorqueToCurrent(torque)
		require.Greater(t, current, prev, "torque=%v", torque)
		prev = current
	}
}

func TestSignSymmetry(t *testing.T) {
	m := testModel()
	for _, current := range []float64{0.5, 5, 9.99, 12, 42} {
		require.InDelta(t, -m.CurrentToTorque(current), m.CurrentToTorque(-current), 1e-12)
	}
	for _, torque := range []float64{0.1, 0.9, 1.5, 2.5} {
		require.InDelta(t, -m.TorqueToCurrent(torque), m.TorqueToCurrent(-torque), 1e-12)
	}
}

func TestContinuityAtCutoff(t *testing.T) {
	m := testModel()
	below := m.CurrentToTorque(m.CurrentCutoff - 1e-6)
	above := m.CurrentToTorque(m.CurrentCutoff + 1e-6)
	// The approximate logarithm leaves a sub-0.1% seam at the boundary.
	require.InDelta(t, below, above, 2e-3*math.Abs(below)+1e-6)
}
