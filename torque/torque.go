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

// Package torque converts between phase current and shaft torque for a
// given motor. Below the configured cutoff current the relationship is
// linear in the torque constant; above it the iron saturates and torque
// only grows logarithmically with the excess current. The mapping is
// continuous at the cutoff, odd symmetric and monotonic, and the inverse
// reverses the linear region exactly.
package torque

import (
	"math"

	"github.com/spindrive/bldc/approx"
)

// Model holds the saturation parameters of one motor.
type Model struct {
	// TorqueConstant is the linear region constant, in Nm/A.
	TorqueConstant float64
	// CurrentCutoff is the current at which saturation begins, in A.
	CurrentCutoff float64
	// CurrentScale scales the excess current inside the logarithm.
	CurrentScale float64
	// TorqueScale scales the saturated torque contribution, in Nm.
	TorqueScale float64
}

// CurrentToTorque returns the torque produced at the given phase current.
func (m Model) CurrentToTorque(current float64) float64 {
	// The saturation term is evaluated unconditionally so the execution
	// time does not change when the operating point crosses the cutoff.
	rotationExtra := m.TorqueScale *
		approx.Log2(1.0+math.Max(0.0, math.Abs(current)-m.CurrentCutoff)*m.CurrentScale)
	if math.Abs(current) < m.CurrentCutoff {
		return current * m.TorqueConstant
	}
	return math.Copysign(m.CurrentCutoff*m.TorqueConstant+rotationExtra, current)
}

// TorqueToCurrent returns the phase current required for the given
// torque, inverting CurrentToTorque.
func (m Model) TorqueToCurrent(torque float64) float64 {
	cutoffTorque := m.CurrentCutoff * m.TorqueConstant
	a := (math.Abs(torque) - cutoffTorque) / m.TorqueScale
	rotationExtra := (approx.Pow2(a) - 1.0) / m.CurrentScale
	if math.Abs(torque) < cutoffTorque {
		return torque / m.TorqueConstant
	}
	return math.Copysign(m.CurrentCutoff+rotationExtra, torque)
}
