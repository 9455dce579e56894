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

package servo

// Mode is the servo state machine state. Exactly one mode is active at a
// time. Output PWM is forced to the safe disabled value whenever the mode
// is ModeStopped or ModeFault.
type Mode uint8

// All the states of the servo state machine.
const (
	// ModeStopped is the initial state: outputs disabled, no control.
	ModeStopped Mode = iota
	// ModeFault latches a fault code until an explicit re-arm.
	ModeFault
	// ModeCalibrating drives the encoder alignment excitation pattern.
	ModeCalibrating
	// ModePWM applies commanded phase duty cycles directly.
	ModePWM
	// ModeVoltage applies commanded phase voltages.
	ModeVoltage
	// ModeVoltageDQ applies commanded rotating frame voltages.
	ModeVoltageDQ
	// ModeTorque closes the d/q current loops around a torque target.
	ModeTorque
	// ModeVelocity cascades a velocity loop onto the current loops.
	ModeVelocity
	// ModePosition cascades position onto velocity onto current.
	ModePosition
)

func (m Mode) String() string {
	switch m {
	case ModeStopped:
		return "stopped"
	case ModeFault:
		return "fault"
	case ModeCalibrating:
		return "calibrating"
	case ModePWM:
		return "pwm"
	case ModeVoltage:
		return "voltage"
	case ModeVoltageDQ:
		return "voltage_dq"
	case ModeTorque:
		return "torque"
	case ModeVelocity:
		return "velocity"
	case ModePosition:
		return "position"
	}
	return "unsupported"
}

// active reports whether the mode runs the control pipeline.
func (m Mode) active() bool {
	switch m {
	case ModePWM, ModeVoltage, ModeVoltageDQ, ModeTorque, ModeVelocity, ModePosition:
		return true
	}
	return false
}

// commandable reports whether external commands may select this mode.
func (m Mode) commandable() bool {
	return m.active()
}
