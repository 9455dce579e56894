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

import (
	"math"

	"github.com/spindrive/bldc/pid"
)

// Vec3 is a three-phase quantity.
type Vec3 struct {
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
	C float64 `yaml:"c"`
}

// Motor holds the electrical parameters of the attached motor.
type Motor struct {
	// Poles is the number of magnetic poles; pole pairs are Poles/2.
	Poles int `yaml:"poles"`
	// TorqueConstant relates phase current to torque in the linear
	// region, Nm/A.
	TorqueConstant float64 `yaml:"torque_constant"`
	// RotationCurrentCutoff is the current where magnetic saturation
	// begins, in A.
	RotationCurrentCutoff float64 `yaml:"rotation_current_cutoff"`
	// RotationCurrentScale and RotationTorqueScale shape the saturation
	// region of the torque model.
	RotationCurrentScale float64 `yaml:"rotation_current_scale"`
	RotationTorqueScale  float64 `yaml:"rotation_torque_scale"`
}

// configured reports whether enough of the motor is known to run closed
// loop control. A brushless motor has an even pole count; anything else
// would make the pole pair count degenerate.
func (m Motor) configured() bool {
	return m.Poles >= 2 && m.Poles%2 == 0 && m.TorqueConstant > 0
}

// PositionConfig bounds the allowed mechanical position, in radians.
// NaN disables the corresponding bound.
type PositionConfig struct {
	PositionMin float64 `yaml:"position_min"`
	PositionMax float64 `yaml:"position_max"`
}

// Config is the full controller configuration. It is immutable during a
// tick and replaced only between ticks through Servo.SetConfig; changing
// it while armed latches ErrcConfigChanged.
type Config struct {
	// RateHz is the fixed control tick rate.
	RateHz int `yaml:"rate_hz"`

	// Bus voltage fault window, in volts.
	MaxVoltage float64 `yaml:"max_voltage"`
	MinVoltage float64 `yaml:"min_voltage"`

	// MaxTemperature faults the controller; DerateTemperature is where
	// torque derating begins.
	MaxTemperature    float64 `yaml:"max_temperature"`
	DerateTemperature float64 `yaml:"derate_temperature"`

	// Output limits.
	MaxCurrent  float64 `yaml:"max_current"`
	MaxTorque   float64 `yaml:"max_torque"`
	MaxVelocity float64 `yaml:"max_velocity"`
	PWMMin      float64 `yaml:"pwm_min"`
	PWMMax      float64 `yaml:"pwm_max"`

	// SampleTimeoutTicks is how many ticks a position or current sample
	// nonce may stall before the source is declared dead.
	SampleTimeoutTicks int `yaml:"sample_timeout_ticks"`
	// CommandTimeoutTicks stops the servo if no fresh command arrives in
	// time. 0 disables the watchdog.
	CommandTimeoutTicks int `yaml:"command_timeout_ticks"`

	// Calibration excitation. CalibrationTicks of 0 skips calibration
	// entirely and Start enters a control mode directly.
	CalibrationTicks   int     `yaml:"calibration_ticks"`
	CalibrationVoltage float64 `yaml:"calibration_voltage"`
	CalibrationCurrent float64 `yaml:"calibration_current"`
	// CalibrationMinMovement is the least encoder movement, in radians,
	// accepted as proof the motor followed the excitation.
	CalibrationMinMovement float64 `yaml:"calibration_min_movement"`

	PositionPID   pid.Config         `yaml:"position_pid"`
	VelocityPID   pid.Config         `yaml:"velocity_pid"`
	DQPID         pid.Config         `yaml:"dq_pid"`
	CalibrationPI pid.SimplePIConfig `yaml:"calibration_pi"`

	Position PositionConfig `yaml:"position"`
	Motor    Motor          `yaml:"motor"`
}

// DefaultConfig returns a conservative configuration for a small gimbal
// class motor. Gains still need tuning per motor.
func DefaultConfig() Config {
	positionPID := pid.DefaultConfig()
	positionPID.Kp = 20.0
	positionPID.Kd = 2.0
	positionPID.Sign = -1.0

	velocityPID := pid.DefaultConfig()
	velocityPID.Kp = 0.2
	velocityPID.Ki = 2.0
	velocityPID.ILimit = 1.0
	velocityPID.Sign = -1.0

	dqPID := pid.DefaultConfig()
	dqPID.Kp = 1.0
	dqPID.Ki = 1600.0
	dqPID.ILimit = 12.0
	dqPID.Sign = -1.0

	return Config{
		RateHz:              10000,
		MaxVoltage:          28.0,
		MinVoltage:          10.0,
		MaxTemperature:      75.0,
		DerateTemperature:   60.0,
		MaxCurrent:          30.0,
		MaxTorque:           2.0,
		MaxVelocity:         200.0,
		PWMMin:              0.02,
		PWMMax:              0.98,
		SampleTimeoutTicks:  8,
		CommandTimeoutTicks: 0,

		CalibrationTicks:       1000,
		CalibrationVoltage:     3.0,
		CalibrationCurrent:     6.0,
		CalibrationMinMovement: 0.2,

		PositionPID:   positionPID,
		VelocityPID:   velocityPID,
		DQPID:         dqPID,
		CalibrationPI: pid.SimplePIConfig{Kp: 0.5, Ki: 200.0},

		Position: PositionConfig{
			PositionMin: math.NaN(),
			PositionMax: math.NaN(),
		},
	}
}

// CommandData is the externally supplied setpoint. The caller owns it;
// Servo.Command copies it and applies the copy atomically at the next
// tick boundary.
type CommandData struct {
	Mode Mode

	// Position target in radians, Velocity in rad/s. Used by
	// ModePosition; Velocity doubles as the feedforward rate.
	Position float64
	Velocity float64

	// Torque target in Nm for ModeTorque, also the feedforward term for
	// the cascaded modes.
	Torque            float64
	FeedforwardTorque float64

	// DCurrent is the d axis target, normally zero, non-zero for field
	// weakening.
	DCurrent float64

	// DVoltage/QVoltage drive ModeVoltageDQ, Voltage drives ModeVoltage,
	// PWM drives ModePWM.
	DVoltage float64
	QVoltage float64
	Voltage  Vec3
	PWM      Vec3

	// MaxTorque overrides the configured torque limit when non-zero
	// (never raising it).
	MaxTorque float64

	// KpScale and KdScale de-rate the position loop gains for this
	// command. 0 means 1.
	KpScale float64
	KdScale float64

	// TimeoutTicks overrides the configured command watchdog for this
	// command when non-zero.
	TimeoutTicks int
}

// Status is the externally visible snapshot, rewritten at the end of
// every tick.
type Status struct {
	Mode  Mode
	Fault Errc

	Position float64
	Velocity float64
	Torque   float64

	DCurrent float64 `telemetry:"i_d_a"`
	QCurrent float64 `telemetry:"i_q_a"`

	BusVoltage  float64
	Temperature float64

	// Active reports whether position feedback is valid.
	Active bool

	TickCount uint64
	Overruns  uint32
}

// Control is the per-tick output of the pipeline, recomputed from
// scratch each cycle. It never carries state across ticks.
type Control struct {
	PWM     Vec3
	Voltage Vec3

	DV float64 `telemetry:"d_v"`
	QV float64 `telemetry:"q_v"`

	DCurrent float64 `telemetry:"i_d_a"`
	QCurrent float64 `telemetry:"i_q_a"`

	// QCompCurrent is the feedforward/compensation current folded into
	// the q axis target.
	QCompCurrent float64 `telemetry:"q_comp_a"`
	Torque       float64 `telemetry:"torque_nm"`
}

// Clear zeroes the control outputs.
func (c *Control) Clear() {
	*c = Control{}
}
