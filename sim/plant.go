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

// Package sim provides a deterministic simulated motor plant that
// implements the servo's sample-source and drive interfaces. It exists
// so the control pipeline can be exercised end to end, converging on
// real dynamics, without any hardware.
package sim

import (
	"github.com/spindrive/bldc/foc"
	"github.com/spindrive/bldc/servo"
)

// Config holds the electrical and mechanical parameters of the simulated
// motor.
type Config struct {
	// Per-phase resistance (ohm) and inductance (H).
	Resistance float64
	Inductance float64
	// TorqueConstant in Nm/A, Poles the magnetic pole count.
	TorqueConstant float64
	Poles          int
	// Rotor inertia (kg m^2), viscous damping (Nm per rad/s) and a
	// constant load torque (Nm).
	Inertia    float64
	Damping    float64
	LoadTorque float64

	BusVoltage  float64
	Temperature float64
	// RateHz is the integration rate; use the servo's control rate.
	RateHz int
}

// DefaultConfig models a small 14 pole outrunner on a 24V bus.
func DefaultConfig() Config {
	return Config{
		Resistance:     0.3,
		Inductance:     2e-4,
		TorqueConstant: 0.1,
		Poles:          14,
		Inertia:        1e-3,
		Damping:        0.01,
		BusVoltage:     24.0,
		Temperature:    30.0,
		RateHz:         10000,
	}
}

// Plant is the simulated motor, inverter and sensors. It implements
// servo.Drive directly; Position and Currents return views implementing
// the sampling interfaces. Step advances the simulation by one tick and
// must be called once per servo tick, after it.
type Plant struct {
	cfg Config

	position float64 // mechanical rad, cumulative
	velocity float64 // mechanical rad/s
	iD       float64
	iQ       float64

	pwm     servo.Vec3
	enabled bool
	faulted bool

	busVoltage  float64
	temperature float64

	nonce  uint32
	cordic foc.Cordic

	// Interface call counters, handy in tests.
	Disables int
	PWMSets  int
}

// New creates a plant at rest at position zero.
func New(cfg Config) *Plant {
	return &Plant{
		cfg:         cfg,
		busVoltage:  cfg.BusVoltage,
		temperature: cfg.Temperature,
	}
}

// Step integrates the motor model over one tick using the PWM commanded
// by the servo during that tick.
func (p *Plant) Step() {
	cfg := p.cfg
	dt := 1.0 / float64(cfg.RateHz)
	pp := float64(cfg.Poles / 2)
	sc := p.cordic.Radians(p.position * pp)

	var vD, vQ float64
	if p.enabled {
		vA := (p.pwm.A - 0.5) * p.busVoltage
		vB := (p.pwm.B - 0.5) * p.busVoltage
		vC := (p.pwm.C - 0.5) * p.busVoltage
		vD, vQ = foc.DQ(sc, vA, vB, vC)
	} else {
		// Gate drivers off: the windings float and the current
		// collapses immediately at this time scale.
		p.iD, p.iQ = 0, 0
	}

	flux := cfg.TorqueConstant / (1.5 * pp)
	omegaE := p.velocity * pp

	if p.enabled {
		l, r := cfg.Inductance, cfg.Resistance
		p.iD += dt * (vD - r*p.iD + omegaE*l*p.iQ) / l
		p.iQ += dt * (vQ - r*p.iQ - omegaE*l*p.iD - omegaE*flux) / l
	}

	torque := 1.5 * pp * flux * p.iQ
	accel := (torque - cfg.Damping*p.velocity - cfg.LoadTorque) / cfg.Inertia
	p.velocity += accel * dt
	p.position += p.velocity * dt

	p.nonce++
}

// Position returns the encoder view of the plant.
func (p *Plant) Position() servo.PositionSource {
	return positionView{p}
}

// Currents returns the current sense view of the plant.
func (p *Plant) Currents() servo.CurrentSource {
	return currentView{p}
}

// Velocity returns the true mechanical velocity, rad/s.
func (p *Plant) Velocity() float64 {
	return p.velocity
}

// QCurrent returns the true q axis current, A.
func (p *Plant) QCurrent() float64 {
	return p.iQ
}

// SetBusVoltage overrides the reported bus voltage, e.g. to inject an
// over-voltage condition.
func (p *Plant) SetBusVoltage(v float64) {
	p.busVoltage = v
}

// SetTemperature overrides the reported drive temperature.
func (p *Plant) SetTemperature(t float64) {
	p.temperature = t
}

// SetDriverFault raises or clears the simulated driver fault line.
func (p *Plant) SetDriverFault(f bool) {
	p.faulted = f
}

// SetLoadTorque changes the constant load torque.
func (p *Plant) SetLoadTorque(t float64) {
	p.cfg.LoadTorque = t
}

// servo.Drive implementation.

// SetPWM latches the commanded duty cycles for the next Step.
func (p *Plant) SetPWM(pwm servo.Vec3) {
	p.pwm = pwm
	p.PWMSets++
}

// Enable turns the gate drivers on.
func (p *Plant) Enable() {
	p.enabled = true
}

// Disable turns the gate drivers off and lets the currents collapse.
func (p *Plant) Disable() {
	p.enabled = false
	p.Disables++
}

// Enabled reports the gate driver state.
func (p *Plant) Enabled() bool {
	return p.enabled
}

// Faulted reports the simulated driver fault line.
func (p *Plant) Faulted() bool {
	return p.faulted
}

// BusVoltage reports the simulated bus voltage.
func (p *Plant) BusVoltage() float64 {
	return p.busVoltage
}

// Temperature reports the simulated drive temperature.
func (p *Plant) Temperature() float64 {
	return p.temperature
}

type positionView struct {
	p *Plant
}

func (v positionView) StartSample() {}

func (v positionView) Collect() servo.PositionSample {
	return servo.PositionSample{
		Position: v.p.position,
		Velocity: v.p.velocity,
		Nonce:    v.p.nonce,
		Active:   true,
	}
}

type currentView struct {
	p *Plant
}

func (v currentView) StartSample() {}

func (v currentView) Collect() servo.CurrentSample {
	pp := float64(v.p.cfg.Poles / 2)
	sc := v.p.cordic.Radians(v.p.position * pp)
	a, b, c := foc.InverseDQ(sc, v.p.iD, v.p.iQ)
	return servo.CurrentSample{
		Phase:  servo.Vec3{A: a, B: b, C: c},
		Nonce:  v.p.nonce,
		Active: true,
	}
}
