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

// Package pid implements the feedback-loop primitives used to cascade
// position, velocity and current control: a full PID controller with
// desired-value rate limiting and anti-windup, a reduced PID without the
// integral de-rating hook, and a minimal PI controller. All of them are
// deterministic functions of (Config, State, inputs) at an explicitly
// supplied update rate; none of them read a clock.
package pid

import "math"

// Config holds the gains and limits for the PID and SimplePID
// controllers. It is immutable during a control tick.
type Config struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
	// IRateLimit bounds how fast the integral may accumulate, in units of
	// output per second. Values <= 0 disable the limit.
	IRateLimit float64 `yaml:"iratelimit"`
	// ILimit clamps the integral accumulator to +-ILimit.
	ILimit float64 `yaml:"ilimit"`
	// MaxDesiredRate bounds how fast the accepted desired value may move,
	// per second. 0 is unlimited.
	MaxDesiredRate float64 `yaml:"max_desired_rate"`
	// Sign is the direction of the controller, +1 or -1.
	Sign float64 `yaml:"sign"`
}

// DefaultConfig returns a Config with the limits disabled and a positive
// sign.
func DefaultConfig() Config {
	return Config{IRateLimit: -1.0, Sign: 1.0}
}

// State is the mutable per-loop state. Everything past Desired is not
// state proper, only logged so telemetry can expose the intermediate
// terms of the last update.
type State struct {
	Integral float64
	// Desired is the last accepted desired value. It starts as NaN so
	// that the first command after a Clear is accepted without rate
	// limiting; there is no prior reference to limit against.
	Desired float64

	Error     float64
	ErrorRate float64
	P         float64
	D         float64
	PD        float64
	Command   float64
}

// Clear resets the loop state. Call it whenever the loop changes mode or
// re-arms, so stale integral or desired values cannot kick the output.
func (s *State) Clear() {
	*s = State{Desired: math.NaN()}
}

// Options scale the configured gains for one Apply call, letting a caller
// de-rate a loop (for example near voltage saturation) without mutating
// its Config.
type Options struct {
	KpScale float64
	KdScale float64
	KiScale float64
}

// DefaultOptions returns Options that apply the configured gains
// unchanged.
func DefaultOptions() Options {
	return Options{KpScale: 1.0, KdScale: 1.0, KiScale: 1.0}
}

// PID is the full controller. It operates on externally owned Config and
// State so both can be shared with telemetry.
type PID struct {
	config *Config
	state  *State
}

// NewPID creates a controller around the given config and state. The
// state is cleared.
func NewPID(config *Config, state *State) *PID {
	state.Clear()
	return &PID{config: config, state: state}
}

// Apply runs one update at the configured gains. See ApplyOptions.
func (p *PID) Apply(measured, desired, measuredRate, desiredRate float64, rateHz int) float64 {
	return p.ApplyOptions(measured, desired, measuredRate, desiredRate, rateHz, DefaultOptions())
}

// ApplyOptions runs one controller update and returns the output command.
// The desired value is rate limited toward the input by at most
// MaxDesiredRate/rateHz per call once a previous desired value exists;
// the integral update is rate limited, then the accumulator is clamped.
func (p *PID) ApplyOptions(measured, desired, measuredRate, desiredRate float64, rateHz int, opts Options) float64 {
	c, s := p.config, p.state

	if c.MaxDesiredRate != 0.0 && !math.IsNaN(s.Desired) {
		maxStep := c.MaxDesiredRate / float64(rateHz)
		step := limit(desired-s.Desired, -maxStep, maxStep)
		desired = s.Desired + step
		desiredRate = limit(desiredRate, -c.MaxDesiredRate, c.MaxDesiredRate)
	}

	s.Desired = desired
	s.Error = measured - desired
	s.ErrorRate = measuredRate - desiredRate

	maxIUpdate := c.IRateLimit / float64(rateHz)
	toUpdateI := s.Error * c.Ki / float64(rateHz)
	if maxIUpdate > 0.0 {
		toUpdateI = limit(toUpdateI, -maxIUpdate, maxIUpdate)
	}

	s.Integral = limit(s.Integral+toUpdateI, -c.ILimit, c.ILimit)

	s.P = opts.KpScale * c.Kp * s.Error
	s.D = opts.KdScale * c.Kd * s.ErrorRate
	s.PD = s.P + s.D

	s.Command = c.Sign * (s.PD + opts.KiScale*s.Integral)
	return s.Command
}

// Clear resets the underlying state.
func (p *PID) Clear() {
	p.state.Clear()
}

// State returns the externally owned state.
func (p *PID) State() *State {
	return p.state
}

func limit(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
