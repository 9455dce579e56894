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

package pid

import "math"

// SimplePIConfig holds the gains for a SimplePI controller.
type SimplePIConfig struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
}

// SimplePIState is the mutable state of a SimplePI controller. Error, P
// and Command are logged intermediates of the last update.
type SimplePIState struct {
	Integral float64
	Desired  float64

	Error   float64
	P       float64
	Command float64
}

// Clear resets the loop state.
func (s *SimplePIState) Clear() {
	*s = SimplePIState{Desired: math.NaN()}
}

// SimplePI is a minimal proportional-integral controller: no derivative
// term, no rate limiting, no integral clamp.
//
// Note the output is -(p + integral): the sign convention is inverted
// relative to PID with Sign = 1. Apply it only where that feedback
// polarity is expected.
type SimplePI struct {
	config *SimplePIConfig
	state  *SimplePIState
}

// NewSimplePI creates a controller around the given config and state.
// The state is cleared.
func NewSimplePI(config *SimplePIConfig, state *SimplePIState) *SimplePI {
	state.Clear()
	return &SimplePI{config: config, state: state}
}

// Apply runs one controller update and returns the output command.
func (p *SimplePI) Apply(measured, desired float64, rateHz int) float64 {
	c, s := p.config, p.state

	s.Desired = desired
	s.Error = measured - desired

	s.Integral += s.Error * c.Ki / float64(rateHz)

	s.P = c.Kp * s.Error
	s.Command = -1.0 * (s.P + s.Integral)
	return s.Command
}

// Clear resets the underlying state.
func (p *SimplePI) Clear() {
	p.state.Clear()
}

// State returns the externally owned state.
func (p *SimplePI) State() *SimplePIState {
	return p.state
}
