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

// SimplePID is identical to PID except that the integral term is always
// applied at its configured gain: only KpScale and KdScale of Options are
// honored. It shares Config and State with PID.
type SimplePID struct {
	pid PID
}

// NewSimplePID creates a controller around the given config and state.
// The state is cleared.
func NewSimplePID(config *Config, state *State) *SimplePID {
	state.Clear()
	return &SimplePID{pid: PID{config: config, state: state}}
}

// Apply runs one update at the configured gains.
func (p *SimplePID) Apply(measured, desired, measuredRate, desiredRate float64, rateHz int) float64 {
	return p.pid.ApplyOptions(measured, desired, measuredRate, desiredRate, rateHz, DefaultOptions())
}

// ApplyOptions runs one update with de-rated proportional and derivative
// gains. KiScale is ignored.
func (p *SimplePID) ApplyOptions(measured, desired, measuredRate, desiredRate float64, rateHz int, opts Options) float64 {
	opts.KiScale = 1.0
	return p.pid.ApplyOptions(measured, desired, measuredRate, desiredRate, rateHz, opts)
}

// Clear resets the underlying state.
func (p *SimplePID) Clear() {
	p.pid.Clear()
}

// State returns the externally owned state.
func (p *SimplePID) State() *State {
	return p.pid.state
}
