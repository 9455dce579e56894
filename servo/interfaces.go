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

// The sampling interfaces follow a two-phase request/collect protocol:
// StartSample begins a conversion and Collect returns the latest
// completed one. The servo starts conversions at the end of tick N and
// consumes the results at the start of tick N+1, hiding the conversion
// latency. Neither call may block. Freshness is tracked through the
// sample nonce: a nonce that stalls for longer than the configured
// timeout, or Active going false, is treated as missing data.

// PositionSample is one rotor position reading.
type PositionSample struct {
	// Position is the mechanical rotor angle in radians. It is
	// cumulative, not wrapped.
	Position float64
	// Velocity is the mechanical rate in rad/s.
	Velocity float64
	// Nonce increments once per fresh sample.
	Nonce uint32
	// Active reports whether the sensor is delivering data.
	Active bool
	// Error reports a sensor specific fault.
	Error bool
}

// PositionSource delivers rotor position samples.
type PositionSource interface {
	StartSample()
	Collect() PositionSample
}

// CurrentSample is one set of phase current readings, in amps.
type CurrentSample struct {
	Phase  Vec3
	Nonce  uint32
	Active bool
	Error  bool
}

// CurrentSource delivers phase current samples.
type CurrentSource interface {
	StartSample()
	Collect() CurrentSample
}

// Drive is the actuation sink: the gate driver and its measurement
// sidecar. SetPWM applies three-phase duty cycles in [0, 1]; Disable
// forces all outputs off.
type Drive interface {
	SetPWM(pwm Vec3)
	Enable()
	Disable()
	// Enabled reports whether the driver accepted the enable request.
	Enabled() bool
	// Faulted reports the driver's own fault line.
	Faulted() bool
	BusVoltage() float64
	Temperature() float64
}

// Interlock is a one-way channel the servo raises to force outputs off
// immediately, independent of the tick cycle. Implementations typically
// drop a hardware enable line. May be nil.
type Interlock interface {
	Trip()
}
