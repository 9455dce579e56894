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

package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spindrive/bldc/foc"
	"github.com/spindrive/bldc/servo"
)

// drive applies the given rotor frame voltages for one step, the same
// way the control loop would.
func drive(p *Plant, vD, vQ float64) {
	pp := float64(p.cfg.Poles / 2)
	sc := p.cordic.Radians(p.position * pp)
	a, b, c := foc.InverseDQ(sc, vD, vQ)
	bus := p.BusVoltage()
	p.SetPWM(servo.Vec3{
		A: 0.5 + a/bus,
		B: 0.5 + b/bus,
		C: 0.5 + c/bus,
	})
	p.Step()
}

func TestPlantSpinsUnderQVoltage(t *testing.T) {
	p := New(DefaultConfig())
	p.Enable()

	for i := 0; i < 2000; i++ {
		drive(p, 0, 2.0)
	}
	require.Greater(t, p.Velocity(), 1.0)
	require.Greater(t, p.QCurrent(), 0.0)

	// Opposite polarity reverses the rotation.
	q := New(DefaultConfig())
	q.Enable()
	for i := 0; i < 2000; i++ {
		drive(q, 0, -2.0)
	}
	require.Less(t, q.Velocity(), -1.0)
}

func TestPlantBackEMFLimitsSpeed(t *testing.T) {
	p := New(DefaultConfig())
	p.Enable()

	for i := 0; i < 40000; i++ {
		drive(p, 0, 2.0)
	}
	v1 := p.Velocity()
	for i := 0; i < 10000; i++ {
		drive(p, 0, 2.0)
	}
	// Settled: back-EMF balances the applied voltage.
	require.InEpsilon(t, v1, p.Velocity(), 0.05)

	cfg := p.cfg
	pp := float64(cfg.Poles / 2)
	flux := cfg.TorqueConstant / (1.5 * pp)
	// At steady state vq = R*iq + we*flux with iq carrying the
	// damping load.
	iq := cfg.Damping * p.Velocity() / cfg.TorqueConstant
	vq := cfg.Resistance*iq + p.Velocity()*pp*flux
	require.InDelta(t, 2.0, vq, 0.1)
}

func TestPlantDisabledCollapsesCurrent(t *testing.T) {
	p := New(DefaultConfig())
	p.Enable()
	for i := 0; i < 100; i++ {
		drive(p, 0, 3.0)
	}
	require.NotZero(t, p.QCurrent())

	p.Disable()
	p.Step()
	require.Zero(t, p.QCurrent())
	require.Equal(t, 1, p.Disables)
}

func TestPlantSampleNonces(t *testing.T) {
	p := New(DefaultConfig())
	pos := p.Position()
	cur := p.Currents()

	pos.StartSample()
	cur.StartSample()
	s0 := pos.Collect()
	require.True(t, s0.Active)

	p.Step()
	s1 := pos.Collect()
	c1 := cur.Collect()
	require.Equal(t, s0.Nonce+1, s1.Nonce)
	require.Equal(t, s1.Nonce, c1.Nonce)
	require.True(t, c1.Active)
}

func TestPlantInjection(t *testing.T) {
	p := New(DefaultConfig())
	require.InDelta(t, 24.0, p.BusVoltage(), 1e-9)
	p.SetBusVoltage(30.0)
	require.InDelta(t, 30.0, p.BusVoltage(), 1e-9)

	p.SetTemperature(90.0)
	require.InDelta(t, 90.0, p.Temperature(), 1e-9)

	require.False(t, p.Faulted())
	p.SetDriverFault(true)
	require.True(t, p.Faulted())
}

func TestPlantLoadTorqueSlowsRotor(t *testing.T) {
	p := New(DefaultConfig())
	p.Enable()
	for i := 0; i < 20000; i++ {
		drive(p, 0, 2.0)
	}
	free := p.Velocity()

	q := New(DefaultConfig())
	q.Enable()
	q.SetLoadTorque(0.05)
	for i := 0; i < 20000; i++ {
		drive(q, 0, 2.0)
	}
	require.Less(t, q.Velocity(), free)
	require.False(t, math.IsNaN(q.Velocity()))
}
