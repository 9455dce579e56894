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

package servo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spindrive/bldc/servo"
	"github.com/spindrive/bldc/sim"
)

func simConfig() (servo.Config, sim.Config) {
	plant := sim.DefaultConfig()
	cfg := servo.DefaultConfig()
	cfg.RateHz = plant.RateHz
	cfg.Motor = servo.Motor{
		Poles:                 plant.Poles,
		TorqueConstant:        plant.TorqueConstant,
		RotationCurrentCutoff: 10.0,
		RotationCurrentScale:  0.36,
		RotationTorqueScale:   0.5,
	}
	return cfg, plant
}

// run advances the closed loop by n ticks, stepping the plant after each
// control tick and polling the slow context every millisecond's worth of
// ticks. It returns the largest q axis current magnitude seen.
func run(s *servo.Servo, plant *sim.Plant, n int) float64 {
	maxIQ := 0.0
	pollEvery := s.Config().RateHz / 1000
	for i := 0; i < n; i++ {
		s.Tick()
		plant.Step()
		if iq := math.Abs(plant.QCurrent()); iq > maxIQ {
			maxIQ = iq
		}
		if pollEvery > 0 && i%pollEvery == 0 {
			s.PollMillisecond()
		}
	}
	return maxIQ
}

func TestClosedLoopVelocityConvergence(t *testing.T) {
	cfg, pcfg := simConfig()
	plant := sim.New(pcfg)
	s := servo.New(cfg, plant.Position(), plant.Currents(), plant, nil)

	require.NoError(t, s.Start())
	s.Tick()
	plant.Step()
	require.Equal(t, servo.ModeCalibrating, s.Status().Mode)

	// A setpoint sent during calibration takes effect when it completes.
	require.NoError(t, s.Command(&servo.CommandData{
		Mode:     servo.ModeVelocity,
		Velocity: 10.0,
	}))
	run(s, plant, cfg.CalibrationTicks+10)
	st := s.Status()
	require.Equal(t, servo.ModeVelocity, st.Mode)
	require.Equal(t, servo.ErrcSuccess, st.Fault)

	// Half a second is several mechanical time constants.
	maxIQ := run(s, plant, 5000)
	st = s.Status()
	require.Equal(t, servo.ModeVelocity, st.Mode)
	require.InDelta(t, 10.0, plant.Velocity(), 0.5)
	require.InDelta(t, 10.0, st.Velocity, 0.5)
	require.LessOrEqual(t, maxIQ, cfg.MaxCurrent)
}

func TestClosedLoopReversal(t *testing.T) {
	cfg, pcfg := simConfig()
	plant := sim.New(pcfg)
	s := servo.New(cfg, plant.Position(), plant.Currents(), plant, nil)

	require.NoError(t, s.Start())
	s.Tick()
	plant.Step()
	run(s, plant, cfg.CalibrationTicks+10)

	require.NoError(t, s.Command(&servo.CommandData{
		Mode:     servo.ModeVelocity,
		Velocity: -8.0,
	}))
	run(s, plant, 8000)
	require.InDelta(t, -8.0, plant.Velocity(), 0.5)
}

func TestClosedLoopCalibrationMoves(t *testing.T) {
	cfg, pcfg := simConfig()
	plant := sim.New(pcfg)
	s := servo.New(cfg, plant.Position(), plant.Currents(), plant, nil)

	require.NoError(t, s.Start())
	run(s, plant, cfg.CalibrationTicks+10)

	// One electrical revolution of excitation drags the rotor by about a
	// pole pair's worth of mechanical angle.
	st := s.Status()
	require.NotEqual(t, servo.ModeFault, st.Mode)
	expected := 2.0 * math.Pi / float64(pcfg.Poles/2)
	require.InDelta(t, expected, st.Position, 0.5*expected)
}

func TestClosedLoopOverVoltageShutsDown(t *testing.T) {
	cfg, pcfg := simConfig()
	plant := sim.New(pcfg)
	s := servo.New(cfg, plant.Position(), plant.Currents(), plant, nil)

	require.NoError(t, s.Start())
	s.Tick()
	plant.Step()
	require.NoError(t, s.Command(&servo.CommandData{
		Mode:     servo.ModeVelocity,
		Velocity: 10.0,
	}))
	run(s, plant, cfg.CalibrationTicks+2000)

	plant.SetBusVoltage(cfg.MaxVoltage + 2.0)
	s.Tick()
	plant.Step()
	st := s.Status()
	require.Equal(t, servo.ModeFault, st.Mode)
	require.Equal(t, servo.ErrcOverVoltage, st.Fault)
	require.False(t, plant.Enabled())

	// The freewheeling rotor spins down on its own.
	v := plant.Velocity()
	for i := 0; i < 2000; i++ {
		s.Tick()
		plant.Step()
	}
	require.Less(t, math.Abs(plant.Velocity()), math.Abs(v))
}

func TestClosedLoopTorqueMode(t *testing.T) {
	cfg, pcfg := simConfig()
	plant := sim.New(pcfg)
	s := servo.New(cfg, plant.Position(), plant.Currents(), plant, nil)

	require.NoError(t, s.Start())
	s.Tick()
	plant.Step()
	run(s, plant, cfg.CalibrationTicks+10)

	require.NoError(t, s.Command(&servo.CommandData{
		Mode:   servo.ModeTorque,
		Torque: 0.5,
	}))
	// 0.5 Nm against 0.01 Nm/(rad/s) damping accelerates hard; give the
	// current loop time to settle and check the reported torque tracks.
	run(s, plant, 2000)
	st := s.Status()
	require.Equal(t, servo.ModeTorque, st.Mode)
	require.Equal(t, servo.ErrcSuccess, st.Fault)
	require.InDelta(t, 0.5, st.Torque, 0.1)
	require.Greater(t, plant.Velocity(), 10.0)
}
