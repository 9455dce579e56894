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

	log "github.com/sirupsen/logrus"

	"github.com/spindrive/bldc/foc"
)

// calibration drives a current-regulated voltage vector through exactly
// one electrical revolution and verifies that the encoder followed it.
// External setpoints are not acted on while it runs.
type calibration struct {
	tick          int
	theta         uint32
	thetaInc      uint32
	startPosition float64
}

func (s *Servo) startCalibration() {
	cfg := s.config.Load()
	s.cal = calibration{
		thetaInc:      uint32((uint64(1) << 32) / uint64(cfg.CalibrationTicks)),
		startPosition: s.lastPosition.Position,
	}
	log.Infof("servo calibration: %d ticks at %.1fV limit", cfg.CalibrationTicks, cfg.CalibrationVoltage)
}

// runCalibration executes one calibration tick: regulate the excitation
// current magnitude with the PI loop, drive the resulting voltage at the
// ramped electrical angle, and check the result once the ramp completes.
func (s *Servo) runCalibration(control *Control) {
	cfg := s.config.Load()
	sc := s.cordic.Theta(int32(s.cal.theta))

	// The current magnitude is frame independent, so measuring it in the
	// driven frame works even while the rotor lags the excitation.
	iD, iQ := foc.DQ(sc, s.lastCurrent.Phase.A, s.lastCurrent.Phase.B, s.lastCurrent.Phase.C)
	control.DCurrent = iD
	control.QCurrent = iQ

	v := s.calLoop.Apply(math.Hypot(iD, iQ), cfg.CalibrationCurrent, cfg.RateHz)
	v = limit(v, 0.0, cfg.CalibrationVoltage)

	control.DV = v
	a, b, c := foc.InverseDQ(sc, v, 0.0)
	control.Voltage = Vec3{A: a, B: b, C: c}
	s.applyVoltage(control)
	if s.mode != ModeCalibrating {
		// applyVoltage faulted.
		return
	}

	s.cal.theta += s.cal.thetaInc
	s.cal.tick++
	if s.cal.tick >= cfg.CalibrationTicks {
		s.finishCalibration()
	}
}

// finishCalibration verifies encoder alignment: one electrical
// revolution of excitation must have dragged the rotor forward by one
// electrical revolution's worth of mechanical angle, within tolerance.
func (s *Servo) finishCalibration() {
	moved := s.lastPosition.Position - s.cal.startPosition
	if need := s.config.Load().CalibrationMinMovement; moved < need {
		log.Warnf("servo calibration: encoder moved %.3f rad, need %.3f",
			moved, need)
		s.enterFault(ErrcCalibrationFault)
		return
	}
	log.Infof("servo calibration complete, encoder moved %.3f rad", moved)
	s.clearLoops()
	if s.haveCommand && s.cmd.Mode.active() {
		s.setMode(s.cmd.Mode)
		return
	}
	// No command yet: hold zero velocity until one arrives.
	s.cmd = CommandData{Mode: ModeVelocity}
	s.setMode(ModeVelocity)
}
