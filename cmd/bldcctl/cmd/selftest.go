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

package cmd

import (
	"fmt"
	"math"
	"os"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/spindrive/bldc/servo"
	"github.com/spindrive/bldc/sim"
)

type status int

// possible check results
const (
	OK status = iota
	WARN
	FAIL
)

var okString = color.GreenString("[ OK ]")
var warnString = color.YellowString("[WARN]")
var failString = color.RedString("[FAIL]")

var statusToColor = []string{okString, warnString, failString}

// rig is the closed loop under test.
type rig struct {
	servo *servo.Servo
	plant *sim.Plant
	cfg   servo.Config
	maxIQ float64
}

func newRig() *rig {
	plantCfg := sim.DefaultConfig()
	cfg := servo.DefaultConfig()
	cfg.RateHz = plantCfg.RateHz
	cfg.Motor = servo.Motor{
		Poles:                 plantCfg.Poles,
		TorqueConstant:        plantCfg.TorqueConstant,
		RotationCurrentCutoff: 10.0,
		RotationCurrentScale:  0.36,
		RotationTorqueScale:   0.5,
	}
	plant := sim.New(plantCfg)
	return &rig{
		servo: servo.New(cfg, plant.Position(), plant.Currents(), plant, nil),
		plant: plant,
		cfg:   cfg,
	}
}

func (r *rig) run(ticks int) {
	for i := 0; i < ticks; i++ {
		r.servo.Tick()
		r.plant.Step()
		if iq := math.Abs(r.plant.QCurrent()); iq > r.maxIQ {
			r.maxIQ = iq
		}
	}
}

// checker runs one verification step against the rig. Steps run in
// order and share the rig state.
type checker func(r *rig) (status, string)

func checkArm(r *rig) (status, string) {
	if err := r.servo.Start(); err != nil {
		return FAIL, fmt.Sprintf("arming failed: %v", err)
	}
	r.run(1)
	if m := r.servo.Status().Mode; m != servo.ModeCalibrating {
		return FAIL, fmt.Sprintf("expected calibration after arming, got %v", m)
	}
	return OK, "controller armed"
}

func checkCalibration(r *rig) (status, string) {
	r.run(r.cfg.CalibrationTicks + 10)
	st := r.servo.Status()
	if st.Mode == servo.ModeFault {
		return FAIL, fmt.Sprintf("calibration faulted: %v", st.Fault)
	}
	expected := 2.0 * math.Pi / float64(r.cfg.Motor.Poles/2)
	if math.Abs(st.Position-expected) > 0.5*expected {
		return WARN, fmt.Sprintf("rotor moved %.3f rad, expected about %.3f", st.Position, expected)
	}
	return OK, fmt.Sprintf("calibration moved rotor %.3f rad", st.Position)
}

func checkVelocityTracking(r *rig) (status, string) {
	const target = 10.0
	err := r.servo.Command(&servo.CommandData{
		Mode:     servo.ModeVelocity,
		Velocity: target,
	})
	if err != nil {
		return FAIL, fmt.Sprintf("velocity command rejected: %v", err)
	}
	r.run(6000)
	st := r.servo.Status()
	if st.Mode != servo.ModeVelocity {
		return FAIL, fmt.Sprintf("expected velocity mode, got %v (%v)", st.Mode, st.Fault)
	}
	e := math.Abs(st.Velocity - target)
	if e > 0.05*target {
		return FAIL, fmt.Sprintf("velocity %s rad/s, target %s",
			color.RedString("%.2f", st.Velocity), color.BlueString("%.1f", target))
	}
	return OK, fmt.Sprintf("velocity settled at %s rad/s, target %s",
		color.GreenString("%.2f", st.Velocity), color.BlueString("%.1f", target))
}

func checkCurrentBound(r *rig) (status, string) {
	if r.maxIQ > r.cfg.MaxCurrent {
		return FAIL, fmt.Sprintf("q current peaked at %s A, limit %s",
			color.RedString("%.1f", r.maxIQ), color.BlueString("%.1f", r.cfg.MaxCurrent))
	}
	return OK, fmt.Sprintf("q current peaked at %s A, limit %s",
		color.GreenString("%.1f", r.maxIQ), color.BlueString("%.1f", r.cfg.MaxCurrent))
}

func checkFaultReaction(r *rig) (status, string) {
	r.plant.SetBusVoltage(r.cfg.MaxVoltage + 2.0)
	r.run(1)
	st := r.servo.Status()
	if st.Mode != servo.ModeFault || st.Fault != servo.ErrcOverVoltage {
		return FAIL, fmt.Sprintf("over voltage not latched, mode %v fault %v", st.Mode, st.Fault)
	}
	if r.plant.Enabled() {
		return FAIL, "drivers still enabled after fault"
	}
	return OK, "over voltage latched and drivers disabled within one tick"
}

var selftestCheckers = []checker{
	checkArm,
	checkCalibration,
	checkVelocityTracking,
	checkCurrentBound,
	checkFaultReaction,
}

func runSelftest() int {
	r := newRig()
	failed := 0
	for _, c := range selftestCheckers {
		st, msg := c(r)
		fmt.Printf("%s %s\n", statusToColor[st], msg)
		if st == FAIL {
			failed++
		}
	}
	return failed
}

func init() {
	RootCmd.AddCommand(selftestCmd)
}

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the control pipeline against the simulated plant and verify it",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if failed := runSelftest(); failed != 0 {
			log.Errorf("%d check(s) failed", failed)
			os.Exit(1)
		}
	},
}
