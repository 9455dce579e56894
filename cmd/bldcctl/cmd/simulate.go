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

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/spindrive/bldc/servo"
)

// flags
var simulateSecondsFlag float64
var simulateVelocityFlag float64

func runSimulate(seconds, velocity float64) error {
	r := newRig()
	if err := r.servo.Start(); err != nil {
		return err
	}
	r.run(1)
	if err := r.servo.Command(&servo.CommandData{
		Mode:     servo.ModeVelocity,
		Velocity: velocity,
	}); err != nil {
		return err
	}

	rate := r.cfg.RateHz
	total := int(seconds * float64(rate))
	report := rate / 10
	for done := 0; done < total; done += report {
		n := report
		if total-done < n {
			n = total - done
		}
		r.run(n)
		// The servo also needs its slow context while running offline.
		r.servo.PollMillisecond()
		st := r.servo.Status()
		if st.Mode == servo.ModeFault {
			return fmt.Errorf("faulted after %.2fs: %v", float64(done+n)/float64(rate), st.Fault)
		}
		fmt.Printf("t=%5.2fs mode=%-11v vel=%7.3f rad/s iq=%6.2f A torque=%6.3f Nm\n",
			float64(done+n)/float64(rate), st.Mode, st.Velocity, st.QCurrent, st.Torque)
	}

	mean, stddev, worst := r.servo.TimingStats()
	fmt.Printf("tick timing: mean %.0fns stddev %.0fns worst %dns\n", mean, stddev, worst)
	return nil
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateSecondsFlag, "seconds", 2.0, "how long to simulate")
	simulateCmd.Flags().Float64Var(&simulateVelocityFlag, "velocity", 10.0, "velocity setpoint, rad/s")
	RootCmd.AddCommand(simulateCmd)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the closed loop offline and print its trajectory",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if err := runSimulate(simulateSecondsFlag, simulateVelocityFlag); err != nil {
			log.Fatalf("simulate: %v", err)
		}
	},
}
