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

package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spindrive/bldc/servo"
	"github.com/spindrive/bldc/sim"
)

func testServo(t *testing.T) (*servo.Servo, *sim.Plant) {
	t.Helper()
	pcfg := sim.DefaultConfig()
	cfg := servo.DefaultConfig()
	cfg.RateHz = pcfg.RateHz
	cfg.CalibrationTicks = 0
	cfg.Motor = servo.Motor{
		Poles:                 pcfg.Poles,
		TorqueConstant:        pcfg.TorqueConstant,
		RotationCurrentCutoff: 10.0,
		RotationCurrentScale:  0.36,
		RotationTorqueScale:   0.5,
	}
	plant := sim.New(pcfg)
	return servo.New(cfg, plant.Position(), plant.Currents(), plant, nil), plant
}

func TestJSONSnapshot(t *testing.T) {
	s, plant := testServo(t)
	require.NoError(t, s.Start())
	for i := 0; i < 10; i++ {
		s.Tick()
		plant.Step()
	}
	s.PollMillisecond()

	srv := NewServer(s)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.Handler()(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))

	require.InDelta(t, 24.0, m["status.bus_voltage"], 1e-9)
	require.InDelta(t, float64(servo.ModeVelocity), m["status.mode"], 1e-9)
	require.Contains(t, m, "status.i_q_a")
	require.Contains(t, m, "control.q_comp_a")
	require.Contains(t, m, "control.pwm.a")
	require.Contains(t, m, "timing.tick_mean_ns")
}

func TestPrometheusScrape(t *testing.T) {
	s, plant := testServo(t)
	require.NoError(t, s.Start())
	for i := 0; i < 10; i++ {
		s.Tick()
		plant.Step()
	}

	srv := NewServer(s)
	require.NoError(t, srv.Scrape())

	families, err := srv.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			values[mf.GetName()] = m.GetGauge().GetValue()
		}
	}
	require.InDelta(t, 24.0, values["bldc_status_bus_voltage"], 1e-9)
	require.InDelta(t, float64(servo.ModeVelocity), values["bldc_status_mode"], 1e-9)
	require.Contains(t, values, "bldc_control_q_v")

	// A second scrape reuses the gauges instead of re-registering.
	require.NoError(t, srv.Scrape())
	families, err = srv.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestFlattenKey(t *testing.T) {
	require.Equal(t, "bldc_status_i_q_a", flattenKey("bldc.status.i_q_a"))
	require.Equal(t, "a_b_c", flattenKey("a b-c"))
}
