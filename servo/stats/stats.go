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

// Package stats exposes the controller state over HTTP for monitoring: a
// flat JSON snapshot at / and prometheus gauges at /metrics. Both views
// are generated from the telemetry walk, so new status fields show up
// without exporter changes.
package stats

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/spindrive/bldc/servo"
	"github.com/spindrive/bldc/telemetry"
)

// Server reports one servo's state. Scrape runs from a single goroutine;
// the HTTP handlers only read through the prometheus registry and the
// servo's atomic snapshots, so no locking is needed.
type Server struct {
	servo    *servo.Servo
	registry *prometheus.Registry
	gauges   map[string]prometheus.Gauge
}

// NewServer creates a stats server for the given servo.
func NewServer(s *servo.Servo) *Server {
	return &Server{
		servo:    s,
		registry: prometheus.NewRegistry(),
		gauges:   map[string]prometheus.Gauge{},
	}
}

type timing struct {
	TickMeanNs   float64 `telemetry:"tick_mean_ns"`
	TickStddevNs float64 `telemetry:"tick_stddev_ns"`
	TickWorstNs  float64 `telemetry:"tick_worst_ns"`
}

// snapshot flattens the current controller state into dotted keys.
func (s *Server) snapshot() (map[string]any, error) {
	mean, stddev, worst := s.servo.TimingStats()
	snap := struct {
		Status  servo.Status  `telemetry:"status"`
		Control servo.Control `telemetry:"control"`
		Timing  timing        `telemetry:"timing"`
	}{
		Status:  s.servo.Status(),
		Control: s.servo.Control(),
		Timing: timing{
			TickMeanNs:   mean,
			TickStddevNs: stddev,
			TickWorstNs:  float64(worst),
		},
	}
	return telemetry.Map(&snap)
}

// handleRequest serves the JSON snapshot.
func (s *Server) handleRequest(w http.ResponseWriter, _ *http.Request) {
	m, err := s.snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	js, err := json.Marshal(m)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(js); err != nil {
		log.Errorf("Failed to reply: %v", err)
	}
}

// Scrape copies the current snapshot into the prometheus gauges. Gauges
// are created lazily the first time a key is seen.
func (s *Server) Scrape() error {
	m, err := s.snapshot()
	if err != nil {
		return err
	}
	for key, val := range m {
		v, ok := toFloat(val)
		if !ok {
			continue
		}
		g, ok := s.gauges[key]
		if !ok {
			g = prometheus.NewGauge(prometheus.GaugeOpts{
				Name: flattenKey("bldc." + key),
				Help: key,
			})
			if err := s.registry.Register(g); err != nil {
				log.Errorf("failed to register metric %s: %v", key, err)
				continue
			}
			s.gauges[key] = g
		}
		g.Set(v)
	}
	return nil
}

// Registry exposes the prometheus registry, mostly for tests.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns the JSON snapshot handler, mostly for tests.
func (s *Server) Handler() http.HandlerFunc {
	return s.handleRequest
}

// Start scrapes at the given interval and serves HTTP on the monitoring
// port. It blocks forever.
func (s *Server) Start(monitoringPort int, interval time.Duration) {
	go func() {
		for {
			if err := s.Scrape(); err != nil {
				log.Errorf("stats scrape: %v", err)
			}
			time.Sleep(interval)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	mux.Handle("/metrics", promhttp.HandlerFor(
		s.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))
	addr := fmt.Sprintf(":%d", monitoringPort)
	log.Infof("Starting http monitoring server on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

// toFloat converts the numeric and boolean telemetry leaves; anything
// else is not exportable as a gauge.
func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Bool:
		if rv.Bool() {
			return 1.0, true
		}
		return 0.0, true
	}
	return 0, false
}

func flattenKey(key string) string {
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}
