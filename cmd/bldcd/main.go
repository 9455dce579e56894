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

// bldcd runs the servo control loop against the simulated motor plant
// and serves monitoring over HTTP. It is the development harness for the
// controller; a hardware build swaps the plant for real drivers.
package main

import (
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"

	"github.com/spindrive/bldc/servo"
	"github.com/spindrive/bldc/servo/stats"
	"github.com/spindrive/bldc/sim"
)

func loadConfig(path string) (servo.Config, error) {
	cfg := servo.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}

func main() {
	var configFile string
	var logLevel string
	var pprofAddr string
	var monitoringPort int
	var velocity float64

	flag.StringVar(&configFile, "config", "", "Path to a yaml config; defaults apply when empty")
	flag.StringVar(&logLevel, "loglevel", "info", "Set a log level. Can be: debug, info, warning, error")
	flag.StringVar(&pprofAddr, "pprofaddr", "", "host:port for the pprof to bind")
	flag.IntVar(&monitoringPort, "monitoringport", 8889, "Port to run monitoring server on")
	flag.Float64Var(&velocity, "velocity", 10.0, "Velocity setpoint to command once armed, rad/s")

	flag.Parse()

	switch logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("Unrecognized log level: %v", logLevel)
	}

	if pprofAddr != "" {
		log.Warningf("Starting profiler on %s", pprofAddr)
		go func() {
			log.Println(http.ListenAndServe(pprofAddr, nil))
		}()
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	plantCfg := sim.DefaultConfig()
	plantCfg.RateHz = cfg.RateHz
	if cfg.Motor.Poles == 0 {
		// No motor configured: adopt the simulated one.
		cfg.Motor = servo.Motor{
			Poles:                 plantCfg.Poles,
			TorqueConstant:        plantCfg.TorqueConstant,
			RotationCurrentCutoff: 10.0,
			RotationCurrentScale:  0.36,
			RotationTorqueScale:   0.5,
		}
	}

	plant := sim.New(plantCfg)
	s := servo.New(cfg, plant.Position(), plant.Currents(), plant, nil)

	st := stats.NewServer(s)
	go st.Start(monitoringPort, time.Second)

	if err := s.Start(); err != nil {
		log.Fatalf("Failed to arm: %v", err)
	}

	go func() {
		for range time.Tick(time.Millisecond) {
			s.PollMillisecond()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	period := time.Second / time.Duration(cfg.RateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	commanded := false
	for {
		select {
		case <-sig:
			log.Info("Shutting down")
			s.Stop()
			s.Tick()
			return
		case <-ticker.C:
			s.Tick()
			plant.Step()
			status := s.Status()
			if status.Mode == servo.ModeFault {
				log.Fatalf("servo faulted: %v", status.Fault)
			}
			if !commanded && status.Mode == servo.ModeVelocity {
				err := s.Command(&servo.CommandData{
					Mode:     servo.ModeVelocity,
					Velocity: velocity,
				})
				if err != nil {
					log.Errorf("command: %v", err)
				} else {
					commanded = true
				}
			}
		}
	}
}
