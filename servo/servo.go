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

// Package servo implements the closed loop servo state machine around a
// brushless DC motor: calibration, mode sequencing, the cascaded
// position/velocity/current control pipeline, and the fault interlocks.
//
// The controller is driven by two contexts. Tick runs once per control
// period at Config.RateHz and executes the whole pipeline synchronously;
// PollMillisecond runs from a slower context and handles bookkeeping that
// does not belong in the tick. The two never share mutable data directly:
// commands, configuration and fault requests cross over through atomic
// pointers consumed at the start of a tick, and status crosses back as an
// immutable snapshot published at the end of one.
package servo

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/eclesh/welford"
	log "github.com/sirupsen/logrus"

	"github.com/spindrive/bldc/foc"
	"github.com/spindrive/bldc/pid"
	"github.com/spindrive/bldc/torque"
)

// enableGraceTicks is how long after Enable the driver may take to report
// Enabled before ErrcDriverEnableFault trips.
const enableGraceTicks = 16

// Servo is the motor controller state machine. Start, Command, Fault,
// Status and Control may be called from any context; Tick must be called
// from exactly one, at the configured rate, and PollMillisecond from one
// other.
type Servo struct {
	position  PositionSource
	current   CurrentSource
	drive     Drive
	interlock Interlock

	cordic foc.Cordic
	model  torque.Model

	// Tick-owned state.
	mode           Mode
	fault          Errc
	cmd            CommandData
	haveCommand    bool
	commandAge     int
	tick           uint64
	overruns       uint32
	overrunFlag    bool
	enableGrace    int
	lastVoltageMag float64

	positionLoop *pid.SimplePID
	velocityLoop *pid.PID
	dLoop        *pid.PID
	qLoop        *pid.PID
	calLoop      *pid.SimplePI

	positionState pid.State
	velocityState pid.State
	dState        pid.State
	qState        pid.State
	calState      pid.SimplePIState

	lastPosition  PositionSample
	lastCurrent   CurrentSample
	positionStale int
	currentStale  int

	cal calibration

	// Cross-context state. The active config is replaced only from the
	// tick context but read from any.
	config         atomic.Pointer[Config]
	pendingConfig  atomic.Pointer[Config]
	pendingCommand atomic.Pointer[CommandData]
	requestedFault atomic.Uint32
	derate         atomic.Uint64
	lastTickNanos  atomic.Int64
	status         atomic.Pointer[Status]
	control        atomic.Pointer[Control]

	// Millisecond-context state.
	timing       *welford.Stats
	worstTickNs  int64
	lastSeenTick uint64
	stalledPolls int
}

// New creates a servo around the given collaborators. The interlock may
// be nil. The servo starts in ModeStopped with outputs disabled.
func New(cfg Config, position PositionSource, current CurrentSource, drive Drive, interlock Interlock) *Servo {
	s := &Servo{
		position:  position,
		current:   current,
		drive:     drive,
		interlock: interlock,
		timing:    welford.New(),
	}
	s.adoptConfig(&cfg)
	s.derate.Store(math.Float64bits(1.0))
	s.status.Store(&Status{Mode: ModeStopped})
	s.control.Store(&Control{})
	s.drive.Disable()
	// Prime the sample pipeline so the first tick has data to collect.
	s.position.StartSample()
	s.current.StartSample()
	return s
}

// adoptConfig wires the controllers to a new configuration. Tick context
// only.
func (s *Servo) adoptConfig(cfg *Config) {
	if cfg.RateHz <= 0 {
		cfg.RateHz = 40000
	}
	s.config.Store(cfg)
	s.model = torque.Model{
		TorqueConstant: cfg.Motor.TorqueConstant,
		CurrentCutoff:  cfg.Motor.RotationCurrentCutoff,
		CurrentScale:   cfg.Motor.RotationCurrentScale,
		TorqueScale:    cfg.Motor.RotationTorqueScale,
	}
	s.positionLoop = pid.NewSimplePID(&cfg.PositionPID, &s.positionState)
	s.velocityLoop = pid.NewPID(&cfg.VelocityPID, &s.velocityState)
	s.dLoop = pid.NewPID(&cfg.DQPID, &s.dState)
	s.qLoop = pid.NewPID(&cfg.DQPID, &s.qState)
	s.calLoop = pid.NewSimplePI(&cfg.CalibrationPI, &s.calState)
}

// SetConfig stages a configuration replacement. It is applied at the next
// tick boundary; if the servo is armed at that point it faults with
// ErrcConfigChanged rather than running with gains it was not armed with.
func (s *Servo) SetConfig(cfg Config) {
	s.pendingConfig.Store(&cfg)
}

// requestStart is smuggled through the fault request word: values below
// 32 are not fault codes.
const requestStart = 1

// Start arms the controller: Stopped or Fault transitions to Calibrating,
// or directly to a control mode when calibration is not required. All
// loop state is cleared. The position limit check runs against the last
// published snapshot; feedback that has never been valid is not checked.
// If a fault condition still holds the servo re-enters ModeFault with the
// same code on the next tick, and a fault staged but not yet consumed
// makes Start fail rather than mask it.
func (s *Servo) Start() error {
	cfg := s.config.Load()
	if !cfg.Motor.configured() {
		s.stageFault(ErrcMotorNotConfigured)
		return fmt.Errorf("start: %w", ErrcMotorNotConfigured)
	}
	if st := s.Status(); st.Active {
		pc := cfg.Position
		if (!math.IsNaN(pc.PositionMin) && st.Position < pc.PositionMin) ||
			(!math.IsNaN(pc.PositionMax) && st.Position > pc.PositionMax) {
			s.stageFault(ErrcStartOutsideLimit)
			return fmt.Errorf("start: %w", ErrcStartOutsideLimit)
		}
	}
	for {
		cur := s.requestedFault.Load()
		if cur != 0 && cur != requestStart {
			return fmt.Errorf("start: %w", Errc(cur))
		}
		if s.requestedFault.CompareAndSwap(cur, requestStart) {
			return nil
		}
	}
}

// stageFault stages a fault request unless an external fault code is
// already pending; the first code staged in an inter-tick window wins.
func (s *Servo) stageFault(code Errc) {
	for {
		cur := s.requestedFault.Load()
		if cur != 0 && cur != requestStart {
			return
		}
		if s.requestedFault.CompareAndSwap(cur, uint32(code)) {
			return
		}
	}
}

// Command atomically stages a new setpoint. It is rejected when the
// requested mode cannot be commanded externally, when the controller is
// not armed, or when a position mode is requested without valid position
// feedback.
func (s *Servo) Command(cmd *CommandData) error {
	if !cmd.Mode.commandable() {
		return fmt.Errorf("command: mode %v cannot be commanded", cmd.Mode)
	}
	st := s.Status()
	switch st.Mode {
	case ModeStopped:
		return fmt.Errorf("command: controller not started")
	case ModeFault:
		return fmt.Errorf("command: %w", st.Fault)
	}
	if cmd.Mode == ModePosition && !st.Active {
		return fmt.Errorf("command: %w", ErrcPositionInvalid)
	}
	c := *cmd
	s.pendingCommand.Store(&c)
	return nil
}

// Stop disables outputs and returns to ModeStopped at the next tick.
func (s *Servo) Stop() {
	s.pendingCommand.Store(&CommandData{Mode: ModeStopped})
}

// Fault forces the controller into ModeFault with the given code. It may
// be called from any context, e.g. an external overcurrent comparator,
// and takes effect before the next tick's pipeline executes.
func (s *Servo) Fault(code Errc) {
	s.requestedFault.Store(uint32(code))
}

// Status returns the snapshot published at the end of the last tick.
func (s *Servo) Status() Status {
	return *s.status.Load()
}

// Control returns the intermediate control outputs of the last tick.
func (s *Servo) Control() Control {
	return *s.control.Load()
}

// Config returns the active configuration.
func (s *Servo) Config() Config {
	return *s.config.Load()
}

// Tick runs one control period: consume staged commands and samples, run
// the fault checks, execute the control pipeline, hand the result to the
// drive and publish status. It must complete within 1/RateHz.
func (s *Servo) Tick() {
	begin := time.Now()
	s.tick++

	if nc := s.pendingConfig.Swap(nil); nc != nil {
		armed := s.mode.active() || s.mode == ModeCalibrating
		s.adoptConfig(nc)
		if armed {
			s.enterFault(ErrcConfigChanged)
		}
	}

	switch req := s.requestedFault.Swap(0); {
	case req == requestStart:
		s.arm()
	case req != 0:
		s.enterFault(Errc(req))
	}

	if c := s.pendingCommand.Swap(nil); c != nil {
		s.applyCommand(c)
	} else {
		s.commandAge++
	}

	s.collectSamples()

	if s.mode.active() || s.mode == ModeCalibrating {
		if code := s.checkFaults(); code != ErrcSuccess {
			s.enterFault(code)
		}
	}
	if s.enableGrace > 0 {
		s.enableGrace--
	}

	s.checkWatchdog()

	var control Control
	switch {
	case s.mode == ModeCalibrating:
		s.runCalibration(&control)
	case s.mode.active():
		s.runControl(&control)
	}

	// Start the next conversions on the way out so their latency is
	// hidden behind the inter-tick gap.
	s.position.StartSample()
	s.current.StartSample()

	s.publish(&control)

	elapsed := time.Since(begin)
	s.lastTickNanos.Store(int64(elapsed))
	if elapsed > s.tickPeriod() {
		s.overrunFlag = true
		s.overruns++
	}
}

func (s *Servo) tickPeriod() time.Duration {
	return time.Second / time.Duration(s.config.Load().RateHz)
}

// arm implements the Start transition in tick context.
func (s *Servo) arm() {
	s.fault = ErrcSuccess
	s.clearLoops()
	s.cmd = CommandData{Mode: ModeVelocity}
	s.haveCommand = false
	s.commandAge = 0
	s.drive.Enable()
	s.enableGrace = enableGraceTicks
	if s.config.Load().CalibrationTicks > 0 {
		s.startCalibration()
		s.setMode(ModeCalibrating)
	} else {
		s.setMode(ModeVelocity)
	}
}

func (s *Servo) setMode(m Mode) {
	if s.mode == m {
		return
	}
	log.Infof("servo mode %v -> %v", s.mode, m)
	s.mode = m
}

func (s *Servo) enterFault(code Errc) {
	if s.mode == ModeFault {
		return
	}
	s.drive.Disable()
	if s.interlock != nil {
		s.interlock.Trip()
	}
	s.clearLoops()
	s.fault = code
	log.Warnf("servo fault: %v", code)
	s.setMode(ModeFault)
}

func (s *Servo) enterStopped() {
	s.drive.Disable()
	s.clearLoops()
	s.setMode(ModeStopped)
}

func (s *Servo) clearLoops() {
	s.positionLoop.Clear()
	s.velocityLoop.Clear()
	s.dLoop.Clear()
	s.qLoop.Clear()
	s.calLoop.Clear()
	s.lastVoltageMag = 0
}

func (s *Servo) applyCommand(c *CommandData) {
	if c.Mode == ModeStopped {
		if s.mode != ModeStopped && s.mode != ModeFault {
			s.enterStopped()
		}
		return
	}
	switch {
	case s.mode == ModeCalibrating:
		// Calibration does not act on external setpoints; remember the
		// command for when it completes.
		s.cmd = *c
		s.haveCommand = true
		s.commandAge = 0
	case s.mode.active():
		if c.Mode != s.mode {
			s.clearLoops()
			s.setMode(c.Mode)
		}
		s.cmd = *c
		s.haveCommand = true
		s.commandAge = 0
	default:
		// Raced with a fault or stop since validation; drop it.
	}
}

func (s *Servo) collectSamples() {
	p := s.position.Collect()
	if p.Nonce == s.lastPosition.Nonce {
		s.positionStale++
	} else {
		s.positionStale = 0
	}
	s.lastPosition = p

	c := s.current.Collect()
	if c.Nonce == s.lastCurrent.Nonce {
		s.currentStale++
	} else {
		s.currentStale = 0
	}
	s.lastCurrent = c
}

// checkFaults runs every tick before any output is committed.
func (s *Servo) checkFaults() Errc {
	cfg := s.config.Load()

	if s.overrunFlag {
		s.overrunFlag = false
		return ErrcPwmCycleOverrun
	}
	if s.drive.Faulted() {
		return ErrcMotorDriverFault
	}
	if !s.drive.Enabled() && s.enableGrace <= 0 {
		return ErrcDriverEnableFault
	}

	busV := s.drive.BusVoltage()
	if !isFinite(busV) || busV > cfg.MaxVoltage {
		return ErrcOverVoltage
	}
	if busV < cfg.MinVoltage {
		return ErrcUnderVoltage
	}
	if s.drive.Temperature() > cfg.MaxTemperature {
		return ErrcOverTemperature
	}

	p := s.lastPosition
	if !p.Active || p.Error || s.positionStale > cfg.SampleTimeoutTicks {
		return ErrcEncoderFault
	}
	if !isFinite(p.Position) || !isFinite(p.Velocity) {
		return ErrcPositionInvalid
	}

	c := s.lastCurrent
	if !c.Active || c.Error || s.currentStale > cfg.SampleTimeoutTicks {
		return ErrcMotorDriverFault
	}
	if !isFinite(c.Phase.A) || !isFinite(c.Phase.B) || !isFinite(c.Phase.C) {
		return ErrcThetaInvalid
	}
	return ErrcSuccess
}

func (s *Servo) checkWatchdog() {
	if !s.mode.active() || !s.haveCommand {
		return
	}
	timeout := s.config.Load().CommandTimeoutTicks
	if s.cmd.TimeoutTicks > 0 {
		timeout = s.cmd.TimeoutTicks
	}
	if timeout > 0 && s.commandAge > timeout {
		log.Warn("servo command watchdog expired, stopping")
		s.enterStopped()
	}
}

// runControl is steps 1-7 of the per-tick pipeline for the active modes.
func (s *Servo) runControl(control *Control) {
	cfg := s.config.Load()
	rate := cfg.RateHz

	if s.mode == ModePWM {
		control.PWM = s.clampPWM(s.cmd.PWM)
		s.drive.SetPWM(control.PWM)
		return
	}

	theta := electricalTheta(s.lastPosition.Position, cfg.Motor.Poles/2)
	sc := s.cordic.Theta(theta)

	iD, iQ := foc.DQ(sc, s.lastCurrent.Phase.A, s.lastCurrent.Phase.B, s.lastCurrent.Phase.C)
	control.DCurrent = iD
	control.QCurrent = iQ
	control.Torque = s.model.CurrentToTorque(iQ)

	if s.mode == ModeVoltage {
		control.Voltage = s.cmd.Voltage
		s.applyVoltage(control)
		return
	}

	var dV, qV float64
	if s.mode == ModeVoltageDQ {
		dV, qV = s.cmd.DVoltage, s.cmd.QVoltage
	} else {
		var torqueDesired float64
		switch s.mode {
		case ModePosition:
			opts := pid.Options{
				KpScale: scaleOrOne(s.cmd.KpScale),
				KdScale: scaleOrOne(s.cmd.KdScale),
			}
			target := s.limitPosition(s.cmd.Position)
			velDesired := s.positionLoop.ApplyOptions(
				s.lastPosition.Position, target,
				s.lastPosition.Velocity, s.cmd.Velocity,
				rate, opts)
			velDesired = limit(velDesired, -cfg.MaxVelocity, cfg.MaxVelocity)
			torqueDesired = s.velocityLoop.Apply(
				s.lastPosition.Velocity, velDesired, 0, 0, rate)
		case ModeVelocity:
			velDesired := limit(s.cmd.Velocity, -cfg.MaxVelocity, cfg.MaxVelocity)
			torqueDesired = s.velocityLoop.Apply(
				s.lastPosition.Velocity, velDesired, 0, 0, rate)
		case ModeTorque:
			torqueDesired = s.cmd.Torque
		}

		comp := s.model.TorqueToCurrent(s.cmd.FeedforwardTorque)
		control.QCompCurrent = comp

		maxTorque := cfg.MaxTorque * s.derateFactor()
		if s.cmd.MaxTorque > 0 && s.cmd.MaxTorque < maxTorque {
			maxTorque = s.cmd.MaxTorque
		}
		torqueDesired = limit(torqueDesired, -maxTorque, maxTorque)

		iqDesired := limit(s.model.TorqueToCurrent(torqueDesired)+comp,
			-cfg.MaxCurrent, cfg.MaxCurrent)
		idDesired := limit(s.cmd.DCurrent, -cfg.MaxCurrent, cfg.MaxCurrent)

		// De-rate the integral gain as the commanded voltage approaches
		// the bus limit so a saturated loop does not wind up.
		opts := pid.Options{KpScale: 1, KdScale: 1, KiScale: s.saturationKiScale()}
		dV = s.dLoop.ApplyOptions(iD, idDesired, 0, 0, rate, opts)
		qV = s.qLoop.ApplyOptions(iQ, iqDesired, 0, 0, rate, opts)
	}

	control.DV, control.QV = dV, qV
	a, b, c := foc.InverseDQ(sc, dV, qV)
	control.Voltage = Vec3{A: a, B: b, C: c}
	s.applyVoltage(control)
}

// applyVoltage converts phase voltages to duty cycles around the bus
// midpoint, clamps them to the achievable range, and commits them.
func (s *Servo) applyVoltage(control *Control) {
	busV := s.drive.BusVoltage()
	v := control.Voltage
	if !isFinite(v.A) || !isFinite(v.B) || !isFinite(v.C) || busV <= 0 {
		s.enterFault(ErrcThetaInvalid)
		return
	}
	s.lastVoltageMag = math.Hypot(control.DV, control.QV)
	control.PWM = s.clampPWM(Vec3{
		A: 0.5 + v.A/busV,
		B: 0.5 + v.B/busV,
		C: 0.5 + v.C/busV,
	})
	s.drive.SetPWM(control.PWM)
}

func (s *Servo) clampPWM(pwm Vec3) Vec3 {
	cfg := s.config.Load()
	return Vec3{
		A: limit(pwm.A, cfg.PWMMin, cfg.PWMMax),
		B: limit(pwm.B, cfg.PWMMin, cfg.PWMMax),
		C: limit(pwm.C, cfg.PWMMin, cfg.PWMMax),
	}
}

// saturationKiScale tapers the current loop integral gain to zero as the
// last commanded voltage magnitude approaches what the bus can deliver.
func (s *Servo) saturationKiScale() float64 {
	busV := s.drive.BusVoltage()
	max := 0.5 * busV
	if max <= 0 {
		return 1.0
	}
	start := 0.8 * max
	if s.lastVoltageMag <= start {
		return 1.0
	}
	return limit((max-s.lastVoltageMag)/(max-start), 0.0, 1.0)
}

func (s *Servo) derateFactor() float64 {
	return math.Float64frombits(s.derate.Load())
}

func (s *Servo) limitPosition(target float64) float64 {
	pc := s.config.Load().Position
	if !math.IsNaN(pc.PositionMin) && target < pc.PositionMin {
		target = pc.PositionMin
	}
	if !math.IsNaN(pc.PositionMax) && target > pc.PositionMax {
		target = pc.PositionMax
	}
	return target
}

func (s *Servo) publish(control *Control) {
	p := s.lastPosition
	st := &Status{
		Mode:        s.mode,
		Fault:       s.fault,
		Position:    p.Position,
		Velocity:    p.Velocity,
		Torque:      control.Torque,
		DCurrent:    control.DCurrent,
		QCurrent:    control.QCurrent,
		BusVoltage:  s.drive.BusVoltage(),
		Temperature: s.drive.Temperature(),
		Active:      p.Active && !p.Error,
		TickCount:   s.tick,
		Overruns:    s.overruns,
	}
	s.status.Store(st)
	c := *control
	s.control.Store(&c)
}

// PollMillisecond handles the non-time-critical bookkeeping: thermal
// derating input, tick timing statistics and liveness. It must be called
// from a single slower context, never from the tick context.
func (s *Servo) PollMillisecond() {
	cfg := s.config.Load()

	// Thermal derating ramps the torque limit down linearly between the
	// derate and fault temperatures.
	temp := s.drive.Temperature()
	derate := 1.0
	if cfg.MaxTemperature > cfg.DerateTemperature && temp > cfg.DerateTemperature {
		derate = limit((cfg.MaxTemperature-temp)/
			(cfg.MaxTemperature-cfg.DerateTemperature), 0.0, 1.0)
	}
	s.derate.Store(math.Float64bits(derate))

	if ns := s.lastTickNanos.Swap(0); ns > 0 {
		s.timing.Add(float64(ns))
		if ns > s.worstTickNs {
			s.worstTickNs = ns
		}
	}

	// Liveness: while armed the tick counter has to move between polls.
	st := s.Status()
	armed := st.Mode.active() || st.Mode == ModeCalibrating
	if armed && st.TickCount == s.lastSeenTick {
		s.stalledPolls++
		if s.stalledPolls > 4 {
			s.Fault(ErrcTimingViolation)
		}
	} else {
		s.stalledPolls = 0
	}
	s.lastSeenTick = st.TickCount
}

// TimingStats reports the observed tick duration mean and standard
// deviation in nanoseconds, plus the worst tick seen.
func (s *Servo) TimingStats() (mean, stddev float64, worst int64) {
	return s.timing.Mean(), s.timing.Stddev(), s.worstTickNs
}

// electricalTheta maps a cumulative mechanical angle to the q31
// electrical angle. The fraction of a mechanical turn is scaled to a
// 32 bit unsigned angle first, so multiplying by the pole pair count
// wraps instead of overflowing.
func electricalTheta(position float64, polePairs int) int32 {
	turns := position * (1.0 / (2.0 * math.Pi))
	frac := turns - math.Floor(turns)
	mech := uint32(uint64(math.Round(frac * 4294967296.0)))
	return int32(mech * uint32(polePairs))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func limit(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func scaleOrOne(v float64) float64 {
	if v == 0 {
		return 1.0
	}
	return v
}
