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

// Errc identifies a latched fault condition. At most one code is active at
// a time; it stays latched until an explicit re-arm. The numeric values
// are part of the external telemetry contract.
type Errc uint8

// All the fault codes the controller can latch.
const (
	ErrcSuccess Errc = 0

	ErrcCalibrationFault   Errc = 32
	ErrcMotorDriverFault   Errc = 33
	ErrcOverVoltage        Errc = 34
	ErrcEncoderFault       Errc = 35
	ErrcMotorNotConfigured Errc = 36
	ErrcPwmCycleOverrun    Errc = 37
	ErrcOverTemperature    Errc = 38
	ErrcStartOutsideLimit  Errc = 39
	ErrcUnderVoltage       Errc = 40
	ErrcConfigChanged      Errc = 41
	ErrcThetaInvalid       Errc = 42
	ErrcPositionInvalid    Errc = 43
	ErrcDriverEnableFault  Errc = 44
	ErrcTimingViolation    Errc = 46
)

func (e Errc) String() string {
	switch e {
	case ErrcSuccess:
		return "success"
	case ErrcCalibrationFault:
		return "calibration fault"
	case ErrcMotorDriverFault:
		return "motor driver fault"
	case ErrcOverVoltage:
		return "over voltage"
	case ErrcEncoderFault:
		return "encoder fault"
	case ErrcMotorNotConfigured:
		return "motor not configured"
	case ErrcPwmCycleOverrun:
		return "pwm cycle overrun"
	case ErrcOverTemperature:
		return "over temperature"
	case ErrcStartOutsideLimit:
		return "start outside limit"
	case ErrcUnderVoltage:
		return "under voltage"
	case ErrcConfigChanged:
		return "config changed"
	case ErrcThetaInvalid:
		return "theta invalid"
	case ErrcPositionInvalid:
		return "position invalid"
	case ErrcDriverEnableFault:
		return "driver enable fault"
	case ErrcTimingViolation:
		return "timing violation"
	}
	return "unknown"
}

// Error makes fault codes usable as plain errors at API boundaries.
func (e Errc) Error() string {
	return e.String()
}
