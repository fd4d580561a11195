// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnstableObserver is returned for observer gains whose closed loop has
// a pole on or outside the unit circle.
var ErrUnstableObserver = errors.New("unstable observer gains")

// Angles are 32-bit wrapping fractions of a revolution: 1<<31 is half a
// turn (pi radians) and the full int32 range is one turn.
const angleScale = 1 << 31

// AngleRadians converts a wrapping angle to radians in [-pi, pi).
func AngleRadians(a int32) float64 {
	return float64(a) * math.Pi / angleScale
}

// AngleDegrees converts a wrapping angle to degrees in [-180, 180).
func AngleDegrees(a int32) float64 {
	return float64(a) * 180 / angleScale
}

// RPM converts an angular speed in rad/s to revolutions per minute.
func RPM(radPerSec float64) float64 {
	return radPerSec * 60 / (2 * math.Pi)
}

// ObserverConfig tunes the tracking observer.
type ObserverConfig struct {
	SamplePeriod time.Duration
	BandwidthHz  float64 // natural frequency
	Damping      float64
}

// DefaultObserverConfig is a 10 kHz loop with a 50 Hz critically damped
// observer.
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		SamplePeriod: 100 * time.Microsecond,
		BandwidthHz:  50,
		Damping:      1,
	}
}

// stepGains returns the per-sample gains a = Kp*Ts and b = Ki*Ts.
func (c ObserverConfig) stepGains() (a, b float64) {
	wnTs := 2 * math.Pi * c.BandwidthHz * c.SamplePeriod.Seconds()
	return 2 * c.Damping * wnTs, wnTs * wnTs
}

// Validate checks that the loop converges. With the phase error applied
// one sample late the closed loop is z^2 + (a+b-2)z + (1-a), which has
// both poles inside the unit circle iff 0 < a < 2 and 2a + b < 4.
func (c ObserverConfig) Validate() error {
	if c.SamplePeriod <= 0 || c.BandwidthHz <= 0 || c.Damping <= 0 {
		return fmt.Errorf("%w: sample period %s, bandwidth %g Hz and damping %g must be positive",
			ErrInvalidConfig, c.SamplePeriod, c.BandwidthHz, c.Damping)
	}
	a, b := c.stepGains()
	if a >= 2 || 2*a+b >= 4 {
		return fmt.Errorf("%w: %g Hz bandwidth, damping %g at a %s sample period",
			ErrUnstableObserver, c.BandwidthHz, c.Damping, c.SamplePeriod)
	}
	return nil
}

// TrackingObserver is a second-order angle tracking loop. Each Step takes
// the phase error between the measured and estimated angle and advances
// the estimate by one sample period.
type TrackingObserver struct {
	kp, ki float64
	ts     float64 // seconds

	integ float64 // rad/s
	speed float64 // rad/s
	theta int32
}

// NewTrackingObserver derives the loop gains Kp = 2*zeta*wn and
// Ki = wn^2*Ts from cfg. Gains that cannot converge are rejected.
func NewTrackingObserver(cfg ObserverConfig) (*TrackingObserver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wn := 2 * math.Pi * cfg.BandwidthHz
	ts := cfg.SamplePeriod.Seconds()
	return &TrackingObserver{
		kp: 2 * cfg.Damping * wn,
		ki: wn * wn * ts,
		ts: ts,
	}, nil
}

// Step runs one update: integrator, speed, then angle. It returns the new
// angle estimate.
func (o *TrackingObserver) Step(phaseErr int32) int32 {
	e := AngleRadians(phaseErr)
	o.integ += o.ki * e
	o.speed = o.kp*e + o.integ

	delta := math.Round(o.speed * o.ts * angleScale / math.Pi)
	delta = math.Max(math.Min(delta, math.MaxInt32), math.MinInt32)
	o.theta += int32(delta)
	return o.theta
}

// Angle returns the current angle estimate.
func (o *TrackingObserver) Angle() int32 {
	return o.theta
}

// Speed returns the current speed estimate in rad/s.
func (o *TrackingObserver) Speed() float64 {
	return o.speed
}

// Rebase shifts the angle estimate by -delta, keeping the speed state.
func (o *TrackingObserver) Rebase(delta int32) {
	o.theta -= delta
}

// Reset clears the angle, speed and integrator.
func (o *TrackingObserver) Reset() {
	o.integ = 0
	o.speed = 0
	o.theta = 0
}
