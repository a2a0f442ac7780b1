// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import "time"

// The datapath's clock of record is a monotonic cycle counter anchored at
// process start. Wall-clock time is never read on the datapath.

var tscEpoch = time.Now()

// rdtsc returns the current timestamp in cycles. One cycle is one
// nanosecond of the monotonic clock, so the measured frequency is 1 GHz.
func rdtsc() uint64 {
	return uint64(time.Since(tscEpoch))
}

// measureFreqGHz measures the cycle counter frequency in GHz. It is called
// once at Nexus construction and the result is shared by every endpoint.
func measureFreqGHz() float64 {
	start := rdtsc()
	t0 := time.Now()
	for time.Since(t0) < time.Millisecond {
	}
	cycles := rdtsc() - start
	return float64(cycles) / float64(time.Since(t0).Nanoseconds())
}

// toUsec converts cycles to microseconds.
func toUsec(cycles uint64, freqGHz float64) float64 {
	return float64(cycles) / (freqGHz * 1000)
}

// toSec converts cycles to seconds.
func toSec(cycles uint64, freqGHz float64) float64 {
	return float64(cycles) / (freqGHz * 1e9)
}

// usToCycles converts microseconds to cycles.
func usToCycles(us float64, freqGHz float64) uint64 {
	return uint64(us * freqGHz * 1000)
}

// msToCycles converts milliseconds to cycles.
func msToCycles(ms float64, freqGHz float64) uint64 {
	return uint64(ms * freqGHz * 1e6)
}
