// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

// The congestion-control math is an external collaborator; the datapath
// consumes only its desired transmission timestamp and its congestion
// verdict. The implementation here holds the rate at link speed unless a
// test lowers it.

// timely tracks the per-session send rate and the last RTT sample.
type timely struct {
	freqGHz    float64
	linkBps    float64 // link bandwidth, bytes per second
	rateBps    float64 // current allowed rate, bytes per second
	lastRtt    uint64  // cycles
	numUpdates uint64
}

func newTimely(freqGHz float64, linkBps float64) timely {
	return timely{freqGHz: freqGHz, linkBps: linkBps, rateBps: linkBps}
}

// updateRate consumes one RTT sample.
func (t *timely) updateRate(rxTsc, rttTsc uint64) {
	t.lastRtt = rttTsc
	t.numUpdates++
}

// ccState is a session's congestion-control state.
type ccState struct {
	timely timely

	// prevDesiredTxTsc is the timestamp assigned to the previously paced
	// packet; pacing is a running token bucket over it.
	prevDesiredTxTsc uint64
}

// getUpdateTxTsc returns the desired transmission timestamp for a packet of
// pktSize bytes and advances the pacer.
func (cc *ccState) getUpdateTxTsc(refTsc uint64, pktSize int) uint64 {
	cyclesPerByte := (cc.timely.freqGHz * 1e9) / cc.timely.rateBps
	delta := uint64(float64(pktSize) * cyclesPerByte)
	desired := cc.prevDesiredTxTsc + delta
	if desired < refTsc {
		desired = refTsc
	}
	cc.prevDesiredTxTsc = desired
	return desired
}

// isUncongested returns true when the session may bypass the wheel.
func (cc *ccState) isUncongested() bool {
	return cc.timely.rateBps >= cc.timely.linkBps
}
