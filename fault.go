// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import "fmt"

const billion = 1000 * 1000 * 1000

// faultInjectCheckOk panics unless the caller is the dispatch goroutine.
// Fault injection from anywhere else would race the datapath.
func (r *Rpc) faultInjectCheckOk() {
	if !r.inDispatch() {
		panic("fault injection outside dispatch goroutine")
	}
}

// FaultInjectFailResolveRinfo makes all routing info resolution fail.
func (r *Rpc) FaultInjectFailResolveRinfo() {
	r.faultInjectCheckOk()
	r.faults.failResolveRinfo = true
}

// FaultInjectSetPktDropProb sets the probability of dropping a transmitted
// packet.
func (r *Rpc) FaultInjectSetPktDropProb(pktDropProb float64) {
	r.faultInjectCheckOk()
	if pktDropProb < 0 || pktDropProb >= 1 {
		panic(fmt.Sprintf("invalid packet drop probability %v", pktDropProb))
	}
	r.faults.pktDropProb = pktDropProb
	r.faults.pktDropThreshBillion = uint32(pktDropProb * billion)
}

// faultInjectSetHardWheelBypass forces wheel bypass regardless of
// congestion. Testing only.
func (r *Rpc) faultInjectSetHardWheelBypass(bypass bool) {
	r.faultInjectCheckOk()
	r.faults.hardWheelBypass = bypass
}

// rollPktDrop returns true iff the next transmitted packet should be
// dropped.
func (r *Rpc) rollPktDrop() bool {
	if r.faults.pktDropThreshBillion == 0 {
		return false
	}
	return r.fastRand.nextU32()%billion < r.faults.pktDropThreshBillion
}
