// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

// pktLossScan walks the active-RPC list and the pending SM requests,
// retransmitting whatever has made no progress within its timeout.
func (r *Rpc) pktLossScan() {
	for sslot := r.activeRpcsRootSentinel.clientInfo.next; sslot != &r.activeRpcsTailSentinel; {
		next := sslot.clientInfo.next
		if r.evLoopTsc-sslot.clientInfo.progressTsc > r.rpcRtoCycles {
			r.pktLossRetransmit(sslot)
		}
		sslot = next
	}

	smTimeoutCycles := msToCycles(float64(SMTimeout.Milliseconds()), r.freqGHz)
	for sn := range r.smPendingReqs {
		sess := r.sessionVec[sn]
		if sess == nil {
			delete(r.smPendingReqs, sn)
			continue
		}
		if rdtsc()-sess.smReqTxTsc > smTimeoutCycles {
			r.sendSmReq(sess)
		}
	}
}

// pktLossRetransmit rolls an sslot back and resends its unacknowledged
// packets. Packets still sitting in the wheel will be sent by the wheel;
// they are counted and the retransmit is retried at the next scan if the
// loss persists. Rollback reclaims the credits of on-wire packets so
// credit conservation holds across the retransmission.
func (r *Rpc) pktLossRetransmit(sslot *SSlot) {
	ci := &sslot.clientInfo
	sess := sslot.session

	ci.progressTsc = r.evLoopTsc

	if ci.wheelCount > 0 {
		r.pktLossStats.stillInWheelDuringRetx += uint64(ci.wheelCount)
		return
	}

	delta := ci.numTx - ci.numRx
	if delta > 0 {
		sess.credits += delta
		if sess.credits > SessionCredits {
			panic("credit conservation broken in rollback")
		}
		ci.numTx = ci.numRx
	}

	sess.numReTx++
	r.pktLossStats.numReTx++
	if r.metrics != nil {
		r.metrics.retransmits.Inc()
	}
	r.log.WithFields(map[string]interface{}{
		"session": sess.localSessionNum,
		"req_num": sslot.curReqNum,
		"slot":    sslot.progressStr(),
	}).Debug("retransmitting")

	if reqPktsPending(sslot) {
		r.kickReq(sslot)
	} else {
		r.kickRfr(sslot)
	}
}
