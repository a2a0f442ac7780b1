// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

// A request-for-response is a header-only packet the client sends to pull
// the next response packet. Together with credit returns this paces both
// directions at the receiver. RFRs consume session credits but are not
// paced through the wheel.

// enqueueRfr sends one RFR. Its packet number is the next wire packet
// number (numTx), not anything taken from the triggering response packet,
// since one response packet can trigger several RFRs.
func (r *Rpc) enqueueRfr(sslot *SSlot) {
	ci := &sslot.clientInfo
	ctrl := r.nextCtrlMsgbuf()
	ctrl.PktHdr0().Format(PktTypeRFR, 0, 0,
		sslot.session.remSessionNum, ci.numTx, sslot.curReqNum, r.rpcID)
	r.enqueueHdrTxBurst(sslot, ctrl, &ci.txTs[ci.numTx%SessionCredits])
}

// kickRfr transmits as many RFRs as credits allow once the response phase
// has begun. Starved slots park on the stall queue.
func (r *Rpc) kickRfr(sslot *SSlot) {
	ci := &sslot.clientInfo
	sess := sslot.session
	if ci.numRx < sslot.txMsgbuf.NumPkts() {
		return // first response packet not yet received
	}
	wire := wirePkts(sslot.txMsgbuf, ci.respMsgbuf)
	for sess.credits > 0 && ci.numTx < wire {
		r.enqueueRfr(sslot)
		sess.credits--
		ci.numTx++
	}
	if ci.numTx < wire {
		r.stallqPush(sslot)
	}
}

// processRfr handles an RFR at the server by transmitting the requested
// response packet. Duplicate RFRs after client rollback resend the same
// packet; the client's ordering guard discards the extras.
func (r *Rpc) processRfr(sslot *SSlot, ph PktHdr) {
	if ph.ReqNum() != sslot.curReqNum || sslot.txMsgbuf == nil {
		r.dpathStats.rxDropped++
		return
	}
	respIdx := respNtoi(ph.PktNum(), sslot.serverInfo.savNumReqPkts)
	if respIdx < 1 || respIdx >= sslot.txMsgbuf.NumPkts() {
		r.dpathStats.rxDropped++
		return
	}
	r.enqueuePktTxBurst(sslot, respIdx, nil)
}
