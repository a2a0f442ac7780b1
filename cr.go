// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

// An explicit credit return is a header-only packet the server sends for
// every request packet except the last one in sequence; the last packet's
// credit rides back on the first response packet. The CR copies the
// triggering packet's number so the client's ordering guard applies
// unchanged.

// enqueueCr sends an explicit credit return for a received request packet.
func (r *Rpc) enqueueCr(sslot *SSlot, reqPktHdr PktHdr) {
	ctrl := r.nextCtrlMsgbuf()
	ctrl.PktHdr0().Format(PktTypeExplCR, reqPktHdr.ReqType(), 0,
		sslot.session.remSessionNum, reqPktHdr.PktNum(), sslot.curReqNum, r.rpcID)
	r.enqueueHdrTxBurst(sslot, ctrl, nil)
}

// processExplCR handles a credit return at the client.
func (r *Rpc) processExplCR(sslot *SSlot, ph PktHdr, rxTsc uint64) {
	if !r.inOrderClient(sslot, ph) {
		r.dpathStats.rxDropped++
		return
	}
	ci := &sslot.clientInfo
	ci.numRx++
	ci.progressTsc = r.evLoopTsc
	r.bumpCredits(sslot.session)
	r.updateTimelyRate(sslot, ph.PktNum(), rxTsc)
	if reqPktsPending(sslot) {
		r.kickReq(sslot)
	}
}
