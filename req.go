// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

// EnqueueRequest enqueues a request for transmission on a session. The
// runtime owns reqMsgbuf until the continuation is invoked. If no session
// slot is free the arguments are backlogged and replayed transparently on
// the next slot release. contEtid selects the background thread for the
// continuation; InvalidBgETid runs it inline on the dispatch goroutine.
//
// Callable from background threads; the request then becomes visible to
// the wire when the dispatch goroutine drains its queues.
func (r *Rpc) EnqueueRequest(sessionNum int, reqType uint8, reqMsgbuf, respMsgbuf *MsgBuffer, contFunc ContFunc, tag uint64, contEtid int) {
	if !r.inDispatch() {
		if contEtid == InvalidBgETid {
			// A request issued from a background thread continues on
			// that same thread.
			contEtid = r.tlsRegistry.etid()
		}
		r.bgQueues.enqueueRequest.push(enqReqArgs{
			sessionNum: sessionNum,
			reqType:    reqType,
			reqMsgbuf:  reqMsgbuf,
			respMsgbuf: respMsgbuf,
			contFunc:   contFunc,
			tag:        tag,
			contEtid:   contEtid,
		})
		return
	}

	if !r.isUsrSessionNumInRange(sessionNum) {
		panic("EnqueueRequest: invalid session number")
	}
	sess := r.sessionVec[sessionNum]
	if sess == nil || !sess.isClient || !sess.isConnected() {
		panic("EnqueueRequest: session is not a connected client session")
	}
	if !reqMsgbuf.IsValid() || reqMsgbuf.DataSize() == 0 || reqMsgbuf.DataSize() > r.maxMsgSize {
		panic("EnqueueRequest: invalid request MsgBuffer")
	}
	if !respMsgbuf.IsValid() {
		panic("EnqueueRequest: invalid response MsgBuffer")
	}
	if contFunc == nil {
		panic("EnqueueRequest: nil continuation")
	}

	if len(sess.sslotFreeVec) == 0 {
		sess.enqReqBacklog = append(sess.enqReqBacklog, enqReqArgs{
			sessionNum: sessionNum,
			reqType:    reqType,
			reqMsgbuf:  reqMsgbuf,
			respMsgbuf: respMsgbuf,
			contFunc:   contFunc,
			tag:        tag,
			contEtid:   contEtid,
		})
		return
	}

	idx := sess.sslotFreeVec[len(sess.sslotFreeVec)-1]
	sess.sslotFreeVec = sess.sslotFreeVec[:len(sess.sslotFreeVec)-1]
	sslot := &sess.sslots[idx]

	// Request numbers advance by the window size so the slot index is
	// recoverable from the request number alone.
	sslot.curReqNum += SessionReqWindow
	sslot.txMsgbuf = reqMsgbuf

	ci := &sslot.clientInfo
	if ci.wheelCount != 0 {
		panic("slot reused with wheel entries pending")
	}
	ci.respMsgbuf = respMsgbuf
	ci.contFunc = contFunc
	ci.tag = tag
	ci.contEtid = contEtid
	ci.numTx = 0
	ci.numRx = 0
	ci.inStallq = false
	ci.progressTsc = rdtsc()

	for i := 0; i < reqMsgbuf.NumPkts(); i++ {
		reqMsgbuf.PktHdrN(i).Format(PktTypeReq, reqType, reqMsgbuf.DataSize(),
			sess.remSessionNum, i, sslot.curReqNum, r.rpcID)
	}

	r.addToActiveRpcList(sslot)
	r.kickReq(sslot)
}

// stallqPush parks an sslot that has packets to send but no credits.
func (r *Rpc) stallqPush(sslot *SSlot) {
	if sslot.clientInfo.inStallq {
		return
	}
	sslot.clientInfo.inStallq = true
	r.stallq = append(r.stallq, sslot)
	if r.metrics != nil {
		r.metrics.stalls.Inc()
	}
}

// kickReq transmits as many request packets as session credits allow,
// through the wheel when pacing demands it. Starved slots park on the
// stall queue.
func (r *Rpc) kickReq(sslot *SSlot) {
	ci := &sslot.clientInfo
	sess := sslot.session

	base := ci.numTx + ci.wheelCount
	pending := sslot.txMsgbuf.NumPkts() - base
	if pending <= 0 {
		return
	}
	sending := pending
	if sending > sess.credits {
		sending = sess.credits
	}
	if sending == 0 {
		r.stallqPush(sslot)
		return
	}

	sess.credits -= sending
	if r.canBypassWheel(sslot) {
		for i := 0; i < sending; i++ {
			pktNum := ci.numTx
			r.enqueuePktTxBurst(sslot, pktNum, &ci.txTs[pktNum%SessionCredits])
			ci.numTx++
		}
	} else {
		for i := 0; i < sending; i++ {
			r.enqueueWheelReq(sslot, base+i)
		}
	}

	if sending < pending {
		r.stallqPush(sslot)
	}
}

// enqueueWheelReq schedules one request packet in the timing wheel at the
// timestamp chosen by the session's congestion control. The credit is
// already spent; numTx is bumped when the wheel emits the packet.
func (r *Rpc) enqueueWheelReq(sslot *SSlot, pktNum int) {
	ci := &sslot.clientInfo
	pktsz := sslot.txMsgbuf.PktSize(pktNum) + PktHdrSize
	refTsc := rdtsc()
	desired := sslot.session.cc.getUpdateTxTsc(refTsc, pktsz)
	r.wheel.insert(wheelEnt{sslot: sslot, pktNum: pktNum}, refTsc, desired)
	ci.inWheel[pktNum%SessionCredits] = true
	ci.wheelCount++
}

// processCreditStallQueue retries credit-starved senders round-robin.
func (r *Rpc) processCreditStallQueue() {
	if len(r.stallq) == 0 {
		return
	}
	q := r.stallq
	r.stallq = nil
	for _, sslot := range q {
		sslot.clientInfo.inStallq = false
		if sslot.txMsgbuf == nil {
			continue // completed while parked
		}
		if reqPktsPending(sslot) {
			r.kickReq(sslot)
		} else {
			r.kickRfr(sslot)
		}
	}
}
