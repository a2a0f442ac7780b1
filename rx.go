// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import "github.com/sirupsen/logrus"

// processComps drains the receive ring and drives the per-slot state
// machines. The polled ring entries are only valid until the next RxBurst,
// so everything that outlives this iteration is copied into owned buffers
// here.
func (r *Rpc) processComps() {
	n := r.transport.RxBurst(r.rxRing)
	if n == 0 {
		return
	}
	r.dpathStats.rxBurstCalls++
	r.dpathStats.pktsRx += uint64(n)
	if r.metrics != nil {
		r.metrics.pktsRx.Add(float64(n))
	}
	rxTsc := rdtsc()

	for i := 0; i < n; i++ {
		pkt := r.rxRing[i]
		if len(pkt) < PktHdrSize {
			r.dpathStats.rxDropped++
			continue
		}
		ph := PktHdr(pkt[:PktHdrSize])
		if !ph.CheckMagic() {
			r.dpathStats.rxDropped++
			continue
		}
		sn := int(ph.DestSessionNum())
		if sn >= len(r.sessionVec) {
			r.dpathStats.rxDropped++
			continue
		}
		sess := r.sessionVec[sn]
		if sess == nil {
			r.dpathStats.rxDropped++
			continue
		}
		sslot := &sess.sslots[ph.ReqNum()%SessionReqWindow]

		if r.log.Logger.IsLevelEnabled(logrus.TraceLevel) {
			r.log.WithField("pkthdr", ph.String()).Trace("RX")
		}

		switch ph.PktType() {
		case PktTypeReq:
			if sess.isClient {
				r.dpathStats.rxDropped++
				continue
			}
			if ph.MsgSize() <= r.consts.MaxDataPerPkt {
				r.processSmallReq(sslot, pkt)
			} else {
				r.processLargeReqOne(sslot, pkt)
			}
		case PktTypeResp:
			if !sess.isClient {
				r.dpathStats.rxDropped++
				continue
			}
			r.processRespOne(sslot, pkt, rxTsc)
		case PktTypeExplCR:
			if !sess.isClient {
				r.dpathStats.rxDropped++
				continue
			}
			r.processExplCR(sslot, ph, rxTsc)
		case PktTypeRFR:
			if sess.isClient {
				r.dpathStats.rxDropped++
				continue
			}
			r.processRfr(sslot, ph)
		default:
			r.dpathStats.rxDropped++
		}
	}
}

// processSmallReq handles a single-packet request at the server.
func (r *Rpc) processSmallReq(sslot *SSlot, pkt []byte) {
	ph := PktHdr(pkt[:PktHdrSize])
	reqNum := ph.ReqNum()

	if reqNum < sslot.curReqNum {
		r.dpathStats.rxDropped++
		return
	}

	if reqNum == sslot.curReqNum {
		// Client retransmission. If the response exists, resend its
		// first packet; the handler is never re-invoked. If the handler
		// is still running, drop and let the client retry later.
		if sslot.txMsgbuf != nil {
			r.enqueuePktTxBurst(sslot, 0, nil)
		} else {
			r.dpathStats.rxDropped++
		}
		return
	}

	// New request: the previous request/response pair is dead.
	r.buryRespMsgbufServer(sslot)
	r.buryReqMsgbufServer(sslot)

	sslot.curReqNum = reqNum
	si := &sslot.serverInfo
	si.reqType = ph.ReqType()
	si.numRx = 1
	si.savNumReqPkts = 1
	si.reqMsgbuf = newFakeMsgBuffer(pkt, ph.MsgSize(), r.consts.MaxDataPerPkt)

	r.invokeReqHandler(sslot)
}

// processLargeReqOne handles one packet of a multi-packet request at the
// server.
func (r *Rpc) processLargeReqOne(sslot *SSlot, pkt []byte) {
	ph := PktHdr(pkt[:PktHdrSize])
	reqNum := ph.ReqNum()
	pktNum := ph.PktNum()
	si := &sslot.serverInfo

	if reqNum < sslot.curReqNum {
		r.dpathStats.rxDropped++
		return
	}

	if reqNum == sslot.curReqNum {
		if pktNum < si.numRx {
			// Duplicate after client rollback. Resending the credit
			// return, or the first response packet for the final
			// request packet, is idempotent.
			if pktNum != si.savNumReqPkts-1 {
				r.enqueueCr(sslot, ph)
			} else if sslot.txMsgbuf != nil {
				r.enqueuePktTxBurst(sslot, 0, nil)
			}
			return
		}
		if sslot.txMsgbuf != nil || pktNum != si.numRx {
			// Responded already, or a gap the client must refill first.
			r.dpathStats.rxDropped++
			return
		}
	} else {
		// First packet of a new request.
		if pktNum != 0 {
			r.dpathStats.rxDropped++
			return
		}
		r.buryRespMsgbufServer(sslot)
		r.buryReqMsgbufServer(sslot)

		mb := r.AllocMsgBuffer(ph.MsgSize())
		if !mb.IsValid() {
			// Allocator exhausted; the client will retransmit.
			r.dpathStats.rxDropped++
			return
		}
		sslot.curReqNum = reqNum
		si.reqType = ph.ReqType()
		si.numRx = 0
		si.savNumReqPkts = mb.NumPkts()
		si.reqMsgbuf = mb
	}

	copy(si.reqMsgbuf.Data()[pktNum*r.consts.MaxDataPerPkt:], pkt[PktHdrSize:])
	si.numRx++

	if pktNum != si.savNumReqPkts-1 {
		r.enqueueCr(sslot, ph)
		return
	}
	r.invokeReqHandler(sslot)
}

// invokeReqHandler runs the request handler inline or hands it to a
// background worker. Ring-aliasing request buffers are copied before the
// handoff since they do not survive this event-loop iteration.
func (r *Rpc) invokeReqHandler(sslot *SSlot) {
	rf := r.reqFuncs[sslot.serverInfo.reqType]
	if !rf.isRegistered() {
		r.log.WithField("req_type", sslot.serverInfo.reqType).
			Warn("dropping request with unregistered type")
		r.dpathStats.rxDropped++
		return
	}
	if rf.isForeground() {
		rf.Func(sslot, r.context)
		return
	}
	if sslot.serverInfo.reqMsgbuf.IsFake() {
		fake := sslot.serverInfo.reqMsgbuf
		mb := r.AllocMsgBufferOrDie(fake.DataSize())
		copy(mb.Data(), fake.Data())
		sslot.serverInfo.reqMsgbuf = mb
	}
	r.submitBackground(sslot, bgWorkItemReq, InvalidBgETid)
}

// processRespOne handles a single response packet at the client.
func (r *Rpc) processRespOne(sslot *SSlot, pkt []byte, rxTsc uint64) {
	ph := PktHdr(pkt[:PktHdrSize])
	if !r.inOrderClient(sslot, ph) {
		r.dpathStats.rxDropped++
		return
	}

	ci := &sslot.clientInfo
	sess := sslot.session
	r.bumpCredits(sess)
	r.updateTimelyRate(sslot, ph.PktNum(), rxTsc)
	ci.numRx++
	ci.progressTsc = r.evLoopTsc

	numReqPkts := sslot.txMsgbuf.NumPkts()
	pktIdx := respNtoi(ph.PktNum(), numReqPkts)
	respMsgbuf := ci.respMsgbuf
	if pktIdx == 0 {
		if ph.MsgSize() > respMsgbuf.MaxDataSize() {
			panic("response larger than user response buffer")
		}
		r.ResizeMsgBuffer(respMsgbuf, ph.MsgSize())
	}
	copy(respMsgbuf.Data()[pktIdx*r.consts.MaxDataPerPkt:], pkt[PktHdrSize:])

	if ci.numRx < wirePkts(sslot.txMsgbuf, respMsgbuf) {
		r.kickRfr(sslot)
		return
	}

	// RPC complete. The request buffer returns to the user; the slot is
	// freed in ReleaseResponse.
	r.deleteFromActiveRpcList(sslot)
	sslot.txMsgbuf = nil
	if ci.contEtid == InvalidBgETid {
		ci.contFunc(sslot, r.context, ci.tag)
	} else {
		r.submitBackground(sslot, bgWorkItemResp, ci.contEtid)
	}
}

// submitBackground hands a completed request or response to a background
// worker queue. bgEtid selects a specific worker; InvalidBgETid picks one
// by request number.
func (r *Rpc) submitBackground(sslot *SSlot, kind bgWorkItemKind, bgEtid int) {
	if r.nexus.numBgThreads == 0 {
		panic("background submission without background threads")
	}
	if bgEtid < 0 || bgEtid >= r.nexus.numBgThreads {
		bgEtid = int(sslot.curReqNum) % r.nexus.numBgThreads
	}
	r.nexus.bgReqQueues[bgEtid].push(bgWorkItem{
		kind:    kind,
		rpc:     r,
		sslot:   sslot,
		context: r.context,
	})
}
