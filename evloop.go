// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import "github.com/sirupsen/logrus"

// The event loop composes the datapath in a fixed order per iteration:
// drain the SM hook, process received packets, retry credit-starved
// senders, move due wheel entries to the TX batch, drain the background
// queues, flush the TX batch, and periodically scan for packet loss.

// RunEventLoop runs the event loop for at least timeoutMs milliseconds.
func (r *Rpc) RunEventLoop(timeoutMs int) {
	deadline := rdtsc() + msToCycles(float64(timeoutMs), r.freqGHz)
	for rdtsc() < deadline {
		r.runEventLoopDoOne()
	}
}

// RunEventLoopOnce runs a single event-loop iteration.
func (r *Rpc) RunEventLoopOnce() {
	r.runEventLoopDoOne()
}

func (r *Rpc) runEventLoopDoOne() {
	r.evLoopTsc = rdtsc()
	r.dpathStats.evLoopCalls++
	if r.metrics != nil {
		r.metrics.evLoopCalls.Inc()
	}

	r.handleSmRx()
	r.processComps()
	r.processCreditStallQueue()
	r.processWheel()
	r.processBgQueues()

	if r.txBatchI > 0 {
		r.doTxBurst()
	}

	if r.evLoopTsc-r.pktLossScanTsc > r.rpcPktLossScanCycles {
		r.pktLossScanTsc = r.evLoopTsc
		r.pktLossScan()
	}
}

// enqueuePktTxBurst appends a data packet from the sslot's tx buffer to
// the TX batch. pktIdx is the packet's index in the buffer, not its wire
// packet number.
func (r *Rpc) enqueuePktTxBurst(sslot *SSlot, pktIdx int, txTs *uint64) {
	item := &r.txBurstArr[r.txBatchI]
	item.RoutingInfo = sslot.session.remoteRoutingInfo
	item.MsgBuffer = sslot.txMsgbuf
	item.PktIdx = pktIdx
	item.TxTs = txTs
	item.Drop = r.rollPktDrop()

	if r.log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		r.log.WithFields(logrus.Fields{
			"pkthdr": sslot.txMsgbuf.PktHdrN(pktIdx).String(),
			"slot":   sslot.progressStr(),
			"drop":   item.Drop,
		}).Trace("TX")
	}

	r.txBatchI++
	if r.txBatchI == r.consts.Postlist {
		r.doTxBurst()
	}
}

// enqueueHdrTxBurst appends a control packet (CR or RFR) to the TX batch.
// The control buffer may be reused after 2*UnsigBatch subsequent sends.
func (r *Rpc) enqueueHdrTxBurst(sslot *SSlot, ctrlMsgbuf *MsgBuffer, txTs *uint64) {
	item := &r.txBurstArr[r.txBatchI]
	item.RoutingInfo = sslot.session.remoteRoutingInfo
	item.MsgBuffer = ctrlMsgbuf
	item.PktIdx = 0
	item.TxTs = txTs
	item.Drop = r.rollPktDrop()

	if r.log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		r.log.WithFields(logrus.Fields{
			"pkthdr": ctrlMsgbuf.PktHdr0().String(),
			"slot":   sslot.progressStr(),
			"drop":   item.Drop,
		}).Trace("TX ctrl")
	}

	r.txBatchI++
	if r.txBatchI == r.consts.Postlist {
		r.doTxBurst()
	}
}

// doTxBurst hands the TX batch to the transport. One timestamp is taken
// per batch for RTT measurement.
func (r *Rpc) doTxBurst() {
	if r.txBatchI == 0 {
		panic("empty TX burst")
	}
	r.dpathStats.txBurstCalls++
	r.dpathStats.pktsTx += uint64(r.txBatchI)
	if r.metrics != nil {
		r.metrics.pktsTx.Add(float64(r.txBatchI))
	}

	batchTsc := rdtsc()
	for i := 0; i < r.txBatchI; i++ {
		if r.txBurstArr[i].TxTs != nil {
			*r.txBurstArr[i].TxTs = batchTsc
		}
	}

	r.transport.TxBurst(r.txBurstArr[:r.txBatchI])
	r.txBatchI = 0
}

// drainTxBatchAndDmaQueue completes transmission of the TX batch and the
// transport's DMA queue. Used before anything that must observe TX
// completion, like session teardown.
func (r *Rpc) drainTxBatchAndDmaQueue() {
	if r.txBatchI > 0 {
		r.doTxBurst()
	}
	r.transport.TxFlush()
}

// processWheel moves due wheel entries into the TX batch. Their credits
// were spent at insertion; numTx is bumped only here, on emission.
func (r *Rpc) processWheel() {
	r.wheel.reap(rdtsc())
	for _, ent := range r.wheel.drainReady() {
		sslot := ent.sslot
		ci := &sslot.clientInfo
		ci.inWheel[ent.pktNum%SessionCredits] = false
		ci.wheelCount--
		if sslot.txMsgbuf == nil {
			// The RPC died while the entry was wheeled; return the
			// credit it was holding.
			r.bumpCredits(sslot.session)
			continue
		}
		r.enqueuePktTxBurst(sslot, ent.pktNum, &ci.txTs[ent.pktNum%SessionCredits])
		ci.numTx++
	}
}

// processBgQueues drains the three queues fed by background threads.
func (r *Rpc) processBgQueues() {
	if r.bgQueues.enqueueRequest.approxSize() > 0 {
		for _, a := range r.bgQueues.enqueueRequest.drain() {
			r.EnqueueRequest(a.sessionNum, a.reqType, a.reqMsgbuf,
				a.respMsgbuf, a.contFunc, a.tag, a.contEtid)
		}
	}
	if r.bgQueues.enqueueResponse.approxSize() > 0 {
		for _, h := range r.bgQueues.enqueueResponse.drain() {
			r.EnqueueResponse(h)
		}
	}
	if r.bgQueues.releaseResponse.approxSize() > 0 {
		for _, h := range r.bgQueues.releaseResponse.drain() {
			r.ReleaseResponse(h)
		}
	}
}

// GetWheel exposes the timing wheel. Expert use only.
func (r *Rpc) GetWheel() *timingWheel { return r.wheel }
