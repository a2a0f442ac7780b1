// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

// EnqueueResponse enqueues a response for transmission at the server. The
// handler must have selected a response buffer through PreRespMsgbuf or
// SetDynRespMsgbuf first. Callable from background threads.
func (r *Rpc) EnqueueResponse(reqHandle ReqHandle) {
	if !r.inDispatch() {
		r.bgQueues.enqueueResponse.push(reqHandle)
		return
	}

	sslot := reqHandle
	sess := sslot.session
	if sess == nil || sess.isClient {
		panic("EnqueueResponse on a client sslot")
	}
	if sess.state != SessionConnected {
		// The session died while the handler ran; nothing to send.
		return
	}
	respMsgbuf := sslot.serverInfo.respMsgbuf
	if respMsgbuf == nil || !respMsgbuf.IsValid() {
		panic("EnqueueResponse without a response buffer")
	}
	if sslot.txMsgbuf != nil {
		panic("EnqueueResponse called twice for one request")
	}

	// The handler is done with the request buffer.
	r.buryReqMsgbufServer(sslot)

	// Response packet numbers continue the request's wire sequence: the
	// first response packet reuses the last request packet's number.
	numReqPkts := sslot.serverInfo.savNumReqPkts
	for i := 0; i < respMsgbuf.NumPkts(); i++ {
		respMsgbuf.PktHdrN(i).Format(PktTypeResp, sslot.serverInfo.reqType,
			respMsgbuf.DataSize(), sess.remSessionNum, numReqPkts-1+i,
			sslot.curReqNum, r.rpcID)
	}
	sslot.txMsgbuf = respMsgbuf

	// Transmit the first response packet; the client pulls the rest
	// with RFRs.
	r.enqueuePktTxBurst(sslot, 0, nil)
}

// ReleaseResponse releases ownership of a response handle from a
// continuation, freeing the session slot. Backlogged requests reuse the
// slot immediately. Callable from background threads; the slot free-vector
// is only ever mutated on the dispatch goroutine.
func (r *Rpc) ReleaseResponse(respHandle RespHandle) {
	if !r.inDispatch() {
		r.bgQueues.releaseResponse.push(respHandle)
		return
	}

	sslot := respHandle
	if sslot.txMsgbuf != nil {
		panic("ReleaseResponse before RPC completion")
	}
	sess := sslot.session
	if sess == nil || !sess.isClient {
		panic("ReleaseResponse on a server sslot")
	}

	sess.sslotFreeVec = append(sess.sslotFreeVec, sslot.index)

	if len(sess.enqReqBacklog) > 0 {
		// We just freed a slot, and there can be none others if
		// requests are backlogged.
		if len(sess.sslotFreeVec) != 1 {
			panic("request backlog with multiple free slots")
		}
		args := sess.enqReqBacklog[0]
		sess.enqReqBacklog = sess.enqReqBacklog[1:]
		r.EnqueueRequest(args.sessionNum, args.reqType, args.reqMsgbuf,
			args.respMsgbuf, args.contFunc, args.tag, args.contEtid)
	}
}
