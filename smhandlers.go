// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CreateSession creates a client session and initiates connection. It can
// only be called from the dispatch goroutine. On success the local session
// number is returned and the SM handler will later receive either a
// connected or a connect-failed event.
func (r *Rpc) CreateSession(remoteURI string, remoteRpcID uint8) (int, error) {
	if !r.inDispatch() {
		return -1, errors.New("CreateSession outside dispatch goroutine")
	}
	if remoteURI == "" {
		return -1, errors.New("empty remote URI")
	}
	if remoteURI == r.nexus.URI() && remoteRpcID == r.rpcID {
		return -1, errors.New("cannot connect session to self")
	}
	if !r.haveRingEntries() {
		return -1, errors.New("no receive ring entries available")
	}

	localNum := uint16(len(r.sessionVec))
	sess := newSession(true, r.rpcID, localNum, r.freqGHz, float64(r.transport.Bandwidth()))
	sess.remoteURI = remoteURI
	sess.remoteRpcID = remoteRpcID
	sess.connReqToken = uuid.New()

	r.allocRingEntries()
	r.sessionVec = append(r.sessionVec, sess)
	r.smPendingReqs[localNum] = struct{}{}
	r.sendSmReq(sess)
	return int(localNum), nil
}

// DestroySession disconnects and destroys a client session. The session
// must be connected and have no outstanding RPCs. The SM handler receives
// a disconnected event when the exchange completes.
func (r *Rpc) DestroySession(sessionNum int) error {
	if !r.inDispatch() {
		return errors.New("DestroySession outside dispatch goroutine")
	}
	if !r.isUsrSessionNumInRange(sessionNum) {
		return errors.Errorf("invalid session number %d", sessionNum)
	}
	sess := r.sessionVec[sessionNum]
	if sess == nil || !sess.isClient {
		return errors.Errorf("session %d is not a client session", sessionNum)
	}
	if sess.state != SessionConnected {
		return errors.Errorf("session %d is %s", sessionNum, sess.state)
	}
	if len(sess.sslotFreeVec) != SessionReqWindow || len(sess.enqReqBacklog) != 0 {
		return errors.Errorf("session %d has outstanding RPCs", sessionNum)
	}

	// Teardown must observe TX completion for anything already queued.
	r.drainTxBatchAndDmaQueue()

	sess.state = SessionDisconnectInProgress
	r.smPendingReqs[sess.localSessionNum] = struct{}{}
	r.sendSmReq(sess)
	return nil
}

// sendSmReq sends the SM request matching the session's state and records
// the transmission time for SM retransmission.
func (r *Rpc) sendSmReq(sess *Session) {
	var pktType SmPktType
	switch sess.state {
	case SessionConnectInProgress:
		pktType = SmPktConnectReq
	case SessionDisconnectInProgress:
		pktType = SmPktDisconnectReq
	default:
		panic("sendSmReq in state " + sess.state.String())
	}

	ownRouting, _ := r.transport.ResolveRoutingInfo(r.nexus.URI(), r.rpcID)
	pkt := smPkt{
		pktType:   pktType,
		errType:   SmErrNone,
		uniqToken: sess.connReqToken,
		client: smSessionEndpoint{
			uri:         r.nexus.URI(),
			rpcID:       r.rpcID,
			sessionNum:  sess.localSessionNum,
			routingInfo: ownRouting,
		},
		server: smSessionEndpoint{
			uri:        sess.remoteURI,
			rpcID:      sess.remoteRpcID,
			sessionNum: sess.remSessionNum,
		},
	}
	sess.smReqTxTsc = rdtsc()
	r.log.WithField("sm_pkt", pkt.String()).Debug("SM TX")
	r.smPktUdpTx(pkt)
}

// handleSmRx drains the Nexus hook and routes each SM packet type to its
// own handler.
func (r *Rpc) handleSmRx() {
	for _, pkt := range r.nexusHook.drain() {
		r.log.WithField("sm_pkt", pkt.String()).Debug("SM RX")
		switch pkt.pktType {
		case SmPktConnectReq:
			r.handleConnectReq(pkt)
		case SmPktConnectResp:
			r.handleConnectResp(pkt)
		case SmPktDisconnectReq:
			r.handleDisconnectReq(pkt)
		case SmPktDisconnectResp:
			r.handleDisconnectResp(pkt)
		case SmPktReset:
			r.handleReset(pkt)
		default:
			r.log.WithField("sm_pkt", pkt.String()).Warn("dropping unknown SM packet")
		}
	}
}

// sendConnectRespForSession replies to a connect request with an existing
// server session.
func (r *Rpc) sendConnectRespForSession(pkt smPkt, sess *Session) {
	ownRouting, _ := r.transport.ResolveRoutingInfo(r.nexus.URI(), r.rpcID)
	resp := pkt
	resp.pktType = SmPktConnectResp
	resp.errType = SmErrNone
	resp.server.sessionNum = sess.localSessionNum
	resp.server.routingInfo = ownRouting
	r.smPktUdpTx(resp)
}

func (r *Rpc) sendConnectRespErr(pkt smPkt, errType SmErrType) {
	resp := pkt
	resp.pktType = SmPktConnectResp
	resp.errType = errType
	r.smPktUdpTx(resp)
}

// handleConnectReq runs at the server. Retried connect requests carry the
// same token and collapse onto the already-allocated session.
func (r *Rpc) handleConnectReq(pkt smPkt) {
	if pkt.server.rpcID != r.rpcID {
		r.sendConnectRespErr(pkt, SmErrInvalidRemoteRpcID)
		return
	}

	if sessNum, ok := r.connReqTokenMap[pkt.uniqToken]; ok {
		if sess := r.sessionVec[sessNum]; sess != nil {
			r.sendConnectRespForSession(pkt, sess)
		}
		return
	}

	// A session with this client may exist from a lost response;
	// hostname equality is a plain string compare.
	for _, sess := range r.sessionVec {
		if sess != nil && !sess.isClient &&
			sess.remoteURI == pkt.client.uri &&
			sess.remoteRpcID == pkt.client.rpcID &&
			sess.remSessionNum == pkt.client.sessionNum {
			r.sendConnectRespForSession(pkt, sess)
			return
		}
	}

	if !r.haveRingEntries() {
		r.sendConnectRespErr(pkt, SmErrNoRingEntries)
		return
	}

	clientRouting := pkt.client.routingInfo
	if r.faults.failResolveRinfo || len(clientRouting) == 0 {
		var err error
		clientRouting, err = r.transport.ResolveRoutingInfo(pkt.client.uri, pkt.client.rpcID)
		if r.faults.failResolveRinfo || err != nil {
			r.sendConnectRespErr(pkt, SmErrRoutingResolutionFailure)
			return
		}
	}

	localNum := uint16(len(r.sessionVec))
	sess := newSession(false, r.rpcID, localNum, r.freqGHz, float64(r.transport.Bandwidth()))
	sess.remoteURI = pkt.client.uri
	sess.remoteRpcID = pkt.client.rpcID
	sess.remSessionNum = pkt.client.sessionNum
	sess.remoteRoutingInfo = clientRouting

	// Preallocate each slot's single-packet response buffer.
	for i := range sess.sslots {
		mb := r.AllocMsgBuffer(r.consts.MaxDataPerPkt)
		if !mb.IsValid() {
			for j := 0; j < i; j++ {
				r.FreeMsgBuffer(&sess.sslots[j].serverInfo.preRespMsgbuf)
			}
			r.sendConnectRespErr(pkt, SmErrNoRingEntries)
			return
		}
		sess.sslots[i].serverInfo.preRespMsgbuf = mb
	}

	r.allocRingEntries()
	r.sessionVec = append(r.sessionVec, sess)
	r.connReqTokenMap[pkt.uniqToken] = localNum
	r.log.WithField("session", sess.String()).Info("server session connected")
	r.sendConnectRespForSession(pkt, sess)
}

// handleConnectResp runs at the client.
func (r *Rpc) handleConnectResp(pkt smPkt) {
	sessNum := pkt.client.sessionNum
	if int(sessNum) >= len(r.sessionVec) {
		return
	}
	sess := r.sessionVec[sessNum]
	if sess == nil || !sess.isClient || sess.state != SessionConnectInProgress {
		return // duplicate or stale response
	}
	if pkt.uniqToken != sess.connReqToken {
		return
	}

	if pkt.errType == SmErrInvalidRemoteRpcID && r.RetryConnectOnInvalidRpcID {
		// Server endpoint not started yet; the loss scanner retries.
		r.log.WithField("session", sess.String()).
			Info("connect refused for invalid rpc id, will retry")
		return
	}

	if pkt.errType != SmErrNone {
		delete(r.smPendingReqs, sessNum)
		r.burySession(sess)
		r.smHandler(int(sessNum), SmEventConnectFailed, pkt.errType, r.context)
		return
	}

	serverRouting := pkt.server.routingInfo
	if r.faults.failResolveRinfo || len(serverRouting) == 0 {
		var err error
		serverRouting, err = r.transport.ResolveRoutingInfo(pkt.server.uri, pkt.server.rpcID)
		if r.faults.failResolveRinfo || err != nil {
			delete(r.smPendingReqs, sessNum)
			r.burySession(sess)
			r.smHandler(int(sessNum), SmEventConnectFailed, SmErrRoutingResolutionFailure, r.context)
			return
		}
	}

	delete(r.smPendingReqs, sessNum)
	sess.remSessionNum = pkt.server.sessionNum
	sess.remoteRoutingInfo = serverRouting
	sess.state = SessionConnected
	r.log.WithField("session", sess.String()).Info("client session connected")
	r.smHandler(int(sessNum), SmEventConnected, SmErrNone, r.context)
}

// handleDisconnectReq runs at the server. Disconnects are idempotent: a
// request for an already-buried session still gets a response.
func (r *Rpc) handleDisconnectReq(pkt smPkt) {
	sessNum := pkt.server.sessionNum
	if int(sessNum) < len(r.sessionVec) {
		if sess := r.sessionVec[sessNum]; sess != nil && !sess.isClient {
			for tok, sn := range r.connReqTokenMap {
				if sn == sessNum {
					delete(r.connReqTokenMap, tok)
				}
			}
			r.burySession(sess)
			r.log.WithField("session_num", sessNum).Info("server session disconnected")
		}
	}
	resp := pkt
	resp.pktType = SmPktDisconnectResp
	resp.errType = SmErrNone
	r.smPktUdpTx(resp)
}

// handleDisconnectResp runs at the client.
func (r *Rpc) handleDisconnectResp(pkt smPkt) {
	sessNum := pkt.client.sessionNum
	if int(sessNum) >= len(r.sessionVec) {
		return
	}
	sess := r.sessionVec[sessNum]
	if sess == nil || sess.state != SessionDisconnectInProgress {
		return // duplicate
	}
	delete(r.smPendingReqs, sessNum)
	r.burySession(sess)
	r.log.WithField("session_num", sessNum).Info("client session disconnected")
	r.smHandler(int(sessNum), SmEventDisconnected, SmErrNone, r.context)
}

// handleReset abandons the session unilaterally on the peer's request.
func (r *Rpc) handleReset(pkt smPkt) {
	for _, sess := range r.sessionVec {
		if sess == nil {
			continue
		}
		if sess.remoteURI == pkt.client.uri && sess.remSessionNum == pkt.client.sessionNum {
			num := int(sess.localSessionNum)
			delete(r.smPendingReqs, sess.localSessionNum)
			r.burySession(sess)
			r.smHandler(num, SmEventReset, SmErrNone, r.context)
			return
		}
	}
}

// burySession frees a session's runtime-owned resources and nulls its slot
// in the session vector. User-allocated MsgBuffers are untouched.
func (r *Rpc) burySession(sess *Session) {
	if sess.state == SessionDisconnected {
		return
	}
	for i := range sess.sslots {
		sslot := &sess.sslots[i]
		if !sess.isClient {
			if sslot.serverInfo.preRespMsgbuf.IsValid() {
				r.FreeMsgBuffer(&sslot.serverInfo.preRespMsgbuf)
			}
			r.buryRespMsgbufServer(sslot)
			r.buryReqMsgbufServer(sslot)
		}
	}
	r.freeRingEntries()
	sess.state = SessionDisconnected
	r.sessionVec[sess.localSessionNum] = nil
}
