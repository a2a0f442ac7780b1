// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import (
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// initialHugeAllocCap is the memory budget of an endpoint's allocator.
const initialHugeAllocCap = 128 * 1024 * 1024

// ctrlMsgbufDataSize is the data capacity of the control-packet buffers
// used for credit returns and RFRs.
const ctrlMsgbufDataSize = 8

// Rpc is one endpoint of the RPC runtime. It is created on its dispatch
// goroutine, which thereafter owns all datapath state; only the documented
// APIs may be called from background threads.
type Rpc struct {
	nexus     *Nexus
	context   interface{}
	rpcID     uint8
	smHandler SmHandler
	phyPort   uint8

	creationTsc   uint64
	multiThreaded bool
	freqGHz       float64

	rpcRtoCycles         uint64
	rpcPktLossScanCycles uint64

	// reqFuncs is a copy of the Nexus's handler table; an array is
	// faster than chasing the Nexus pointer per request.
	reqFuncs [ReqTypeArraySize]ReqFunc

	creatorEtid int
	tlsRegistry *tlsRegistry

	// sessionVec is append-only, indexed by local session number.
	// Disconnected slots hold nil and are never reused.
	sessionVec []*Session

	transport  Transport
	consts     TransportConsts
	maxMsgSize int

	ringEntriesAvailable int

	txBurstArr []TxBurstItem
	txBatchI   int

	rxRing [][]byte

	// stallq holds sslots with packets to send but no session credits.
	stallq []*SSlot

	evLoopTsc      uint64
	pktLossScanTsc uint64

	// Permanent sentinels make active-RPC list insert/remove branch-free.
	activeRpcsRootSentinel SSlot
	activeRpcsTailSentinel SSlot

	hugeAlloc     *hugeAlloc
	hugeAllocLock sync.Mutex

	// ctrlMsgbufs is a ring of buffers for CR and RFR packets; an entry
	// may be reused after 2*UnsigBatch subsequent sends.
	ctrlMsgbufs    []MsgBuffer
	ctrlMsgbufHead int

	fastRand fastRand

	wheel *timingWheel

	bgQueues struct {
		enqueueRequest  mtQueue[enqReqArgs]
		enqueueResponse mtQueue[ReqHandle]
		releaseResponse mtQueue[RespHandle]
	}

	smConn    *net.UDPConn
	nexusHook *nexusHook

	// connReqTokenMap collapses retried connect requests onto the
	// session already allocated for the token.
	connReqTokenMap map[uuid.UUID]uint16

	// smPendingReqs holds session numbers with an outstanding SM
	// request, rechecked by the packet-loss scanner.
	smPendingReqs map[uint16]struct{}

	faults struct {
		failResolveRinfo     bool
		hardWheelBypass      bool
		pktDropProb          float64
		pktDropThreshBillion uint32
	}

	dpathStats   dpathStats
	pktLossStats pktLossStats
	latency      latencyStats
	metrics      *Metrics

	log *logrus.Entry

	// RetryConnectOnInvalidRpcID retries session connection when the
	// remote endpoint ID was invalid, which usually means the server
	// endpoint has not started yet.
	RetryConnectOnInvalidRpcID bool
}

// NewRpc constructs an endpoint on the calling goroutine, which becomes its
// dispatch goroutine. smHandler receives asynchronous session management
// outcomes; phyPort selects the fabric port.
func NewRpc(nexus *Nexus, context interface{}, rpcID uint8, smHandler SmHandler, phyPort uint8) (*Rpc, error) {
	if nexus == nil {
		return nil, errors.New("nil nexus")
	}
	if smHandler == nil {
		return nil, errors.New("nil session management handler")
	}

	transport, err := newMemTransport(nexus.URI(), rpcID)
	if err != nil {
		return nil, err
	}
	consts := transport.Consts()

	r := &Rpc{
		nexus:         nexus,
		context:       context,
		rpcID:         rpcID,
		smHandler:     smHandler,
		phyPort:       phyPort,
		creationTsc:   rdtsc(),
		multiThreaded: nexus.numBgThreads > 0,
		freqGHz:       nexus.freqGHz,
		creatorEtid:   nexus.tlsRegistry.registerEtid(),
		tlsRegistry:   nexus.tlsRegistry,
		transport:     transport,
		consts:        consts,
		maxMsgSize:    MaxMsgSize(consts.MaxDataPerPkt),

		ringEntriesAvailable: consts.NumRxRingEntries,
		txBurstArr:           make([]TxBurstItem, consts.Postlist),
		rxRing:               make([][]byte, consts.NumRxRingEntries),
		hugeAlloc:            newHugeAlloc(initialHugeAllocCap),
		fastRand:             newFastRand(),
		smConn:               nexus.smConn,
		connReqTokenMap:      make(map[uuid.UUID]uint16),
		smPendingReqs:        make(map[uint16]struct{}),
	}
	r.rpcRtoCycles = msToCycles(float64(RpcRTO.Milliseconds()), r.freqGHz)
	r.rpcPktLossScanCycles = r.rpcRtoCycles / 2
	r.wheel = newTimingWheel(r.freqGHz)
	r.log = nexus.log.Logger.WithField("rpc_id", rpcID)

	r.activeRpcsRootSentinel.clientInfo.next = &r.activeRpcsTailSentinel
	r.activeRpcsTailSentinel.clientInfo.prev = &r.activeRpcsRootSentinel

	for i := 0; i < 2*consts.UnsigBatch; i++ {
		mb := r.AllocMsgBuffer(ctrlMsgbufDataSize)
		if !mb.IsValid() {
			transport.Close()
			return nil, errors.New("cannot allocate control buffers")
		}
		r.ResizeMsgBuffer(&mb, 0)
		r.ctrlMsgbufs = append(r.ctrlMsgbufs, mb)
	}

	r.nexusHook = &nexusHook{rpcID: rpcID}
	r.reqFuncs, err = nexus.registerHook(r.nexusHook)
	if err != nil {
		transport.Close()
		return nil, err
	}

	r.evLoopTsc = rdtsc()
	r.pktLossScanTsc = r.evLoopTsc
	r.log.Info("endpoint created")
	return r, nil
}

// Destroy tears the endpoint down from its dispatch goroutine. Outstanding
// sessions are buried without the disconnect exchange.
func (r *Rpc) Destroy() {
	r.drainTxBatchAndDmaQueue()
	for _, sess := range r.sessionVec {
		if sess != nil {
			r.burySession(sess)
		}
	}
	r.nexus.unregisterHook(r.nexusHook)
	r.transport.Close()
	r.log.Info("endpoint destroyed")
}

//
// MsgBuffer management
//

// AllocMsgBuffer creates a MsgBuffer able to hold maxDataSize data bytes.
// The returned buffer is invalid (nil payload) if the allocator is
// exhausted; that is not an error.
func (r *Rpc) AllocMsgBuffer(maxDataSize int) MsgBuffer {
	if maxDataSize <= 0 || maxDataSize > r.maxMsgSize {
		return MsgBuffer{}
	}
	maxNumPkts := dataSizeToNumPkts(maxDataSize, r.consts.MaxDataPerPkt)
	need := maxDataSize + maxNumPkts*PktHdrSize

	r.lockCond(&r.hugeAllocLock)
	b, class := r.hugeAlloc.alloc(need)
	r.unlockCond(&r.hugeAllocLock)
	if b == nil {
		return MsgBuffer{}
	}
	mb := newMsgBuffer(b[:need], maxDataSize, maxNumPkts, r.consts.MaxDataPerPkt)
	mb.dynamic = true
	mb.class = class
	return mb
}

// AllocMsgBufferOrDie is AllocMsgBuffer that panics on exhaustion.
func (r *Rpc) AllocMsgBufferOrDie(maxDataSize int) MsgBuffer {
	mb := r.AllocMsgBuffer(maxDataSize)
	if !mb.IsValid() {
		panic("msgbuffer allocation failed")
	}
	return mb
}

// ResizeMsgBuffer shrinks a MsgBuffer's data size, possibly to zero. The
// packet headers are not modified.
func (r *Rpc) ResizeMsgBuffer(mb *MsgBuffer, newDataSize int) {
	if !mb.IsValid() || newDataSize > mb.maxDataSize || newDataSize < 0 {
		panic("invalid MsgBuffer resize")
	}
	mb.resize(newDataSize, dataSizeToNumPkts(newDataSize, r.consts.MaxDataPerPkt))
}

// FreeMsgBuffer frees a buffer created by AllocMsgBuffer.
func (r *Rpc) FreeMsgBuffer(mb *MsgBuffer) {
	if !mb.IsValid() || !mb.dynamic {
		panic("freeing invalid or non-dynamic MsgBuffer")
	}
	r.lockCond(&r.hugeAllocLock)
	r.hugeAlloc.free(mb.buf[:cap(mb.buf)], mb.class)
	r.unlockCond(&r.hugeAllocLock)
	mb.buf = nil
}

// Bury a server sslot's response MsgBuffer, freeing it unless it is the
// slot's preallocated one. Dispatch goroutine only.
func (r *Rpc) buryRespMsgbufServer(sslot *SSlot) {
	if !sslot.preallocUsed && sslot.txMsgbuf != nil && sslot.txMsgbuf.IsDynamic() {
		r.FreeMsgBuffer(sslot.txMsgbuf)
	}
	sslot.txMsgbuf = nil
	sslot.serverInfo.respMsgbuf = nil
}

// Bury a server sslot's request MsgBuffer. Fake buffers alias ring memory
// and are dropped without freeing.
func (r *Rpc) buryReqMsgbufServer(sslot *SSlot) {
	mb := &sslot.serverInfo.reqMsgbuf
	if mb.IsValid() && mb.IsDynamic() {
		r.FreeMsgBuffer(mb)
	}
	mb.buf = nil
	mb.fake = false
	mb.dynamic = false
}

//
// Ring entry accounting
//

func (r *Rpc) haveRingEntries() bool {
	return r.ringEntriesAvailable >= SessionCredits
}

func (r *Rpc) allocRingEntries() {
	if !r.haveRingEntries() {
		panic("ring entries exhausted")
	}
	r.ringEntriesAvailable -= SessionCredits
}

func (r *Rpc) freeRingEntries() {
	r.ringEntriesAvailable += SessionCredits
	if r.ringEntriesAvailable > r.consts.NumRxRingEntries {
		panic("ring entry accounting broken")
	}
}

//
// Datapath helpers
//

// inOrderClient returns true iff a packet received by a client passes the
// ordering guard. Rejections are the only defense against retransmission
// duplicates and post-rollback stragglers, so this must stay exact.
func (r *Rpc) inOrderClient(sslot *SSlot, ph PktHdr) bool {
	ci := &sslot.clientInfo
	if ph.ReqNum() != sslot.curReqNum {
		return false
	}
	if ph.PktNum() != ci.numRx {
		return false
	}
	// Only packets we have sent can be acknowledged; anything else is a
	// rollback artifact.
	if ph.PktNum() >= ci.numTx {
		return false
	}
	if ci.inWheel[ph.PktNum()%SessionCredits] {
		r.pktLossStats.stillInWheelDuringRetx++
		return false
	}
	return true
}

// canBypassWheel returns true when a packet may skip the wheel and be sent
// immediately: no other wheel entries for the sslot and an uncongested
// session. Bypass conserves the rate budget.
func (r *Rpc) canBypassWheel(sslot *SSlot) bool {
	if r.faults.hardWheelBypass {
		return true
	}
	return sslot.clientInfo.wheelCount == 0 && sslot.session.cc.isUncongested()
}

// bumpCredits returns one credit to a client session.
func (r *Rpc) bumpCredits(sess *Session) {
	if !sess.isClient {
		panic("credit bump on server session")
	}
	if sess.credits >= SessionCredits {
		panic("session credits overflow")
	}
	sess.credits++
}

// updateTimelyRate feeds the RTT sample for an acknowledged packet into
// the session's congestion control.
func (r *Rpc) updateTimelyRate(sslot *SSlot, pktNum int, rxTsc uint64) {
	txTs := sslot.clientInfo.txTs[pktNum%SessionCredits]
	if txTs == 0 || rxTsc < txTs {
		return
	}
	rtt := rxTsc - txTs
	sslot.session.cc.timely.updateRate(rxTsc, rtt)
	r.latency.record(toUsec(rtt, r.freqGHz))
}

// nextCtrlMsgbuf returns the next control-packet buffer in the ring.
func (r *Rpc) nextCtrlMsgbuf() *MsgBuffer {
	mb := &r.ctrlMsgbufs[r.ctrlMsgbufHead]
	r.ctrlMsgbufHead = (r.ctrlMsgbufHead + 1) % len(r.ctrlMsgbufs)
	return mb
}

//
// Active-RPC list
//

func (r *Rpc) addToActiveRpcList(sslot *SSlot) {
	prevTail := r.activeRpcsTailSentinel.clientInfo.prev
	prevTail.clientInfo.next = sslot
	sslot.clientInfo.prev = prevTail
	sslot.clientInfo.next = &r.activeRpcsTailSentinel
	r.activeRpcsTailSentinel.clientInfo.prev = sslot
}

func (r *Rpc) deleteFromActiveRpcList(sslot *SSlot) {
	sslot.clientInfo.prev.clientInfo.next = sslot.clientInfo.next
	sslot.clientInfo.next.clientInfo.prev = sslot.clientInfo.prev
	sslot.clientInfo.next = nil
	sslot.clientInfo.prev = nil
}

//
// Misc
//

// inDispatch returns true iff the caller runs on this endpoint's dispatch
// goroutine.
func (r *Rpc) inDispatch() bool {
	return r.tlsRegistry.etid() == r.creatorEtid
}

// InBackground returns true iff the caller runs on a background thread.
func (r *Rpc) InBackground() bool { return !r.inDispatch() }

// GetEtid returns the caller's thread ID in the Nexus registry.
func (r *Rpc) GetEtid() int { return r.tlsRegistry.etid() }

func (r *Rpc) lockCond(mu *sync.Mutex) {
	if r.multiThreaded {
		mu.Lock()
	}
}

func (r *Rpc) unlockCond(mu *sync.Mutex) {
	if r.multiThreaded {
		mu.Unlock()
	}
}

func (r *Rpc) isUsrSessionNumInRange(sessionNum int) bool {
	return sessionNum >= 0 && sessionNum < len(r.sessionVec)
}

// GetRpcID returns this endpoint's ID.
func (r *Rpc) GetRpcID() uint8 { return r.rpcID }

// GetFreqGHz returns the measured cycle-counter frequency.
func (r *Rpc) GetFreqGHz() float64 { return r.freqGHz }

// GetMaxMsgSize returns the largest message data size.
func (r *Rpc) GetMaxMsgSize() int { return r.maxMsgSize }

// GetMaxDataPerPkt returns the transport's per-packet data capacity.
func (r *Rpc) GetMaxDataPerPkt() int { return r.consts.MaxDataPerPkt }

// GetNumRxRingEntries returns the transport's receive ring size.
func (r *Rpc) GetNumRxRingEntries() int { return r.consts.NumRxRingEntries }

// GetBandwidth returns the physical link bandwidth in bytes per second.
func (r *Rpc) GetBandwidth() int { return r.transport.Bandwidth() }

// GetMaxNumSessions returns the number of sessions the receive ring can
// support.
func (r *Rpc) GetMaxNumSessions() int {
	return r.consts.NumRxRingEntries / SessionCredits
}

// SecSinceCreation returns seconds elapsed since the endpoint was created.
func (r *Rpc) SecSinceCreation() float64 {
	return toSec(rdtsc()-r.creationTsc, r.freqGHz)
}

// SetContext sets the endpoint's application context. It may only be set
// once.
func (r *Rpc) SetContext(context interface{}) {
	if r.context != nil {
		panic("cannot reset non-nil Rpc context")
	}
	r.context = context
}

// GetHugeAlloc exposes the endpoint's allocator. Expert use only; refused
// when background threads exist since they share the allocator lock.
func (r *Rpc) GetHugeAlloc() *hugeAlloc {
	if r.nexus.numBgThreads > 0 {
		panic("cannot extract allocator with background threads")
	}
	return r.hugeAlloc
}

// GetNumReTx returns the number of retransmissions on a session.
func (r *Rpc) GetNumReTx(sessionNum int) uint64 {
	return r.sessionVec[sessionNum].numReTx
}

// ResetNumReTx zeroes a session's retransmission counter.
func (r *Rpc) ResetNumReTx(sessionNum int) {
	r.sessionVec[sessionNum].numReTx = 0
}

// IsConnected returns true iff the session is connected.
func (r *Rpc) IsConnected(sessionNum int) bool {
	sess := r.sessionVec[sessionNum]
	return sess != nil && sess.isConnected()
}

// GetRemoteHostname returns the remote URI of a session.
func (r *Rpc) GetRemoteHostname(sessionNum int) string {
	return r.sessionVec[sessionNum].remoteURI
}

// NumActiveSessions returns the number of live sessions.
func (r *Rpc) NumActiveSessions() int {
	n := 0
	for _, sess := range r.sessionVec {
		if sess != nil {
			n++
		}
	}
	return n
}
