// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// nexusHook is the channel between a Nexus and one endpoint. The Nexus
// deposits SM packets under the mutex; the endpoint drains them each
// event-loop iteration.
type nexusHook struct {
	rpcID uint8

	mu       sync.Mutex
	smRxList []smPkt
}

func (h *nexusHook) deposit(p smPkt) {
	h.mu.Lock()
	h.smRxList = append(h.smRxList, p)
	h.mu.Unlock()
}

func (h *nexusHook) drain() []smPkt {
	h.mu.Lock()
	pkts := h.smRxList
	h.smRxList = nil
	h.mu.Unlock()
	return pkts
}

// Nexus is the process-wide control object: it owns the SM listener, the
// background worker threads, the request handler table and the thread
// registry. Endpoints attach to it at construction.
type Nexus struct {
	hostname  string
	smUdpPort int
	freqGHz   float64

	numBgThreads int
	bgReqQueues  []*mtQueue[bgWorkItem]

	tlsRegistry *tlsRegistry

	mu       sync.Mutex
	hooks    map[uint8]*nexusHook
	reqFuncs [ReqTypeArraySize]ReqFunc
	frozen   bool // set once an endpoint attaches; no more handler registration

	smConn     *net.UDPConn
	killSwitch chan struct{}
	wg         sync.WaitGroup

	log *logrus.Entry
}

// NexusConfig carries process-wide settings.
type NexusConfig struct {
	// LocalURI is the Nexus's hostname:udp_port. Port 0 picks an
	// ephemeral port; URI() reports the bound one.
	LocalURI string
	// NumaNode is the hugepage NUMA node. Kept for API fidelity; the
	// in-process allocator ignores it.
	NumaNode int
	// NumBgThreads is the number of background workers shared by all
	// endpoints.
	NumBgThreads int
	// Logger overrides the default logger.
	Logger *logrus.Logger
}

// NewNexus creates the process-wide Nexus: it binds the SM UDP socket,
// measures the cycle-counter frequency and starts the background workers.
func NewNexus(cfg NexusConfig) (*Nexus, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.LocalURI)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid local URI %q", cfg.LocalURI)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "cannot bind SM port")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	nx := &Nexus{
		hostname:     addr.IP.String(),
		smUdpPort:    conn.LocalAddr().(*net.UDPAddr).Port,
		freqGHz:      measureFreqGHz(),
		numBgThreads: cfg.NumBgThreads,
		tlsRegistry:  newTlsRegistry(),
		hooks:        make(map[uint8]*nexusHook),
		smConn:       conn,
		killSwitch:   make(chan struct{}),
	}
	nx.log = logger.WithField("nexus", nx.URI())

	for i := 0; i < nx.numBgThreads; i++ {
		nx.bgReqQueues = append(nx.bgReqQueues, &mtQueue[bgWorkItem]{})
	}
	for i := 0; i < nx.numBgThreads; i++ {
		nx.wg.Add(1)
		registered := make(chan struct{})
		go nx.bgThreadFunc(i, registered)
		// Workers register one at a time, so worker i holds etid i.
		<-registered
	}

	nx.wg.Add(1)
	go nx.smThreadFunc()

	nx.log.WithFields(logrus.Fields{
		"freq_ghz":   nx.freqGHz,
		"bg_threads": nx.numBgThreads,
	}).Info("nexus created")
	return nx, nil
}

// URI returns the Nexus's hostname:udp_port with the bound port.
func (nx *Nexus) URI() string {
	return net.JoinHostPort(nx.hostname, strconv.Itoa(nx.smUdpPort))
}

// RegisterReqFunc registers the handler for a request type. Handlers must
// be registered before any endpoint attaches to the Nexus.
func (nx *Nexus) RegisterReqFunc(reqType uint8, rf ReqFunc) error {
	nx.mu.Lock()
	defer nx.mu.Unlock()
	if nx.frozen {
		return errors.New("handler registration after endpoint creation")
	}
	if !rf.isRegistered() {
		return errors.New("nil request handler")
	}
	if nx.reqFuncs[reqType].isRegistered() {
		return errors.Errorf("request type %d already registered", reqType)
	}
	if rf.Type == ReqFuncBackground && nx.numBgThreads == 0 {
		return errors.New("background handler without background threads")
	}
	nx.reqFuncs[reqType] = rf
	return nil
}

// registerHook attaches an endpoint's hook and returns a copy of the
// handler table.
func (nx *Nexus) registerHook(h *nexusHook) ([ReqTypeArraySize]ReqFunc, error) {
	nx.mu.Lock()
	defer nx.mu.Unlock()
	if _, exists := nx.hooks[h.rpcID]; exists {
		return nx.reqFuncs, errors.Errorf("rpc id %d already in use", h.rpcID)
	}
	nx.hooks[h.rpcID] = h
	nx.frozen = true
	return nx.reqFuncs, nil
}

func (nx *Nexus) unregisterHook(h *nexusHook) {
	nx.mu.Lock()
	delete(nx.hooks, h.rpcID)
	nx.mu.Unlock()
}

func (nx *Nexus) getHook(rpcID uint8) *nexusHook {
	nx.mu.Lock()
	defer nx.mu.Unlock()
	return nx.hooks[rpcID]
}

// smThreadFunc receives SM packets from the UDP socket and deposits them
// into the target endpoint's hook.
func (nx *Nexus) smThreadFunc() {
	defer nx.wg.Done()
	buf := make([]byte, 4096)
	for {
		nx.smConn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, _, err := nx.smConn.ReadFromUDP(buf)
		select {
		case <-nx.killSwitch:
			return
		default:
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			nx.log.WithError(err).Error("SM socket read failed")
			continue
		}
		pkt, err := unmarshalSmPkt(buf[:n])
		if err != nil {
			nx.log.WithError(err).Warn("dropping malformed SM packet")
			continue
		}
		// Requests and resets are addressed to the server endpoint,
		// responses to the client endpoint.
		dstRpcID := pkt.server.rpcID
		if !pkt.pktType.isReq() && pkt.pktType != SmPktReset {
			dstRpcID = pkt.client.rpcID
		}
		hook := nx.getHook(dstRpcID)
		if hook == nil {
			if pkt.pktType == SmPktConnectReq {
				// Tell the client there is no such endpoint.
				resp := pkt
				resp.pktType = SmPktConnectResp
				resp.errType = SmErrInvalidRemoteRpcID
				nx.smRespondNoEndpoint(resp)
			}
			continue
		}
		hook.deposit(pkt)
	}
}

// smRespondNoEndpoint answers a connect request for a missing endpoint
// directly from the SM thread.
func (nx *Nexus) smRespondNoEndpoint(p smPkt) {
	addr, err := net.ResolveUDPAddr("udp", p.client.uri)
	if err != nil {
		return
	}
	nx.smConn.WriteToUDP(p.marshal(), addr)
}

// bgThreadFunc is the background worker loop: poll the work queue, sleep
// briefly when it is empty, run handlers and continuations otherwise.
func (nx *Nexus) bgThreadFunc(idx int, registered chan<- struct{}) {
	defer nx.wg.Done()
	etid := nx.tlsRegistry.registerEtid()
	close(registered)
	nx.log.WithFields(logrus.Fields{"bg_thread": idx, "etid": etid}).
		Info("background thread running")
	q := nx.bgReqQueues[idx]
	for {
		select {
		case <-nx.killSwitch:
			return
		default:
		}
		if q.approxSize() == 0 {
			time.Sleep(time.Microsecond)
			continue
		}
		for _, wi := range q.drain() {
			s := wi.sslot
			if wi.isReq() {
				rf := wi.rpc.reqFuncs[s.serverInfo.reqType]
				rf.Func(s, wi.context)
			} else {
				s.clientInfo.contFunc(s, wi.context, s.clientInfo.tag)
			}
		}
	}
}

// Close stops the SM listener and the background workers. Endpoints must
// be destroyed first.
func (nx *Nexus) Close() {
	close(nx.killSwitch)
	nx.smConn.Close()
	nx.wg.Wait()
	nx.log.Info("nexus destroyed")
}
