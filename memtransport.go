// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// memTransport is an in-process loopback transport used by tests and the
// bench program. Endpoints register in a process-wide switch keyed by
// "uri/rpc_id"; a TX burst copies each packet into the destination's
// inbound queue. Like the NIC transports it stands in for, it is
// unreliable: the inbound queue drops packets on overflow.
type memTransport struct {
	key    string
	consts TransportConsts

	mu      sync.Mutex
	inbound [][]byte
	closed  bool
}

const (
	memMaxDataPerPkt    = 4096
	memNumRxRingEntries = 4096
	memPostlist         = 16
	memUnsigBatch       = 32
	memBandwidth        = 10 * 1000 * 1000 * 1000 / 8 // 10 Gbps
)

var memSwitch = struct {
	mu    sync.Mutex
	ports map[string]*memTransport
}{ports: make(map[string]*memTransport)}

func memTransportKey(uri string, rpcID uint8) string {
	return fmt.Sprintf("%s/%d", uri, rpcID)
}

// newMemTransport creates a loopback transport and registers it in the
// process-wide switch.
func newMemTransport(uri string, rpcID uint8) (*memTransport, error) {
	t := &memTransport{
		key: memTransportKey(uri, rpcID),
		consts: TransportConsts{
			MaxDataPerPkt:    memMaxDataPerPkt,
			NumRxRingEntries: memNumRxRingEntries,
			Postlist:         memPostlist,
			UnsigBatch:       memUnsigBatch,
		},
	}
	memSwitch.mu.Lock()
	defer memSwitch.mu.Unlock()
	if _, exists := memSwitch.ports[t.key]; exists {
		return nil, errors.Errorf("transport port %s already in use", t.key)
	}
	memSwitch.ports[t.key] = t
	return t, nil
}

func (t *memTransport) Consts() TransportConsts { return t.consts }

func (t *memTransport) Bandwidth() int { return memBandwidth }

func (t *memTransport) ResolveRoutingInfo(remoteURI string, remoteRpcID uint8) ([]byte, error) {
	return []byte(memTransportKey(remoteURI, remoteRpcID)), nil
}

func (t *memTransport) TxBurst(items []TxBurstItem) {
	for i := range items {
		item := &items[i]
		if item.Drop {
			continue
		}
		mb := item.MsgBuffer
		hdr := mb.PktHdrN(item.PktIdx)
		var payload []byte
		if hdr.PktType() == PktTypeReq || hdr.PktType() == PktTypeResp {
			payload = mb.PktData(item.PktIdx)
		}
		pkt := make([]byte, PktHdrSize+len(payload))
		copy(pkt, hdr)
		copy(pkt[PktHdrSize:], payload)
		t.deliver(item.RoutingInfo, pkt)
	}
}

func (t *memTransport) deliver(routingInfo, pkt []byte) {
	memSwitch.mu.Lock()
	dst := memSwitch.ports[string(routingInfo)]
	memSwitch.mu.Unlock()
	if dst == nil {
		return // destination gone, packet lost
	}
	dst.mu.Lock()
	if !dst.closed && len(dst.inbound) < dst.consts.NumRxRingEntries {
		dst.inbound = append(dst.inbound, pkt)
	}
	dst.mu.Unlock()
}

func (t *memTransport) TxFlush() {}

func (t *memTransport) RxBurst(ring [][]byte) int {
	t.mu.Lock()
	n := len(t.inbound)
	if n > len(ring) {
		n = len(ring)
	}
	copy(ring, t.inbound[:n])
	t.inbound = t.inbound[n:]
	t.mu.Unlock()
	return n
}

func (t *memTransport) Close() {
	t.mu.Lock()
	t.closed = true
	t.inbound = nil
	t.mu.Unlock()
	memSwitch.mu.Lock()
	delete(memSwitch.ports, t.key)
	memSwitch.mu.Unlock()
}
