// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package erpc

import (
	"strconv"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// dpathStats are per-endpoint datapath counters, owned by the dispatch
// goroutine.
type dpathStats struct {
	evLoopCalls  uint64
	pktsTx       uint64
	txBurstCalls uint64
	pktsRx       uint64
	rxBurstCalls uint64
	rxDropped    uint64
}

// pktLossStats count loss handling events.
type pktLossStats struct {
	// numReTx is the total datapath retransmissions.
	numReTx uint64
	// stillInWheelDuringRetx counts packets that could not be
	// retransmitted, or received packets that had to be dropped, because
	// the packet's wheel entry was still pending.
	stillInWheelDuringRetx uint64
}

// latencyStats keeps a bounded ring of RTT samples in microseconds.
type latencyStats struct {
	samples []float64
	head    int
}

const latencyMaxSamples = 16384

func (ls *latencyStats) record(us float64) {
	if len(ls.samples) < latencyMaxSamples {
		ls.samples = append(ls.samples, us)
		return
	}
	ls.samples[ls.head] = us
	ls.head = (ls.head + 1) % latencyMaxSamples
}

// GetAvgRxBatch returns the average packets per RxBurst call, or -1 with
// no data.
func (r *Rpc) GetAvgRxBatch() float64 {
	if r.dpathStats.rxBurstCalls == 0 {
		return -1.0
	}
	return float64(r.dpathStats.pktsRx) / float64(r.dpathStats.rxBurstCalls)
}

// GetAvgTxBatch returns the average packets per TX burst, or -1 with no
// data.
func (r *Rpc) GetAvgTxBatch() float64 {
	if r.dpathStats.txBurstCalls == 0 {
		return -1.0
	}
	return float64(r.dpathStats.pktsTx) / float64(r.dpathStats.txBurstCalls)
}

// ResetDpathStats zeroes the datapath counters.
func (r *Rpc) ResetDpathStats() {
	r.dpathStats = dpathStats{}
}

// StillInWheelDuringRetx returns how often retransmission or delivery was
// refused because a packet was still wheeled.
func (r *Rpc) StillInWheelDuringRetx() uint64 {
	return r.pktLossStats.stillInWheelDuringRetx
}

// LatencyPercentiles returns the requested RTT percentiles in
// microseconds from the recent sample window. Dispatch goroutine only.
func (r *Rpc) LatencyPercentiles(percentiles ...float64) ([]float64, error) {
	if len(r.latency.samples) == 0 {
		return nil, errors.New("no latency samples")
	}
	out := make([]float64, 0, len(percentiles))
	for _, p := range percentiles {
		v, err := stats.Percentile(r.latency.samples, p)
		if err != nil {
			return nil, errors.Wrapf(err, "percentile %v", p)
		}
		out = append(out, v)
	}
	return out, nil
}

// Metrics are the endpoint's Prometheus counters. The dispatch goroutine
// increments them; scrapes may run on any goroutine.
type Metrics struct {
	evLoopCalls prometheus.Counter
	pktsTx      prometheus.Counter
	pktsRx      prometheus.Counter
	retransmits prometheus.Counter
	stalls      prometheus.Counter
}

// RegisterMetrics creates and registers the endpoint's counters on reg.
// Call at most once, before the event loop starts.
func (r *Rpc) RegisterMetrics(reg prometheus.Registerer) error {
	if r.metrics != nil {
		return errors.New("metrics already registered")
	}
	labels := prometheus.Labels{"rpc_id": strconv.Itoa(int(r.rpcID))}
	m := &Metrics{
		evLoopCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "erpc", Name: "ev_loop_calls_total",
			Help: "Event loop iterations", ConstLabels: labels,
		}),
		pktsTx: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "erpc", Name: "pkts_tx_total",
			Help: "Packets transmitted", ConstLabels: labels,
		}),
		pktsRx: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "erpc", Name: "pkts_rx_total",
			Help: "Packets received", ConstLabels: labels,
		}),
		retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "erpc", Name: "retransmits_total",
			Help: "Datapath retransmissions", ConstLabels: labels,
		}),
		stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "erpc", Name: "credit_stalls_total",
			Help: "Slots parked on the credit stall queue", ConstLabels: labels,
		}),
	}
	for _, c := range []prometheus.Counter{m.evLoopCalls, m.pktsTx, m.pktsRx, m.retransmits, m.stalls} {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "metric registration")
		}
	}
	r.metrics = m
	return nil
}
