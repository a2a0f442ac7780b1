// Copyright 2026 The erpc Authors. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

// erpc-bench runs an in-process echo benchmark: a server endpoint with an
// echo handler and a client endpoint issuing pipelined requests, each on
// its own dispatch goroutine over the loopback transport.
package main

import (
	"sync/atomic"
	"time"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	erpc "github.com/theseusyang/erpc"
)

const echoReqType = 1

var (
	msgSize     = pflag.Int("msgsize", 64, "request and response data size in bytes")
	duration    = pflag.Duration("duration", 3*time.Second, "benchmark duration")
	concurrency = pflag.Int("concurrency", erpc.SessionCredits, "requests in flight")
	dropProb    = pflag.Float64("drop", 0, "injected packet drop probability")
	cpuProfile  = pflag.Bool("profile", false, "write a CPU profile")
	verbose     = pflag.Bool("verbose", false, "debug logging")
)

// serverLoop owns the server endpoint: endpoints live and die on their
// dispatch goroutine.
func serverLoop(nexus *erpc.Nexus, log *logrus.Logger, ready chan<- struct{}, stop *int64) {
	var rpc *erpc.Rpc
	smHandler := func(int, erpc.SmEventType, erpc.SmErrType, interface{}) {}
	rpc, err := erpc.NewRpc(nexus, &rpc, 1, smHandler, 0)
	if err != nil {
		log.WithError(err).Fatal("cannot create server endpoint")
	}
	defer rpc.Destroy()
	close(ready)
	for atomic.LoadInt64(stop) == 0 {
		rpc.RunEventLoop(100)
	}
}

func main() {
	pflag.Parse()
	log := logrus.StandardLogger()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if *cpuProfile {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	nexus, err := erpc.NewNexus(erpc.NexusConfig{LocalURI: "127.0.0.1:0", Logger: log})
	if err != nil {
		log.WithError(err).Fatal("cannot create nexus")
	}
	defer nexus.Close()

	err = nexus.RegisterReqFunc(echoReqType, erpc.ReqFunc{
		Type: erpc.ReqFuncForeground,
		Func: func(reqHandle erpc.ReqHandle, context interface{}) {
			rpc := *context.(**erpc.Rpc)
			req := reqHandle.ReqMsgbuf()
			resp := reqHandle.PreRespMsgbuf()
			if req.DataSize() > resp.MaxDataSize() {
				dyn := rpc.AllocMsgBufferOrDie(req.DataSize())
				reqHandle.SetDynRespMsgbuf(&dyn)
				resp = &dyn
			}
			rpc.ResizeMsgBuffer(resp, req.DataSize())
			copy(resp.Data(), req.Data())
			rpc.EnqueueResponse(reqHandle)
		},
	})
	if err != nil {
		log.WithError(err).Fatal("cannot register handler")
	}

	var stop int64
	serverReady := make(chan struct{})
	go serverLoop(nexus, log, serverReady, &stop)
	<-serverReady
	defer atomic.StoreInt64(&stop, 1)

	var rpc *erpc.Rpc
	connected := false
	smHandler := func(sessionNum int, event erpc.SmEventType, errType erpc.SmErrType, context interface{}) {
		switch event {
		case erpc.SmEventConnected:
			connected = true
		case erpc.SmEventConnectFailed:
			log.WithField("err", errType.String()).Fatal("connect failed")
		}
	}
	rpc, err = erpc.NewRpc(nexus, &rpc, 2, smHandler, 0)
	if err != nil {
		log.WithError(err).Fatal("cannot create client endpoint")
	}
	defer rpc.Destroy()

	if *dropProb > 0 {
		rpc.FaultInjectSetPktDropProb(*dropProb)
	}

	sessionNum, err := rpc.CreateSession(nexus.URI(), 1)
	if err != nil {
		log.WithError(err).Fatal("cannot create session")
	}
	for !connected {
		rpc.RunEventLoopOnce()
	}

	// One request/response buffer pair per in-flight request, reused for
	// the benchmark's whole lifetime and indexed by the request tag.
	reqBufs := make([]erpc.MsgBuffer, *concurrency)
	respBufs := make([]erpc.MsgBuffer, *concurrency)
	for i := range reqBufs {
		reqBufs[i] = rpc.AllocMsgBufferOrDie(*msgSize)
		respBufs[i] = rpc.AllocMsgBufferOrDie(*msgSize)
	}

	var completed uint64
	deadline := time.Now().Add(*duration)
	var cont erpc.ContFunc
	cont = func(respHandle erpc.RespHandle, context interface{}, tag uint64) {
		completed++
		rpc.ReleaseResponse(respHandle)
		if time.Now().Before(deadline) {
			rpc.EnqueueRequest(sessionNum, echoReqType, &reqBufs[tag],
				&respBufs[tag], cont, tag, erpc.InvalidBgETid)
		}
	}

	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		rpc.EnqueueRequest(sessionNum, echoReqType, &reqBufs[i],
			&respBufs[i], cont, uint64(i), erpc.InvalidBgETid)
	}
	for time.Now().Before(deadline) {
		rpc.RunEventLoop(10)
	}
	rpc.RunEventLoop(50) // let in-flight responses land
	elapsed := time.Since(start)

	log.WithFields(logrus.Fields{
		"rpcs":       completed,
		"rpcs_per_s": float64(completed) / elapsed.Seconds(),
		"re_tx":      rpc.GetNumReTx(sessionNum),
	}).Info("benchmark done")

	if pcts, err := rpc.LatencyPercentiles(50, 99, 99.9); err == nil {
		log.WithFields(logrus.Fields{
			"p50_us":  pcts[0],
			"p99_us":  pcts[1],
			"p999_us": pcts[2],
		}).Info("round-trip latency")
	}

	for i := range reqBufs {
		rpc.FreeMsgBuffer(&reqBufs[i])
		rpc.FreeMsgBuffer(&respBufs[i])
	}
}
