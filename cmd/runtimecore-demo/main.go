// Command runtimecore-demo wires every Runtime Core component into a
// single running process: Reactor, Lifecycle Controller, Resource
// Table, Queued-Response Store, Timer Service (with its two private
// housekeeping timers), Router, and the five concrete Services
// (filesystem, TCP, UDP, DNS, network info).
//
// It is a thin composition root, not a Service itself — every routing
// decision and piece of business logic lives in the packages it wires
// together.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/runtimecore/core/config"
	"github.com/runtimecore/core/coreapi"
	"github.com/runtimecore/core/internal/lifecycle"
	"github.com/runtimecore/core/internal/queuedresponse"
	"github.com/runtimecore/core/internal/reactor"
	"github.com/runtimecore/core/internal/resource"
	"github.com/runtimecore/core/internal/router"
	"github.com/runtimecore/core/internal/services/dnsservice"
	"github.com/runtimecore/core/internal/services/fsservice"
	"github.com/runtimecore/core/internal/services/netinfo"
	"github.com/runtimecore/core/internal/services/tcpservice"
	"github.com/runtimecore/core/internal/services/udpservice"
	"github.com/runtimecore/core/internal/sharedbuffer"
	"github.com/runtimecore/core/internal/timers"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "runtimecore").Logger()

	cfg := config.NewStore(envOverrides())
	cfg.OnReload(func(f config.Flags) {
		log.Info().Bool("useUDP", f.UseUDP).Msg("config: reloaded")
	})
	flags := cfg.Snapshot()

	r := reactor.New(log.With().Str("subsystem", "reactor").Logger(), flags.ReactorPollTimeout)
	ctrl := lifecycle.New(log.With().Str("subsystem", "lifecycle").Logger(), r)

	table := resource.NewTable()
	queued := queuedresponse.NewStore(flags.QueuedResponseTTL)
	rt := router.New(log.With().Str("subsystem", "router").Logger(), r.Dispatch)

	buffers := sharedbuffer.New()
	fsSvc := fsservice.New(log.With().Str("service", "fs").Logger(), table, r.Dispatch, queued, buffers, flags.WriteBufferRetainTTL)
	tcpSvc := tcpservice.New(log.With().Str("service", "tcp").Logger(), table, r.Dispatch, queued, buffers, flags.WriteBufferRetainTTL)
	udpSvc := udpservice.New(log.With().Str("service", "udp").Logger(), table, r.Dispatch, queued, buffers, flags.WriteBufferRetainTTL)
	dnsSvc := dnsservice.New(log.With().Str("service", "dns").Logger(), r.Dispatch)

	timerSvc := newTimerService(log, r, fsSvc, buffers, flags)
	registerHandlers(rt, fsSvc, tcpSvc, udpSvc, dnsSvc)
	registerIntrospection(ctrl, table, queued, buffers, timerSvc)
	rt.Map("debug.dump", func(msg *coreapi.Message, reply router.ReplyFunc) {
		reply(coreapi.OK("debug.dump", msg.Sequence, ctrl.Debug().DumpState()))
	})

	if flags.UseUDP {
		ctrl.AddStage(lifecycle.Stage{
			Name:   "udp",
			Pause:  udpSvc.PauseAllSockets,
			Resume: udpSvc.ResumeAllSockets,
		})
	}

	if err := ctrl.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start reactor")
	}
	timerSvc.Start()
	log.Info().Msg("runtime core started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	timerSvc.Stop()
	if err := ctrl.Shutdown(); err != nil {
		log.Error().Err(err).Msg("shutdown reported an error")
	}
}

// envOverrides lifts the RUNTIMECORE_<SECTION>_<KEY> environment
// variables a host process sets into the flat <section>.<key> string
// map config.Store expects, matching how the original runtime's
// embedder passed configuration in before the Core's own event loop
// started.
func envOverrides() map[string]string {
	raw := map[string]string{}
	for _, kv := range []struct{ env, key string }{
		{"RUNTIMECORE_USE_UDP", "core.useUDP"},
		{"RUNTIMECORE_USE_NETWORK_STATUS", "core.useNetworkStatus"},
		{"RUNTIMECORE_POLL_TIMEOUT_MS", "reactor.pollTimeout"},
	} {
		if v, ok := os.LookupEnv(kv.env); ok {
			raw[kv.key] = v
		}
	}
	return raw
}

func newTimerService(log zerolog.Logger, r *reactor.Reactor, fsSvc *fsservice.Service, buffers *sharedbuffer.Ledger, flags config.Flags) *timers.Service {
	ts := timers.New(log.With().Str("subsystem", "timers").Logger(), r.Dispatch)
	ts.RegisterHousekeeping("descriptor-cleanup", flags.DescriptorSweepInterval, func() {
		closed := fsSvc.CloseStaleDescriptors(30 * time.Second)
		if closed > 0 {
			log.Debug().Int("closed", closed).Msg("timers: swept stale descriptors")
		}
	})
	ts.RegisterHousekeeping("shared-buffer-ledger", flags.BufferLedgerResolution, func() {
		buffers.Sweep(flags.BufferLedgerResolution.Milliseconds())
	})
	return ts
}

// registerIntrospection wires the Controller's DebugProbes to the
// components spec.md section 4.13 names: resource counts, queued
// response backlog, and live user-timer count.
func registerIntrospection(ctrl *lifecycle.Controller, table *resource.Table, queued *queuedresponse.Store, buffers *sharedbuffer.Ledger, timerSvc *timers.Service) {
	ctrl.Debug().RegisterProbe("resources.open", func() any {
		return len(table.IDsOf())
	})
	ctrl.Debug().RegisterProbe("queuedresponse.pending", func() any { return queued.Len() })
	ctrl.Debug().RegisterProbe("timers.active", func() any { return timerSvc.Len() })
	ctrl.Debug().RegisterProbe("sharedbuffer.retained", func() any { return buffers.Len() })
}

// emitEvent re-serializes a Service's persistent-callback Result as the
// body of an unsolicited Router event, so tcp.bind/udp.recvStart
// subscribers receive the same payload a one-shot reply would have
// carried.
func emitEvent(rt *router.Router, name string, res coreapi.Result) {
	body, err := json.Marshal(res.JSON())
	if err != nil {
		return
	}
	rt.Emit(name, &coreapi.Message{Name: name, Sequence: coreapi.UnsolicitedSeq, Body: body})
}

func registerHandlers(rt *router.Router, fsSvc *fsservice.Service, tcpSvc *tcpservice.Service, udpSvc *udpservice.Service, dnsSvc *dnsservice.Service) {
	rt.Map("fs.open", func(msg *coreapi.Message, reply router.ReplyFunc) {
		path := msg.Get("path", "")
		flags := int(os.O_RDONLY)
		if msg.Get("flags", "") != "" {
			fmt.Sscanf(msg.Get("flags", ""), "%d", &flags)
		}
		fsSvc.Open(msg.Sequence, path, flags, 0o644, reply)
	})
	rt.Map("fs.close", func(msg *coreapi.Message, reply router.ReplyFunc) {
		fsSvc.Close(msg.Sequence, msg.Client.ID, reply)
	})
	rt.Map("fs.read", func(msg *coreapi.Message, reply router.ReplyFunc) {
		var length int
		var offset int64
		fmt.Sscanf(msg.Get("size", "0"), "%d", &length)
		fmt.Sscanf(msg.Get("offset", "0"), "%d", &offset)
		fsSvc.Read(msg.Sequence, msg.Client.ID, length, offset, reply)
	})
	rt.Map("fs.write", func(msg *coreapi.Message, reply router.ReplyFunc) {
		var offset int64
		fmt.Sscanf(msg.Get("offset", "0"), "%d", &offset)
		fsSvc.Write(msg.Sequence, msg.Client.ID, msg.Body, offset, reply)
	})
	rt.Map("fs.unlink", func(msg *coreapi.Message, reply router.ReplyFunc) {
		fsSvc.Unlink(msg.Sequence, msg.Get("path", ""), reply)
	})
	rt.Map("fs.rename", func(msg *coreapi.Message, reply router.ReplyFunc) {
		fsSvc.Rename(msg.Sequence, msg.Get("oldPath", ""), msg.Get("newPath", ""), reply)
	})
	rt.Map("fs.mkdir", func(msg *coreapi.Message, reply router.ReplyFunc) {
		fsSvc.Mkdir(msg.Sequence, msg.Get("path", ""), 0o755, reply)
	})
	rt.Map("fs.rmdir", func(msg *coreapi.Message, reply router.ReplyFunc) {
		fsSvc.Rmdir(msg.Sequence, msg.Get("path", ""), reply)
	})
	rt.Map("fs.readdir", func(msg *coreapi.Message, reply router.ReplyFunc) {
		fsSvc.Readdir(msg.Sequence, msg.Get("path", ""), reply)
	})
	rt.Map("fs.stat", func(msg *coreapi.Message, reply router.ReplyFunc) {
		fsSvc.Stat(msg.Sequence, msg.Get("path", ""), reply)
	})
	rt.Map("fs.copyFile", func(msg *coreapi.Message, reply router.ReplyFunc) {
		var flags int
		fmt.Sscanf(msg.Get("flags", "0"), "%d", &flags)
		fsSvc.CopyFile(msg.Sequence, msg.Get("src", ""), msg.Get("dst", ""), flags, reply)
	})
	rt.Map("fs.constants", func(msg *coreapi.Message, reply router.ReplyFunc) {
		reply(coreapi.OK("fs.constants", msg.Sequence, fsSvc.Constants()))
	})

	onTCPEvent := func(msg *coreapi.Message) func(coreapi.Result) {
		return func(res coreapi.Result) { emitEvent(rt, "tcp.event", res) }
	}
	rt.Map("tcp.bind", func(msg *coreapi.Message, reply router.ReplyFunc) {
		var port int
		fmt.Sscanf(msg.Get("port", "0"), "%d", &port)
		tcpSvc.Bind(msg.Sequence, msg.Client.ID, msg.Get("address", "0.0.0.0"), port, onTCPEvent(msg), reply)
	})
	rt.Map("tcp.connect", func(msg *coreapi.Message, reply router.ReplyFunc) {
		var port int
		fmt.Sscanf(msg.Get("port", "0"), "%d", &port)
		tcpSvc.Connect(msg.Sequence, msg.Client.ID, msg.Get("address", ""), port, onTCPEvent(msg), reply)
	})
	rt.Map("tcp.readStart", func(msg *coreapi.Message, reply router.ReplyFunc) {
		tcpSvc.ReadStart(msg.Sequence, msg.Client.ID, onTCPEvent(msg), reply)
	})
	rt.Map("tcp.readStop", func(msg *coreapi.Message, reply router.ReplyFunc) {
		tcpSvc.ReadStop(msg.Sequence, msg.Client.ID, reply)
	})
	rt.Map("tcp.send", func(msg *coreapi.Message, reply router.ReplyFunc) {
		tcpSvc.Send(msg.Sequence, msg.Client.ID, msg.Body, reply)
	})
	rt.Map("tcp.close", func(msg *coreapi.Message, reply router.ReplyFunc) {
		tcpSvc.Close(msg.Sequence, msg.Client.ID, reply)
	})
	rt.Map("tcp.setKeepAlive", func(msg *coreapi.Message, reply router.ReplyFunc) {
		var seconds int
		fmt.Sscanf(msg.Get("seconds", "60"), "%d", &seconds)
		tcpSvc.SetKeepAlive(msg.Sequence, msg.Client.ID, seconds, reply)
	})
	rt.Map("tcp.setTimeout", func(msg *coreapi.Message, reply router.ReplyFunc) {
		var ms int
		fmt.Sscanf(msg.Get("timeout", "0"), "%d", &ms)
		tcpSvc.SetTimeout(msg.Sequence, msg.Client.ID, ms, reply)
	})
	rt.Map("tcp.shutdown", func(msg *coreapi.Message, reply router.ReplyFunc) {
		tcpSvc.Shutdown(msg.Sequence, msg.Client.ID, reply)
	})
	rt.Map("tcp.sendBufferSize", func(msg *coreapi.Message, reply router.ReplyFunc) {
		var size int
		fmt.Sscanf(msg.Get("size", "0"), "%d", &size)
		tcpSvc.SendBufferSize(msg.Sequence, msg.Client.ID, size, reply)
	})
	rt.Map("tcp.recvBufferSize", func(msg *coreapi.Message, reply router.ReplyFunc) {
		var size int
		fmt.Sscanf(msg.Get("size", "0"), "%d", &size)
		tcpSvc.RecvBufferSize(msg.Sequence, msg.Client.ID, size, reply)
	})

	onUDPEvent := func(msg *coreapi.Message) func(coreapi.Result) {
		return func(res coreapi.Result) { emitEvent(rt, "udp.event", res) }
	}
	rt.Map("udp.bind", func(msg *coreapi.Message, reply router.ReplyFunc) {
		var port int
		fmt.Sscanf(msg.Get("port", "0"), "%d", &port)
		udpSvc.Bind(msg.Sequence, msg.Client.ID, msg.Get("address", "0.0.0.0"), port, reply)
	})
	rt.Map("udp.recvStart", func(msg *coreapi.Message, reply router.ReplyFunc) {
		udpSvc.RecvStart(msg.Sequence, msg.Client.ID, onUDPEvent(msg), reply)
	})
	rt.Map("udp.send", func(msg *coreapi.Message, reply router.ReplyFunc) {
		var port int
		fmt.Sscanf(msg.Get("port", "0"), "%d", &port)
		udpSvc.Send(msg.Sequence, msg.Client.ID, msg.Body, 0, len(msg.Body), msg.Get("address", ""), port, reply)
	})
	rt.Map("udp.close", func(msg *coreapi.Message, reply router.ReplyFunc) {
		udpSvc.Close(msg.Sequence, msg.Client.ID, reply)
	})

	rt.Map("dns.lookup", func(msg *coreapi.Message, reply router.ReplyFunc) {
		dnsSvc.Lookup(msg.Context, msg.Sequence, msg.Get("hostname", ""), reply)
	})

	rt.Map("net.interfaces", func(msg *coreapi.Message, reply router.ReplyFunc) {
		netinfo.Lookup(msg.Sequence, reply)
	})
}
