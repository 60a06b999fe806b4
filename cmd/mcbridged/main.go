// Command mcbridged is a minimal runnable wiring of the control-plane
// engine: it builds at most one IGMP and one MLD internal/proto.Subsystem,
// each only if some configured interface carries its address family, adds
// every such interface to it with a capture handle of its own, and runs
// each subsystem's event loop on its own
// locked OS thread. It takes the place of the daemon's outer surface
// (config file parsing, the data-plane forwarding threads, signal
// handling) that belongs to the external collaborator; this binary only
// proves the control plane runs.
package main

import (
	"flag"
	"net"
	"runtime"

	"github.com/mcbridged/mcbridged/igmp"
	"github.com/mcbridged/mcbridged/internal/bridge"
	"github.com/mcbridged/mcbridged/internal/capture"
	"github.com/mcbridged/mcbridged/internal/config"
	"github.com/mcbridged/mcbridged/internal/eventloop"
	"github.com/mcbridged/mcbridged/internal/grouptable"
	"github.com/mcbridged/mcbridged/internal/logging"
	"github.com/mcbridged/mcbridged/internal/proto"
	"github.com/mcbridged/mcbridged/internal/querier"
	"github.com/mcbridged/mcbridged/mld"
)

func main() {
	verbose := flag.Int("v", 1, "debug verbosity (0-3)")
	flag.Parse()

	log := logging.NewStd("mcbridged", *verbose)

	cfg := exampleConfig()
	if err := cfg.Validate(); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return
	}
	if len(cfg.Interfaces) == 0 {
		return
	}

	done := make(chan struct{}, 2)
	running := 0
	if hasFamily(cfg, config.BridgeInterface.HasIGMP) {
		running++
		go runSubsystem("igmp", cfg, log, igmp.New, capture.OpenIGMP,
			config.BridgeInterface.HasIGMP, cfg.QuerierModeIGMP, net.ParseIP("239.0.75.0"), done)
	}
	if hasFamily(cfg, config.BridgeInterface.HasMLD) {
		running++
		go runSubsystem("mld", cfg, log, mld.New, capture.OpenMLD,
			config.BridgeInterface.HasMLD, cfg.QuerierModeMLD, net.ParseIP("ff05::4b"), done)
	}

	for ; running > 0; running-- {
		<-done
	}
}

func hasFamily(cfg config.Config, has func(config.BridgeInterface) bool) bool {
	for _, ifc := range cfg.Interfaces {
		if has(ifc) {
			return true
		}
	}
	return false
}

type subsystemCtor func(loop *eventloop.Loop, log logging.Logger, opts ...proto.Option) *proto.Subsystem

func runSubsystem(name string, cfg config.Config, log logging.Logger, newSub subsystemCtor, open func(string, int) (*capture.Handle, error), has func(config.BridgeInterface) bool, mode querier.Mode, fixedGroup net.IP, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Timer table bound: two timers per interface (general
	// query, other-querier-present) plus two per group table slot
	// (membership, v1-host).
	nIfaces := len(cfg.Interfaces)
	maxTimers := 2*nIfaces + 2*nIfaces*(cfg.NonConfiguredGroups+1)
	loop := eventloop.New(name, nIfaces, maxTimers, log)
	sub := newSub(loop, log)

	newTable := func(ifaceName string) *grouptable.Interface {
		for _, ifc := range cfg.Interfaces {
			if ifc.Name == ifaceName {
				addr := ifc.IPv4
				if name == "mld" {
					addr = ifc.IPv6
				}
				return grouptable.New(ifc.Name, ifc.Index, ifc.MAC, addr, cfg.NonConfiguredGroups, log)
			}
		}
		return nil
	}

	// The external collaborator invokes register_group for every dynamic
	// outbound interface of every bridge instance before the control-plane
	// thread starts; a single demo registration stands in for
	// it here so the coupling is exercised end to end.
	reg := bridge.NewRegistry(newTable)
	reg.RegisterGroup(cfg.Interfaces[0].Name, fixedGroup, bridge.NewHandle(cfg.Interfaces[0].Name+"-out"))

	var handles []*capture.Handle
	for _, ifc := range cfg.Interfaces {
		if !has(ifc) {
			continue
		}
		table := reg.Interface(ifc.Name)
		if table == nil {
			table = newTable(ifc.Name)
		}

		h, err := open(ifc.Name, ifc.Index)
		if err != nil {
			log.Errorf("%s: %s: %v", name, ifc.Name, err)
			continue
		}
		handles = append(handles, h)

		sub.AddInterface(table, mode, h.Inject)
		sub.WireCapture(ifc.Name, h.Fd(), h.Read)
	}
	defer func() {
		for _, h := range handles {
			h.Close()
		}
	}()

	loop.Run()
	done <- struct{}{}
}

// exampleConfig stands in for the external collaborator that would
// otherwise parse a config file; it is here only so
// this binary links and runs standalone.
func exampleConfig() config.Config {
	return config.Config{
		QuerierModeIGMP:     querier.ModeDelay,
		QuerierModeMLD:      querier.ModeDelay,
		NonConfiguredGroups: 256,
		Interfaces: []config.BridgeInterface{
			{
				Name:  "eth0",
				Index: 2,
				MAC:   [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
				IPv4:  net.ParseIP("192.0.2.1"),
				IPv6:  net.ParseIP("fe80::1"),
			},
		},
	}
}
