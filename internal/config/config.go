// Package config is the narrow surface through which the external
// collaborator hands mcbridged its inputs: mcbridged itself never parses
// a config file. The caller builds a Config in Go, and cmd/mcbridged uses
// it to create the IGMP/MLD subsystems and add their interfaces; Validate
// rejects anything the control plane cannot safely start with.
package config

import (
	"net"

	"github.com/mcbridged/mcbridged/internal/errs"
	"github.com/mcbridged/mcbridged/internal/querier"
)

// BridgeInterface is one physical interface participating in any dynamic
// bridge instance: its name, kernel index, MAC, and the
// addresses its IGMP and/or MLD subsystem binds to. An interface that
// never carries IPv4 multicast leaves IPv4 nil; likewise IPv6.
type BridgeInterface struct {
	Name  string
	Index int
	MAC   [6]byte
	IPv4  net.IP // primary IPv4 address, or nil if this interface has no IGMP side
	IPv6  net.IP // primary IPv6 link-local address, or nil if this interface has no MLD side
}

// HasIGMP reports whether this interface should run the IGMP subsystem.
func (b BridgeInterface) HasIGMP() bool { return b.IPv4 != nil }

// HasMLD reports whether this interface should run the MLD subsystem.
func (b BridgeInterface) HasMLD() bool { return b.IPv6 != nil }

// Config is the complete set of inputs the external collaborator supplies
// before the control-plane threads start.
type Config struct {
	// QuerierModeIGMP and QuerierModeMLD select the four-mode querier
	// behavior, independently per protocol.
	QuerierModeIGMP querier.Mode
	QuerierModeMLD  querier.Mode

	// NonConfiguredGroups bounds the dynamic suffix of every interface's
	// group table. Must be positive.
	NonConfiguredGroups int

	// Interfaces lists every physical interface participating in any
	// dynamic bridge instance. register_group is expected to
	// run against these same names before the control-plane threads
	// start.
	Interfaces []BridgeInterface
}

// Validate checks Config for fatal configuration errors: a non-positive group table bound, a duplicate or incomplete
// interface record, or an interface with neither an IPv4 nor an IPv6
// address (and therefore nothing for either subsystem to bind to).
func (c Config) Validate() error {
	if c.NonConfiguredGroups <= 0 {
		return &errs.ConfigError{Field: "NonConfiguredGroups", Value: c.NonConfiguredGroups, Message: "must be positive"}
	}

	seenName := make(map[string]bool, len(c.Interfaces))
	seenIndex := make(map[int]bool, len(c.Interfaces))
	for _, ifc := range c.Interfaces {
		if ifc.Name == "" {
			return &errs.ConfigError{Field: "Interfaces", Value: ifc, Message: "interface name cannot be empty"}
		}
		if seenName[ifc.Name] {
			return &errs.ConfigError{Field: "Interfaces", Value: ifc.Name, Message: "duplicate interface name"}
		}
		seenName[ifc.Name] = true

		if seenIndex[ifc.Index] {
			return &errs.ConfigError{Field: "Interfaces", Value: ifc.Index, Message: "duplicate interface index"}
		}
		seenIndex[ifc.Index] = true

		if ifc.MAC == ([6]byte{}) {
			return &errs.ConfigError{Field: "Interfaces", Value: ifc.Name, Message: "MAC address cannot be all-zero"}
		}
		if !ifc.HasIGMP() && !ifc.HasMLD() {
			return &errs.ConfigError{Field: "Interfaces", Value: ifc.Name, Message: "interface carries neither an IPv4 nor an IPv6 address"}
		}
	}
	return nil
}
