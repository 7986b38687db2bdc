package domain

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Capabilities is the bitmask of debug adapter features a client may use.
type Capabilities uint32

// Capability bits. The layout is part of the persisted debug_client contract.
const (
	CapLoadedSources Capabilities = 1 << iota
	CapModules
	CapRestart
	CapSetExpression
	CapSingleThreadExecution
	CapStepBack
	CapSteppingGranularity
	CapTerminateThreads
)

// CapAll is every defined capability bit.
const CapAll = CapLoadedSources | CapModules | CapRestart | CapSetExpression |
	CapSingleThreadExecution | CapStepBack | CapSteppingGranularity | CapTerminateThreads

type capabilityName struct {
	bit  Capabilities
	name string
}

var capabilityNames = []capabilityName{
	{CapLoadedSources, "loaded_sources"},
	{CapModules, "modules"},
	{CapRestart, "restart"},
	{CapSetExpression, "set_expression"},
	{CapSingleThreadExecution, "single_thread_execution"},
	{CapStepBack, "step_back"},
	{CapSteppingGranularity, "stepping_granularity"},
	{CapTerminateThreads, "terminate_threads"},
}

// Has reports whether every bit in other is set.
func (c Capabilities) Has(other Capabilities) bool {
	return c&other == other
}

// Union returns the bits present in either set.
func (c Capabilities) Union(other Capabilities) Capabilities {
	return c | other
}

// Intersect returns the bits present in both sets.
func (c Capabilities) Intersect(other Capabilities) Capabilities {
	return c & other
}

// Without clears the bits in other.
func (c Capabilities) Without(other Capabilities) Capabilities {
	return c &^ other
}

// SubsetOf reports whether c grants nothing beyond other.
func (c Capabilities) SubsetOf(other Capabilities) bool {
	return c&^other == 0
}

// Valid reports whether only defined bits are set.
func (c Capabilities) Valid() bool {
	return c.SubsetOf(CapAll)
}

// Names returns the names of the set bits in bit order.
func (c Capabilities) Names() []string {
	set := lo.Filter(capabilityNames, func(n capabilityName, _ int) bool {
		return c.Has(n.bit)
	})
	return lo.Map(set, func(n capabilityName, _ int) string {
		return n.name
	})
}

func (c Capabilities) String() string {
	if c == 0 {
		return "none"
	}
	return strings.Join(c.Names(), ",")
}

// UnionAll folds a list of capability sets into their union.
func UnionAll(sets []Capabilities) Capabilities {
	return lo.Reduce(sets, func(acc Capabilities, c Capabilities, _ int) Capabilities {
		return acc.Union(c)
	}, 0)
}

// ParseCapabilities parses a comma separated list of capability names.
// "all" and "none" are accepted as shorthands.
func ParseCapabilities(s string) (Capabilities, error) {
	var caps Capabilities
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		switch part {
		case "", "none":
			continue
		case "all":
			caps |= CapAll
			continue
		}
		n, ok := lo.Find(capabilityNames, func(n capabilityName) bool {
			return n.name == part
		})
		if !ok {
			return 0, fmt.Errorf("unknown capability %q", part)
		}
		caps |= n.bit
	}
	return caps, nil
}
