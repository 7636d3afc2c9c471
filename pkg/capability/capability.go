// Package capability resolves what the host can actually do for a gate
// run. The set is built once from explicit configuration and injected
// into the run context; nothing probes the environment at check time,
// so CI and local runs resolve identically from the same profile.
package capability

import (
	"context"
	"sort"
)

// Well-known capability names.
const (
	NamePrivileged = "privileged"
	NameSimulator  = "simulator"
)

// Capability is one execution facility available to gate checks.
type Capability interface {
	// Name identifies the capability to checks that require it.
	Name() string
	// Privileged reports whether real host tooling backs it.
	Privileged() bool
}

// PrivilegedCapability marks that real tracing and fault-injection
// tooling is available on the host.
type PrivilegedCapability struct {
	tools []string
}

// NewPrivileged declares the privileged capability with the tools the
// operator has made available (dtrace, strace, ld_preload shims).
func NewPrivileged(tools ...string) *PrivilegedCapability {
	sorted := append([]string(nil), tools...)
	sort.Strings(sorted)
	return &PrivilegedCapability{tools: sorted}
}

func (p *PrivilegedCapability) Name() string     { return NamePrivileged }
func (p *PrivilegedCapability) Privileged() bool { return true }

// CollaboratorCapability names an unprivileged facility an external
// collaborator provides, such as the HTTP probe or metrics scraper
// that captured the run's evidence.
type CollaboratorCapability struct {
	name string
}

// NewCollaborator declares a collaborator-provided facility.
func NewCollaborator(name string) *CollaboratorCapability {
	return &CollaboratorCapability{name: name}
}

func (c *CollaboratorCapability) Name() string     { return c.name }
func (c *CollaboratorCapability) Privileged() bool { return false }

// Tools returns the declared tool names in sorted order.
func (p *PrivilegedCapability) Tools() []string {
	return append([]string(nil), p.tools...)
}

// HasTool reports whether a specific tool was declared.
func (p *PrivilegedCapability) HasTool(name string) bool {
	for _, t := range p.tools {
		if t == name {
			return true
		}
	}
	return false
}

// Set is the resolved capability collection for one run.
type Set struct {
	caps map[string]Capability
}

// NewSet builds a set from explicit members. A later member with the
// same name replaces an earlier one.
func NewSet(caps ...Capability) *Set {
	s := &Set{caps: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		s.caps[c.Name()] = c
	}
	return s
}

// Has reports whether the named capability is present.
func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.caps[name]
	return ok
}

// Get returns the named capability.
func (s *Set) Get(name string) (Capability, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := s.caps[name]
	return c, ok
}

// Satisfies reports whether the named facility is available, either as
// a capability in its own right or as a declared tool of the
// privileged capability.
func (s *Set) Satisfies(name string) bool {
	if s.Has(name) {
		return true
	}
	if c, ok := s.Get(NamePrivileged); ok {
		if p, ok := c.(*PrivilegedCapability); ok && p.HasTool(name) {
			return true
		}
	}
	return false
}

// Names returns the member names in sorted order.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.caps))
	for n := range s.caps {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Privileged reports whether any member is privileged.
func (s *Set) Privileged() bool {
	for _, c := range s.caps {
		if c.Privileged() {
			return true
		}
	}
	return false
}

// Simulator returns the simulator member if present.
func (s *Set) Simulator() (*SimulatorCapability, bool) {
	c, ok := s.caps[NameSimulator]
	if !ok {
		return nil, false
	}
	sim, ok := c.(*SimulatorCapability)
	return sim, ok
}

// Close releases any members that hold resources.
func (s *Set) Close(ctx context.Context) error {
	var first error
	for _, c := range s.caps {
		closer, ok := c.(interface{ Close(context.Context) error })
		if !ok {
			continue
		}
		if err := closer.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Resolve builds the capability set for one run from configuration.
// The simulator is always present, facilities join as collaborator
// capabilities, and the privileged capability joins only when the
// operator enables it.
func Resolve(ctx context.Context, privileged bool, tools, facilities []string, cfg SandboxConfig) (*Set, error) {
	sim, err := NewSimulator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	members := []Capability{sim}
	for _, f := range facilities {
		if f == "" || f == NameSimulator || f == NamePrivileged {
			continue
		}
		members = append(members, NewCollaborator(f))
	}
	if privileged {
		members = append(members, NewPrivileged(tools...))
	}
	return NewSet(members...), nil
}
