// Package definition loads cluster definitions from YAML or JSON documents
// and turns them into configured builders.
//
// A document lists the cores of a cluster in registration order. Each core
// names its initial state and any mix of plain transitions, funnels, ordered
// sequences and arbitrary-order sequences.
package definition

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/comalice/statecluster"
)

var ErrInvalid = errors.New("invalid definition")

// Cluster is the top-level document.
type Cluster struct {
	PrioritiseInternalEvents bool   `json:"prioritiseInternalEvents,omitempty" yaml:"prioritiseInternalEvents,omitempty"`
	Cores                    []Core `json:"cores" yaml:"cores"`
}

// Core describes one MachineCore. CheckTerminalStates defaults to true when
// omitted.
type Core struct {
	Name                string     `json:"name,omitempty" yaml:"name,omitempty"`
	Initial             string     `json:"initial" yaml:"initial"`
	AllowTerminalStates bool       `json:"allowTerminalStates,omitempty" yaml:"allowTerminalStates,omitempty"`
	CheckTerminalStates *bool      `json:"checkTerminalStates,omitempty" yaml:"checkTerminalStates,omitempty"`
	Transitions         []Edge     `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	Funnels             []Funnel   `json:"funnels,omitempty" yaml:"funnels,omitempty"`
	Sequences           []Sequence `json:"sequences,omitempty" yaml:"sequences,omitempty"`
	ArbitrarySequences  []Sequence `json:"arbitrarySequences,omitempty" yaml:"arbitrarySequences,omitempty"`
}

// Effects are the side effects carried by a transition: internal events to
// emit, then commands to publish.
type Effects struct {
	Emit     []string `json:"emit,omitempty" yaml:"emit,omitempty"`
	Commands []string `json:"commands,omitempty" yaml:"commands,omitempty"`
}

type Edge struct {
	From    string `json:"from" yaml:"from"`
	Event   string `json:"event" yaml:"event"`
	To      string `json:"to" yaml:"to"`
	Effects `json:",inline" yaml:",inline"`
}

type Funnel struct {
	From    []string `json:"from" yaml:"from"`
	Event   string   `json:"event" yaml:"event"`
	To      string   `json:"to" yaml:"to"`
	Effects `json:",inline" yaml:",inline"`
}

// Sequence is used for both ordered and arbitrary-order sequences.
type Sequence struct {
	From    string   `json:"from" yaml:"from"`
	Events  []string `json:"events" yaml:"events"`
	To      string   `json:"to" yaml:"to"`
	Effects `json:",inline" yaml:",inline"`
}

// Parse decodes a YAML document and validates it.
func Parse(data []byte) (*Cluster, error) {
	var c Cluster
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseJSON decodes a JSON document and validates it.
func ParseJSON(data []byte) (*Cluster, error) {
	var c Cluster
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads a definition file. Files ending in .json are decoded as JSON,
// everything else as YAML.
func Load(path string) (*Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return Parse(data)
}

// Validate checks the shape of the document. Semantic checks (duplicates,
// terminal states, unknown initial state) are left to the builders.
func (c *Cluster) Validate() error {
	for i, core := range c.Cores {
		if err := core.validate(); err != nil {
			return fmt.Errorf("core %d (%s): %w", i, core.Name, err)
		}
	}
	return nil
}

func (c *Core) validate() error {
	if c.Initial == "" {
		return fmt.Errorf("%w: initial state is required", ErrInvalid)
	}
	if len(c.Transitions)+len(c.Funnels)+len(c.Sequences)+len(c.ArbitrarySequences) == 0 {
		return fmt.Errorf("%w: core has no transitions", ErrInvalid)
	}
	for i, f := range c.Funnels {
		if len(f.From) == 0 {
			return fmt.Errorf("%w: funnel %d has no origins", ErrInvalid, i)
		}
	}
	for i, s := range c.Sequences {
		if len(s.Events) == 0 {
			return fmt.Errorf("%w: sequence %d has no events", ErrInvalid, i)
		}
	}
	for i, s := range c.ArbitrarySequences {
		if len(s.Events) == 0 {
			return fmt.Errorf("%w: arbitrary sequence %d has no events", ErrInvalid, i)
		}
	}
	return nil
}

// CoreBuilder returns a MachineCoreBuilder populated from the core. Builder
// errors surface through the returned builder's Err.
func (c *Core) CoreBuilder() *statecluster.MachineCoreBuilder {
	b := statecluster.NewMachineCoreBuilder()
	for _, t := range c.Transitions {
		b.AddTransition(t.From, t.Event, t.To, t.Emit, t.Commands)
	}
	for _, f := range c.Funnels {
		b.AddFunnel(f.From, f.Event, f.To, f.Emit, f.Commands)
	}
	for _, s := range c.Sequences {
		b.AddSequence(s.From, s.Events, s.To, s.Emit, s.Commands)
	}
	for _, s := range c.ArbitrarySequences {
		b.AddArbitrarySequence(s.From, s.Events, s.To, s.Emit, s.Commands)
	}
	b.SetInitialState(c.Initial).
		SetAllowTerminalStates(c.AllowTerminalStates)
	if c.CheckTerminalStates != nil {
		b.SetCheckForTerminalStates(*c.CheckTerminalStates)
	}
	return b
}

// Builder returns a StateMachineBuilder holding every core of the document.
func (c *Cluster) Builder(opts ...statecluster.Option) (*statecluster.StateMachineBuilder, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	sb := statecluster.NewStateMachineBuilder(opts...).
		SetPrioritiseInternalEvents(c.PrioritiseInternalEvents)
	for i := range c.Cores {
		sb.AddMachineCore(c.Cores[i].CoreBuilder())
	}
	return sb, nil
}

// Build builds the cluster described by the document.
func (c *Cluster) Build(opts ...statecluster.Option) (*statecluster.StateMachine, error) {
	sb, err := c.Builder(opts...)
	if err != nil {
		return nil, err
	}
	return sb.Build()
}
