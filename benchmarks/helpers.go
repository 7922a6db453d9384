// Package benchmarks provides shared helpers for cluster benchmarks.
package benchmarks

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/comalice/statecluster/definition"
)

// GenRingCore creates a core with n states cycling on "tick".
func GenRingCore(n int) definition.Core {
	if n < 1 {
		n = 1
	}
	core := definition.Core{Name: fmt.Sprintf("ring_%d", n), Initial: "s0"}
	for i := 0; i < n; i++ {
		core.Transitions = append(core.Transitions, definition.Edge{
			From:  fmt.Sprintf("s%d", i),
			Event: "tick",
			To:    fmt.Sprintf("s%d", (i+1)%n),
		})
	}
	return core
}

// GenChainCluster creates a cluster of width cores. Core i toggles on
// event "e<i>" and emits "e<i+1>", so one external "e0" ripples through every
// core. The last core publishes a "done" command.
func GenChainCluster(width int, prioritise bool) definition.Cluster {
	if width < 1 {
		width = 1
	}
	c := definition.Cluster{PrioritiseInternalEvents: prioritise}
	for i := 0; i < width; i++ {
		in := fmt.Sprintf("e%d", i)
		fx := definition.Effects{Emit: []string{fmt.Sprintf("e%d", i+1)}}
		if i == width-1 {
			fx = definition.Effects{Commands: []string{"done"}}
		}
		c.Cores = append(c.Cores, definition.Core{
			Name:    fmt.Sprintf("link_%d", i),
			Initial: "off",
			Transitions: []definition.Edge{
				{From: "off", Event: in, To: "on", Effects: fx},
				{From: "on", Event: in, To: "off", Effects: fx},
			},
		})
	}
	return c
}

// GenDefinitionYAML renders a chain cluster of the given width as YAML.
func GenDefinitionYAML(width int) []byte {
	c := GenChainCluster(width, true)
	data, err := yaml.Marshal(c)
	if err != nil {
		panic(err)
	}
	return data
}
