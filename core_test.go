package statecluster

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMachineCore_ProcessEvent(t *testing.T) {
	core, err := NewMachineCoreBuilder().
		AddTransition("a", "1", "b", []string{"3"}, []string{"a->b"}).
		AddTransition("b", "2", "a", nil, nil).
		SetInitialState("a").
		Build(0)
	require.NoError(t, err)

	cmds := core.ProcessEvent("1")
	require.Equal(t, []Command{
		{Kind: KindEvent, Payload: "3"},
		{Kind: KindCommand, Payload: "a->b"},
	}, cmds)
	require.Equal(t, "b", core.State())

	require.Empty(t, core.ProcessEvent("2"))
	require.Equal(t, "a", core.State())
}

func TestMachineCore_UnknownEventIsNoop(t *testing.T) {
	core, err := NewMachineCoreBuilder().
		AddTransition("a", "go", "b", nil, []string{"moved"}).
		AddTransition("b", "back", "a", nil, nil).
		SetInitialState("a").
		Build(0)
	require.NoError(t, err)

	for _, e := range []string{"back", "unknown", ""} {
		require.Nil(t, core.ProcessEvent(e))
		require.Equal(t, "a", core.State())
	}
}

func TestMachineCore_CommandsAreCopies(t *testing.T) {
	core, err := NewMachineCoreBuilder().
		AddTransition("a", "go", "a", nil, []string{"x"}).
		SetInitialState("a").
		Build(0)
	require.NoError(t, err)

	cmds := core.ProcessEvent("go")
	cmds[0].Payload = "mutated"
	require.Equal(t, "x", core.ProcessEvent("go")[0].Payload)
}

func TestMachineCore_SetStateAndReset(t *testing.T) {
	core, err := NewMachineCoreBuilder().
		AddTransition("a", "go", "b", nil, nil).
		AddTransition("b", "go", "a", nil, nil).
		SetInitialState("a").
		Build(0)
	require.NoError(t, err)

	require.NoError(t, core.SetState("b"))
	require.Equal(t, "b", core.State())

	err = core.SetState("nowhere")
	require.ErrorIs(t, err, ErrUnknownState)
	require.Equal(t, "b", core.State())

	core.Reset()
	require.Equal(t, "a", core.State())
}

func TestMachineCore_Diagnostics(t *testing.T) {
	core, err := NewMachineCoreBuilder().
		AddTransition("b", "y", "a", nil, nil).
		AddTransition("a", "x", "b", nil, nil).
		AddTransition("a", "z", "a", nil, nil).
		SetInitialState("a").
		Build(3)
	require.NoError(t, err)

	require.Equal(t, 3, core.ID())
	require.Equal(t, 2, core.StateCount())
	require.Equal(t, 3, core.TransitionCount())
	require.Contains(t, core.String(), "2 states, 3 transitions")

	want := `"3.a" [peripheries=2]
"3.a" -> "3.b" [label="x"]
"3.a" -> "3.a" [label="z"]
"3.b" -> "3.a" [label="y"]
`
	require.Equal(t, want, core.Diagram())

	ts := core.Transitions()
	require.Len(t, ts, 3)
	require.Equal(t, "a", ts[0].Origin)
	require.Equal(t, "x", ts[0].Event)
}

func TestMachineCoreBuilder_DuplicateTransition(t *testing.T) {
	b := NewMachineCoreBuilder().
		AddTransition("a", "e", "b", nil, nil).
		AddTransition("a", "e", "a", nil, nil).
		AddTransition("b", "e", "a", nil, nil).
		SetInitialState("a")
	require.ErrorIs(t, b.Err(), ErrDuplicateTransition)

	_, err := b.Build(7)
	require.ErrorIs(t, err, ErrDuplicateTransition)

	var be *BuildError
	require.True(t, errors.As(err, &be))
	require.Equal(t, 7, be.Core)
}

func TestMachineCoreBuilder_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *MachineCoreBuilder)
	}{
		{"origin", func(b *MachineCoreBuilder) { b.AddTransition("", "e", "b", nil, nil) }},
		{"event", func(b *MachineCoreBuilder) { b.AddTransition("a", "", "b", nil, nil) }},
		{"target", func(b *MachineCoreBuilder) { b.AddTransition("a", "e", "", nil, nil) }},
		{"emitted event", func(b *MachineCoreBuilder) { b.AddTransition("a", "e", "b", []string{""}, nil) }},
		{"emitted command", func(b *MachineCoreBuilder) { b.AddTransition("a", "e", "b", nil, []string{"ok", ""}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewMachineCoreBuilder().SetInitialState("a")
			tt.build(b)
			_, err := b.Build(0)
			require.ErrorIs(t, err, ErrMissingField)
		})
	}
}

func TestMachineCoreBuilder_InitialState(t *testing.T) {
	_, err := NewMachineCoreBuilder().
		AddTransition("a", "e", "a", nil, nil).
		Build(0)
	require.ErrorIs(t, err, ErrUnknownInitialState)

	_, err = NewMachineCoreBuilder().
		AddTransition("a", "e", "a", nil, nil).
		SetInitialState("z").
		Build(0)
	require.ErrorIs(t, err, ErrUnknownInitialState)
}

func TestMachineCoreBuilder_TerminalStatePolicy(t *testing.T) {
	newBuilder := func() *MachineCoreBuilder {
		return NewMachineCoreBuilder().
			AddTransition("x", "e", "y", nil, nil).
			SetInitialState("x")
	}

	t.Run("strict", func(t *testing.T) {
		_, err := newBuilder().Build(0)
		require.ErrorIs(t, err, ErrTerminalState)
		require.Contains(t, err.Error(), `"y"`)
	})

	t.Run("allowed", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		core, err := newBuilder().SetAllowTerminalStates(true).build(0, logger)
		require.NoError(t, err)
		require.NotNil(t, core)
		require.Contains(t, buf.String(), "level=WARN")
		require.Contains(t, buf.String(), "target=y")
	})

	t.Run("unchecked", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		core, err := newBuilder().SetCheckForTerminalStates(false).build(0, logger)
		require.NoError(t, err)
		require.NotNil(t, core)
		require.Empty(t, buf.String())

		core.ProcessEvent("e")
		require.Equal(t, "y", core.State())
	})
}

func TestMachineCoreBuilder_Funnel(t *testing.T) {
	core, err := NewMachineCoreBuilder().
		AddFunnel([]string{"a", "b", "c"}, "off", "dark", nil, []string{"off"}).
		AddTransition("a", "next", "b", nil, nil).
		AddTransition("b", "next", "c", nil, nil).
		AddTransition("dark", "on", "a", nil, nil).
		SetInitialState("a").
		Build(0)
	require.NoError(t, err)
	require.Equal(t, 6, core.TransitionCount())

	core.ProcessEvent("next")
	require.Equal(t, []Command{{Kind: KindCommand, Payload: "off"}}, core.ProcessEvent("off"))
	require.Equal(t, "dark", core.State())

	_, err = NewMachineCoreBuilder().
		AddFunnel(nil, "off", "dark", nil, nil).
		Build(0)
	require.ErrorIs(t, err, ErrEmptySet)
}

func TestMachineCoreBuilder_Sequence(t *testing.T) {
	b := NewMachineCoreBuilder().SetInitialState("idle")
	steps := b.AddSequence("idle", []string{"up", "up", "down"}, "unlocked", nil, []string{"open"})
	b.AddTransition("unlocked", "lock", "idle", nil, nil)
	require.Len(t, steps, 2)
	require.NotEqual(t, steps[0], steps[1])

	core, err := b.Build(0)
	require.NoError(t, err)

	require.Nil(t, core.ProcessEvent("up"))
	require.Equal(t, steps[0], core.State())
	require.Nil(t, core.ProcessEvent("up"))
	require.Equal(t, steps[1], core.State())
	require.Equal(t, []Command{{Kind: KindCommand, Payload: "open"}}, core.ProcessEvent("down"))
	require.Equal(t, "unlocked", core.State())
}

func TestMachineCoreBuilder_SequenceSingleEvent(t *testing.T) {
	b := NewMachineCoreBuilder().SetInitialState("a")
	require.Empty(t, b.AddSequence("a", []string{"go"}, "b", nil, nil))
	b.AddTransition("b", "go", "a", nil, nil)
	core, err := b.Build(0)
	require.NoError(t, err)
	require.Equal(t, 2, core.TransitionCount())

	b = NewMachineCoreBuilder()
	require.Nil(t, b.AddSequence("a", nil, "b", nil, nil))
	require.ErrorIs(t, b.Err(), ErrEmptySet)
}

func TestMachineCoreBuilder_ArbitrarySequence(t *testing.T) {
	newCore := func(t *testing.T) *MachineCore {
		b := NewMachineCoreBuilder().SetInitialState("s")
		steps := b.AddArbitrarySequence("s", []string{"e1", "e2"}, "t", []string{"done"}, []string{"both"})
		require.Len(t, steps, 2)
		b.AddTransition("t", "again", "s", nil, nil)
		core, err := b.Build(0)
		require.NoError(t, err)
		return core
	}
	want := []Command{{Kind: KindEvent, Payload: "done"}, {Kind: KindCommand, Payload: "both"}}

	t.Run("in order", func(t *testing.T) {
		core := newCore(t)
		require.Nil(t, core.ProcessEvent("e1"))
		require.Equal(t, want, core.ProcessEvent("e2"))
		require.Equal(t, "t", core.State())
	})

	t.Run("reversed", func(t *testing.T) {
		core := newCore(t)
		require.Nil(t, core.ProcessEvent("e2"))
		require.Equal(t, want, core.ProcessEvent("e1"))
		require.Equal(t, "t", core.State())
	})

	t.Run("incomplete", func(t *testing.T) {
		core := newCore(t)
		require.Nil(t, core.ProcessEvent("e1"))
		require.NotEqual(t, "t", core.State())
		require.Nil(t, core.ProcessEvent("e1"))
		require.NotEqual(t, "t", core.State())
	})
}

func TestMachineCoreBuilder_ArbitrarySequenceAllOrders(t *testing.T) {
	set := []string{"a", "b", "c"}
	b := NewMachineCoreBuilder().SetInitialState("start")
	steps := b.AddArbitrarySequence("start", set, "end", nil, []string{"complete"})
	require.Len(t, steps, 6)
	b.AddTransition("end", "restart", "start", nil, nil)
	core, err := b.Build(0)
	require.NoError(t, err)

	orders := [][]string{
		{"a", "b", "c"}, {"a", "c", "b"}, {"b", "a", "c"},
		{"b", "c", "a"}, {"c", "a", "b"}, {"c", "b", "a"},
	}
	for _, order := range orders {
		t.Run(strings.Join(order, ""), func(t *testing.T) {
			core.Reset()
			var emitted []Command
			for _, e := range order {
				emitted = append(emitted, core.ProcessEvent(e)...)
			}
			require.Equal(t, "end", core.State())
			require.Equal(t, []Command{{Kind: KindCommand, Payload: "complete"}}, emitted)
		})
	}
}

func TestMachineCoreBuilder_ArbitrarySequenceErrors(t *testing.T) {
	b := NewMachineCoreBuilder()
	require.Nil(t, b.AddArbitrarySequence("s", nil, "t", nil, nil))
	require.ErrorIs(t, b.Err(), ErrEmptySet)

	b = NewMachineCoreBuilder().SetInitialState("s")
	b.AddArbitrarySequence("s", []string{"x", "x"}, "t", nil, nil)
	b.AddTransition("t", "back", "s", nil, nil)
	core, err := b.Build(0)
	require.NoError(t, err)
	core.ProcessEvent("x")
	require.Equal(t, "t", core.State())
}

func TestMachineCoreBuilder_ArbitrarySequenceJoinedNames(t *testing.T) {
	// "a+b" alone must not be confused with having seen both a and b.
	b := NewMachineCoreBuilder().SetInitialState("s")
	steps := b.AddArbitrarySequence("s", []string{"a+b", "a", "b"}, "done", nil, []string{"fired"})
	require.Len(t, steps, 6)
	seen := map[string]struct{}{}
	for _, st := range steps {
		seen[st] = struct{}{}
	}
	require.Len(t, seen, 6)
	b.AddTransition("done", "again", "s", nil, nil)
	core, err := b.Build(0)
	require.NoError(t, err)

	require.Nil(t, core.ProcessEvent("a+b"))
	require.Nil(t, core.ProcessEvent("a+b"))
	require.NotEqual(t, "done", core.State())

	require.Nil(t, core.ProcessEvent("b"))
	require.Equal(t, []Command{{Kind: KindCommand, Payload: "fired"}}, core.ProcessEvent("a"))
	require.Equal(t, "done", core.State())
}

func TestMachineCoreBuilder_Copy(t *testing.T) {
	orig := NewMachineCoreBuilder().
		AddTransition("a", "e", "b", nil, nil).
		AddTransition("b", "e", "a", nil, nil).
		SetInitialState("a")

	cp := orig.Copy()
	cp.AddTransition("a", "f", "a", nil, nil)
	orig.AddTransition("b", "g", "b", nil, nil).SetInitialState("b")

	oc, err := orig.Build(0)
	require.NoError(t, err)
	cc, err := cp.Build(1)
	require.NoError(t, err)

	require.Equal(t, 3, oc.TransitionCount())
	require.Equal(t, 3, cc.TransitionCount())
	require.Equal(t, "b", oc.InitialState())
	require.Equal(t, "a", cc.InitialState())

	// A transition added to one copy does not count as a duplicate in the other.
	cp.AddTransition("b", "g", "a", nil, nil)
	require.NoError(t, cp.Err())
}
