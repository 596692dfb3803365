package main

import (
	"testing"

	"github.com/alecthomas/kong"
)

func parse(t *testing.T, args ...string) (string, func()) {
	t.Helper()
	saved := CLI
	parser, err := kong.New(&CLI)
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return ctx.Command(), func() { CLI = saved }
}

func TestParseAppend(t *testing.T) {
	cmd, restore := parse(t, "append", "-t", "node.added", "-p", `{"node_id":"n1"}`, "--expect", "0")
	defer restore()

	if cmd != "append" {
		t.Errorf("expected append command, got %s", cmd)
	}
	if CLI.Append.Type != "node.added" {
		t.Errorf("unexpected type %s", CLI.Append.Type)
	}
	if CLI.Append.Expect != 0 {
		t.Errorf("unexpected expect %d", CLI.Append.Expect)
	}
}

func TestParseAppendDefaults(t *testing.T) {
	cmd, restore := parse(t, "append")
	defer restore()

	if cmd != "append" {
		t.Errorf("expected append command, got %s", cmd)
	}
	if CLI.Append.Expect != -1 {
		t.Errorf("expected unconditional default, got %d", CLI.Append.Expect)
	}
	if CLI.Append.Payload != "{}" {
		t.Errorf("unexpected payload default %s", CLI.Append.Payload)
	}
}

func TestParseReplayWithAggregate(t *testing.T) {
	cmd, restore := parse(t, "replay", "-a", "5c6cd30e-4d9a-4f2b-95b3-0a3d06a7bd57")
	defer restore()

	if cmd != "replay" {
		t.Errorf("expected replay command, got %s", cmd)
	}
	if CLI.Replay.Aggregate == "" {
		t.Error("expected aggregate flag")
	}
}

func TestParseConfigFlag(t *testing.T) {
	cmd, restore := parse(t, "-c", "/etc/chronicle.yaml", "stats")
	defer restore()

	if cmd != "stats" {
		t.Errorf("expected stats command, got %s", cmd)
	}
	if CLI.Config != "/etc/chronicle.yaml" {
		t.Errorf("unexpected config path %s", CLI.Config)
	}
}
