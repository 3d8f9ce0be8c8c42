package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/x64dbg/bridge/cfg"
	"github.com/x64dbg/bridge/errors"
)

// graphFile is the on-disk description of a graph:
//
//	entry = 0x401000
//	[[node]]
//	start = 0x401000
//	end = 0x40100f
//	brtrue = 0x401010
//	exits = [0x401010]
type graphFile struct {
	Entry    uint64     `toml:"entry" yaml:"entry"`
	UserData uint64     `toml:"user_data" yaml:"user_data"`
	Nodes    []nodeFile `toml:"node" yaml:"nodes"`
}

type nodeFile struct {
	Start    uint64   `toml:"start" yaml:"start"`
	End      uint64   `toml:"end" yaml:"end"`
	BrTrue   uint64   `toml:"brtrue" yaml:"brtrue"`
	BrFalse  uint64   `toml:"brfalse" yaml:"brfalse"`
	ICount   uint64   `toml:"icount" yaml:"icount"`
	Terminal bool     `toml:"terminal" yaml:"terminal"`
	Split    bool     `toml:"split" yaml:"split"`
	Exits    []uint64 `toml:"exits" yaml:"exits"`
}

func loadGraphFile(path string) (*cfg.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}

	var gf graphFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &gf)
	default:
		_, err = toml.Decode(string(data), &gf)
	}
	if err != nil {
		return nil, errors.ParseFailed(errors.PhaseConfig, path, err)
	}
	if gf.Entry == 0 {
		return nil, errors.InvalidData(errors.PhaseConfig, []string{path, "entry"}, "entry point must be set")
	}

	g := cfg.New(gf.Entry)
	g.UserData = gf.UserData
	for _, n := range gf.Nodes {
		if n.Start == 0 {
			return nil, errors.InvalidData(errors.PhaseConfig, []string{path, "node"}, "node start must be set")
		}
		end := n.End
		if end == 0 {
			end = n.Start
		}
		exits := n.Exits
		if exits == nil {
			exits = defaultExits(n.BrTrue, n.BrFalse)
		}
		g.AddNode(cfg.Node{
			ParentGraph: gf.Entry,
			Start:       n.Start,
			End:         end,
			BrTrue:      n.BrTrue,
			BrFalse:     n.BrFalse,
			ICount:      n.ICount,
			Terminal:    n.Terminal,
			Split:       n.Split,
			Exits:       exits,
		})
	}
	return g, nil
}

func defaultExits(brtrue, brfalse uint64) []uint64 {
	var exits []uint64
	for _, t := range []uint64{brtrue, brfalse} {
		if t != 0 {
			exits = append(exits, t)
		}
	}
	return exits
}
