package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/x64dbg/bridge"
	"github.com/x64dbg/bridge/patch"
)

const (
	sandboxBase = 0x400000
	sandboxSize = 0x1000
)

// sandbox is a small in-process address space the console patches instead
// of a live debuggee.
type sandbox struct {
	base uint64
	data []byte
}

func newSandbox() *sandbox {
	s := &sandbox{base: sandboxBase, data: make([]byte, sandboxSize)}
	for i := range s.data {
		s.data[i] = 0x90
	}
	return s
}

var _ bridge.ProcessMemory = (*sandbox)(nil)

func (s *sandbox) span(addr uint64, n int) (int, bool) {
	if addr < s.base || addr-s.base+uint64(n) > uint64(len(s.data)) {
		return 0, false
	}
	return int(addr - s.base), true
}

func (s *sandbox) ReadMemory(addr uint64, buf []byte) bool {
	off, ok := s.span(addr, len(buf))
	if !ok {
		return false
	}
	copy(buf, s.data[off:])
	return true
}

func (s *sandbox) PatchMemory(addr uint64, buf []byte) bool {
	off, ok := s.span(addr, len(buf))
	if !ok {
		return false
	}
	copy(s.data[off:], buf)
	return true
}

// interpreter executes console commands against a sandbox.
type interpreter struct {
	mem     *sandbox
	patches *patch.Tracker
	out     chan<- string
}

func newInterpreter(out chan<- string, notify bridge.PatchNotifier) *interpreter {
	mem := newSandbox()
	return &interpreter{
		mem:     mem,
		patches: patch.NewTracker(mem, notify),
		out:     out,
	}
}

const consoleHelp = `commands:
  echo <text>            print text
  read <addr> <n>        dump n bytes
  patch <addr> <hex>     write bytes and track the patch
  restore <addr>|all     revert patches
  patches                list patched bytes`

// execute runs one command and reports exactly one result line.
func (in *interpreter) execute(ctx context.Context, line string) error {
	res, err := in.run(strings.Fields(line))
	if err != nil {
		res = "error: " + err.Error()
	}
	select {
	case in.out <- res:
	case <-ctx.Done():
	}
	return err
}

func (in *interpreter) run(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	switch args[0] {
	case "help":
		return consoleHelp, nil
	case "echo":
		return strings.Join(args[1:], " "), nil
	case "read":
		if len(args) != 3 {
			return "", fmt.Errorf("usage: read <addr> <n>")
		}
		addr, err := parseAddr(args[1])
		if err != nil {
			return "", err
		}
		n, err := strconv.Atoi(args[2])
		if err != nil || n <= 0 {
			return "", fmt.Errorf("invalid length %q", args[2])
		}
		buf := make([]byte, n)
		if !in.mem.ReadMemory(addr, buf) {
			return "", fmt.Errorf("cannot read %d bytes at %#x", n, addr)
		}
		return fmt.Sprintf("%#x: %s", addr, hex.EncodeToString(buf)), nil
	case "patch":
		if len(args) != 3 {
			return "", fmt.Errorf("usage: patch <addr> <hex>")
		}
		addr, err := parseAddr(args[1])
		if err != nil {
			return "", err
		}
		data, err := hex.DecodeString(args[2])
		if err != nil {
			return "", fmt.Errorf("invalid bytes %q", args[2])
		}
		if err := in.patches.Set(addr, data); err != nil {
			return "", err
		}
		return fmt.Sprintf("patched %d bytes at %#x (%d tracked)", len(data), addr, in.patches.Len()), nil
	case "restore":
		if len(args) != 2 {
			return "", fmt.Errorf("usage: restore <addr>|all")
		}
		if args[1] == "all" {
			n, err := in.patches.RestoreAll()
			return fmt.Sprintf("restored %d bytes", n), err
		}
		addr, err := parseAddr(args[1])
		if err != nil {
			return "", err
		}
		if err := in.patches.Restore(addr); err != nil {
			return "", err
		}
		return fmt.Sprintf("restored %#x", addr), nil
	case "patches":
		list := in.patches.List()
		if len(list) == 0 {
			return "no patches", nil
		}
		lines := make([]string, len(list))
		for i, p := range list {
			lines[i] = p.String()
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", fmt.Errorf("unknown command %q (try help)", args[0])
}

func parseAddr(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}
