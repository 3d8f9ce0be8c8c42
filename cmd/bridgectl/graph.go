package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/x64dbg/bridge/cfg"
	"github.com/x64dbg/bridge/plugin"
)

// memoryOnlyModule exports one page of memory and nothing else. It stands in
// for an analysis plugin when none is given.
var memoryOnlyModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	addrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	flagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newGraphCmd(opts *globalOptions) *cobra.Command {
	var pluginPath string

	cmd := &cobra.Command{
		Use:   "graph <file>",
		Short: "Round-trip a control-flow graph through a plugin's memory",
		Long: `Reads a graph description (TOML, or YAML by extension), publishes it
into the memory of a WebAssembly plugin in wire format, converts it
back and prints every block with its predecessors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			wasm := memoryOnlyModule
			if pluginPath != "" {
				if wasm, err = os.ReadFile(pluginPath); err != nil {
					return fmt.Errorf("read plugin: %w", err)
				}
			}
			return a.roundTrip(cmd, args[0], wasm)
		},
	}
	cmd.Flags().StringVarP(&pluginPath, "plugin", "p", "", "WebAssembly plugin exporting memory")
	return cmd
}

func (a *app) roundTrip(cmd *cobra.Command, path string, wasm []byte) error {
	ctx := cmd.Context()
	g, err := loadGraphFile(path)
	if err != nil {
		return err
	}

	host := plugin.NewHost(ctx, &plugin.Config{MemoryLimitPages: a.cfg.Plugin.MemoryLimitPages})
	defer func() { _ = host.Close(ctx) }()

	p, err := host.Load(ctx, "graph", wasm)
	if err != nil {
		return err
	}
	addr, err := p.PublishGraph(g)
	if err != nil {
		return err
	}
	a.logger.Debug("graph published", zap.Uint32("addr", addr), zap.Int("nodes", g.Len()))

	back, err := p.ReceiveGraph(addr)
	if err != nil {
		return err
	}
	if n := p.Boundary().Outstanding(); n != 0 {
		a.logger.Warn("wire buffers outstanding after round trip", zap.Int("count", n))
	}
	printGraph(cmd.OutOrStdout(), back)
	return nil
}

func printGraph(w io.Writer, g *cfg.Graph) {
	var b strings.Builder
	b.WriteString(titleStyle.Render("CFG"))
	fmt.Fprintf(&b, " entry %s, %d blocks\n\n", addrStyle.Render(fmt.Sprintf("%#x", g.EntryPoint)), g.Len())

	for _, n := range g.Nodes() {
		fmt.Fprintf(&b, "%s-%s", addrStyle.Render(fmt.Sprintf("%#x", n.Start)), addrStyle.Render(fmt.Sprintf("%#x", n.End)))
		var flags []string
		if n.Terminal {
			flags = append(flags, "terminal")
		}
		if n.Split {
			flags = append(flags, "split")
		}
		if len(flags) > 0 {
			b.WriteString(" " + flagStyle.Render("["+strings.Join(flags, ",")+"]"))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "  exits: %s\n", hexList(g.Successors(n.Start)))
		fmt.Fprintf(&b, "  preds: %s\n", hexList(g.Predecessors(n.Start)))
	}
	_, _ = io.WriteString(w, b.String())
}

func hexList(addrs []uint64) string {
	if len(addrs) == 0 {
		return helpStyle.Render("none")
	}
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = fmt.Sprintf("%#x", a)
	}
	return strings.Join(parts, " ")
}
