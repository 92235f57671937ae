package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/veghal/heatgrid/internal/storage"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
)

// EnergyPlot renders the reduced-energy trace as an ascii graph.
func EnergyPlot(energy []float64, width, height int) string {
	if len(energy) == 0 {
		return "no energy samples"
	}
	plot := asciigraph.Plot(energy,
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Caption("reduced energy"))
	return graphStyle.Render(plot)
}

// Summary renders a styled key/value block describing one run.
func Summary(meta *storage.RunMetadata) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(meta.ID))
	b.WriteString("\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	row("grid", fmt.Sprintf("%d x %d (%d ranks x %d cols)", meta.Nx*meta.Ranks, meta.Ny, meta.Ranks, meta.Nx))
	row("iterations", fmt.Sprintf("%d", meta.Ni))
	row("transport", meta.Transport)
	row("dx", fmt.Sprintf("%.6g", meta.Dx))
	row("dt", fmt.Sprintf("%.6g", meta.Dt))
	row("gamma", fmt.Sprintf("%.4f", meta.Gamma))
	names := make([]string, 0, len(meta.Metrics))
	for name := range meta.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		row(name, fmt.Sprintf("%.6g", meta.Metrics[name]))
	}
	return b.String()
}
