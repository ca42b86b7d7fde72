package ui

import (
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rivo/uniseg"
)

var (
	primary   = lipgloss.Color("#a78bfa")
	secondary = lipgloss.Color("#f1a208")

	fgBase   = lipgloss.Color("#c0c0c0")
	fgMuted  = lipgloss.Color("#808080")
	fgSubtle = lipgloss.Color("#585858")
	border   = lipgloss.Color("#585858")

	baseStyle    = lipgloss.NewStyle().Foreground(fgBase)
	mutedStyle   = lipgloss.NewStyle().Foreground(fgMuted)
	subtleStyle  = lipgloss.NewStyle().Foreground(fgSubtle)
	titleStyle   = baseStyle.Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#42b883"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555"))

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1)
)

// gradient renders bold text with a horizontal color gradient from -> to.
func gradient(text string, from, to lipgloss.Color) string {
	var clusters []string
	gr := uniseg.NewGraphemes(text)
	for gr.Next() {
		clusters = append(clusters, gr.Str())
	}
	if len(clusters) < 2 {
		return lipgloss.NewStyle().Foreground(from).Bold(true).Render(text)
	}

	colors := blendColors(len(clusters), from, to)
	var b strings.Builder
	for i, cluster := range clusters {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(colors[i].Hex())).Bold(true).Render(cluster))
	}
	return b.String()
}

// blendColors blends in HCL space for perceptually even steps.
func blendColors(size int, from, to lipgloss.Color) []colorful.Color {
	c1, _ := colorful.MakeColor(toColor(from))
	c2, _ := colorful.MakeColor(toColor(to))
	colors := make([]colorful.Color, size)
	for i := range size {
		colors[i] = c1.BlendHcl(c2, float64(i)/float64(size-1)).Clamped()
	}
	return colors
}

func toColor(c lipgloss.Color) color.Color {
	if col, err := colorful.Hex(string(c)); err == nil {
		return col
	}
	return color.RGBA{R: 128, G: 128, B: 128, A: 255}
}
