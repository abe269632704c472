// Command minidict-tags prints the market categories the app offers as
// filters, as served by GET /api/tags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/minidict/minidict/internal/platform/polymarket"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(8).Align(lipgloss.Right)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Width(28)
	slugStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

func main() {
	gammaHost := flag.String("gamma", polymarket.DefaultGammaURL, "Gamma API root")
	limit := flag.Int("limit", 100, "maximum number of tags")
	filter := flag.String("filter", "", "only show tags whose label or slug contains this text")
	timeout := flag.Duration("timeout", 15*time.Second, "request timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tags, err := polymarket.NewGammaClient(*gammaHost, nil).Tags(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}

	needle := strings.ToLower(strings.TrimSpace(*filter))
	rows := make([]string, 0, len(tags))
	for _, t := range tags {
		if needle != "" && !strings.Contains(strings.ToLower(t.Label), needle) && !strings.Contains(strings.ToLower(t.Slug), needle) {
			continue
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			idStyle.Render(string(t.ID)), "  ",
			labelStyle.Render(t.Label),
			slugStyle.Render(t.Slug),
		))
	}

	header := headerStyle.Render(fmt.Sprintf("Polymarket tags (%d)", len(rows)))
	if len(rows) == 0 {
		rows = append(rows, "no tags")
	}
	fmt.Println(header)
	fmt.Println(borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}
