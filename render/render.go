// Package render draws the client view of a session for a terminal.
package render

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vitwit/balancerail/catalog"
	"github.com/vitwit/balancerail/session"
	"github.com/vitwit/balancerail/types"
	"github.com/vitwit/balancerail/utils"
)

const (
	cardWidth    = 34
	timeLayout   = "15:04:05"
	currencyName = types.TokenDisplayName
)

// Theme is the color palette.
type Theme struct {
	Accent    lipgloss.Color
	Faint     lipgloss.Color
	Info      lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Pending   lipgloss.Color
	Highlight lipgloss.Color
}

var DefaultTheme = Theme{
	Accent:    lipgloss.Color("63"),
	Faint:     lipgloss.Color("245"),
	Info:      lipgloss.Color("39"),
	Success:   lipgloss.Color("42"),
	Error:     lipgloss.Color("196"),
	Pending:   lipgloss.Color("214"),
	Highlight: lipgloss.Color("229"),
}

// Renderer renders for a particular output. Color is dropped automatically
// when out is not a terminal.
type Renderer struct {
	r     *lipgloss.Renderer
	theme Theme
}

func New(out io.Writer, theme Theme) *Renderer {
	return &Renderer{r: lipgloss.NewRenderer(out), theme: theme}
}

func (rn *Renderer) style() lipgloss.Style {
	return rn.r.NewStyle()
}

func (rn *Renderer) heading(title string) string {
	return rn.style().Bold(true).Foreground(rn.theme.Accent).Render(title)
}

// Tiers renders one card per tier, side by side.
func (rn *Renderer) Tiers(tiers []types.Tier) string {
	card := rn.style().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(rn.theme.Faint).
		Padding(0, 1).
		Width(cardWidth)

	cards := make([]string, 0, len(tiers))
	for _, t := range tiers {
		lines := []string{rn.style().Bold(true).Render(t.Label)}
		if t.Badge != "" {
			lines[0] += " " + rn.style().Foreground(rn.theme.Highlight).Render("["+t.Badge+"]")
		}
		lines = append(lines,
			rn.style().Foreground(rn.theme.Faint).Render(t.Description),
			"",
			fmt.Sprintf("%s %s", t.PriceDisplay, currencyName),
			rn.style().Foreground(rn.theme.Faint).Render(t.Resource),
		)
		cards = append(cards, card.Render(strings.Join(lines, "\n")))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

// Connection renders the wallet banner.
func (rn *Renderer) Connection(snap session.Snapshot, network types.Network) string {
	if !snap.Connected {
		return rn.style().Foreground(rn.theme.Pending).Render("Connect a wallet to begin")
	}
	line := fmt.Sprintf("Connected: %s on %s", snap.Address, network)
	if snap.Paying {
		line += rn.style().Foreground(rn.theme.Pending).Render("  (payment in progress)")
	}
	return rn.style().Foreground(rn.theme.Success).Render(line)
}

// Balance renders an on-chain token balance given in minor units.
func (rn *Renderer) Balance(minor *big.Int) string {
	amount := utils.FormatAmountFromBigInt(minor, types.TokenDecimals)
	return rn.style().Foreground(rn.theme.Faint).Render("Balance: " + amount + " " + currencyName)
}

func (rn *Renderer) statusColor(s session.Status) lipgloss.Color {
	switch s {
	case session.StatusCompleted:
		return rn.theme.Success
	case session.StatusFailed:
		return rn.theme.Error
	case session.StatusAuthorized:
		return rn.theme.Info
	default:
		return rn.theme.Pending
	}
}

// Envelopes renders envs (creation order) newest first.
func (rn *Renderer) Envelopes(envs []session.Envelope) string {
	var b strings.Builder
	b.WriteString(rn.heading("Smart Envelopes"))
	if len(envs) == 0 {
		b.WriteString("\n" + rn.style().Foreground(rn.theme.Faint).Render("No envelopes yet"))
		return b.String()
	}
	for _, e := range session.NewestFirst(envs) {
		status := rn.style().Bold(true).Foreground(rn.statusColor(e.Status)).Render(string(e.Status))
		fmt.Fprintf(&b, "\n%-10s %s %s  %s  %s",
			e.Label, e.Amount.StringFixed(2), currencyName, status,
			rn.style().Foreground(rn.theme.Faint).Render(e.CreatedAt.Format(timeLayout)))
	}
	return b.String()
}

func (rn *Renderer) severityColor(s session.Severity) lipgloss.Color {
	switch s {
	case session.SeveritySuccess:
		return rn.theme.Success
	case session.SeverityError:
		return rn.theme.Error
	}
	return rn.theme.Info
}

// Log renders the attempt log oldest first.
func (rn *Renderer) Log(entries []session.LogEntry) string {
	var b strings.Builder
	b.WriteString(rn.heading("Transaction Log"))
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %s",
			rn.style().Foreground(rn.theme.Faint).Render(e.Timestamp.Format(timeLayout)),
			rn.style().Foreground(rn.severityColor(e.Severity)).Render(e.Message))
	}
	return b.String()
}

// Content renders released content, or nothing when c is nil.
func (rn *Renderer) Content(c *types.Content) string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(rn.heading("Unlocked Content"))
	fmt.Fprintf(&b, "\nTier: %s\n%s", c.Tier, c.Data)
	for _, f := range c.Features {
		b.WriteString("\n  • " + f)
	}
	b.WriteString("\n" + rn.style().Foreground(rn.theme.Faint).Render(c.Timestamp))
	return b.String()
}

// Vault renders the simulated balance with four decimals.
func (rn *Renderer) Vault(balance decimal.Decimal) string {
	return rn.heading("AI NISA Vault (simulated)") + "\n" +
		rn.style().Bold(true).Render(balance.StringFixed(4)+" "+currencyName)
}

func (rn *Renderer) Agent(a catalog.Agent) string {
	faint := rn.style().Foreground(rn.theme.Faint)
	return strings.Join([]string{
		rn.heading("Budget Agent"),
		fmt.Sprintf("%s (%s)", a.ID, a.Standard),
		a.Role,
		faint.Render("Chains: " + strings.Join(a.Chains, ", ")),
		faint.Render(a.Description),
	}, "\n")
}

// Session renders the full client view.
func (rn *Renderer) Session(snap session.Snapshot, network types.Network, agent catalog.Agent) string {
	sections := []string{
		rn.Connection(snap, network),
		rn.Envelopes(snap.Envelopes),
		rn.Log(snap.Logs),
	}
	if c := rn.Content(snap.Content); c != "" {
		sections = append(sections, c)
	}
	sections = append(sections, rn.Vault(snap.Vault), rn.Agent(agent))
	return strings.Join(sections, "\n\n")
}
