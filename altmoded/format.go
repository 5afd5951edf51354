package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/BertoldVdb/PDAltMode/altmode"
	"github.com/BertoldVdb/PDAltMode/hostcmd"
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Bold(true)
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("57")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		out := make([]string, len(cells))
		for i, cell := range cells {
			out[i] = style.Width(widths[i] + 2).Padding(0, 1).Render(cell)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, out...)
	}

	lines := []string{line(headers, headerStyle)}
	for _, row := range rows {
		lines = append(lines, line(row, lipgloss.NewStyle()))
	}
	return baseStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatPorts(ports []hostcmd.PortSummary) string {
	var rows [][]string
	for _, p := range ports {
		session := p.Session
		if session == "" {
			session = "-"
		}
		rows = append(rows, []string{
			fmt.Sprint(p.Port),
			yesNo(p.Connected),
			yesNo(p.DFPActive),
			session,
		})
	}
	return renderTable([]string{"PORT", "CONNECTED", "MODE ACTIVE", "SESSION"}, rows)
}

func svidList(svids []altmode.SVIDStatus) string {
	var out []string
	for _, s := range svids {
		out = append(out, s.SVID+"("+s.State+")")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, " ")
}

func slotList(slots []altmode.SlotStatus) string {
	var out []string
	for _, s := range slots {
		out = append(out, fmt.Sprintf("%s@%d", s.SVID, s.Opos))
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, " ")
}

func formatPort(st altmode.PortStatus) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Port %d", st.Port)) + "\n")
	if !st.Connected {
		b.WriteString(dimStyle.Render("  not connected") + "\n")
		return b.String()
	}
	fmt.Fprintf(&b, "  session %s, %s, %s, mfAllow=%v\n", st.Session, st.Role, st.Polarity, st.MFAllow)

	var rows [][]string
	for _, s := range st.Scopes {
		id := s.Identity.State
		if s.Identity.Type != "" {
			id = fmt.Sprintf("%s %s:%s", s.Identity.Type, s.Identity.VID, s.Identity.PID)
		}
		rows = append(rows, []string{s.Scope, id, svidList(s.SVIDs), slotList(s.Slots)})
	}
	b.WriteString(renderTable([]string{"SCOPE", "IDENTITY", "SVIDS", "ENTERED"}, rows))

	if dp := st.DP; dp != nil && dp.On {
		fmt.Fprintf(&b, "  displayport: pin %s, mux %s, hpd pending=%v\n", dp.Pin, dp.Mode, dp.HPDPending)
	}
	if tbt := st.TBT; tbt != nil {
		fmt.Fprintf(&b, "  thunderbolt: %s", tbt.State)
		if tbt.CableEntryDone {
			b.WriteString(", cable entered")
		}
		if tbt.RetryDone {
			b.WriteString(", retried")
		}
		b.WriteString("\n")
	}
	if st.MuxWait {
		b.WriteString(dimStyle.Render("  waiting for mux") + "\n")
	}
	return b.String()
}
