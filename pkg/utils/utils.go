package utils

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// FormatPrice renders a minor-unit price with thousands separators for
// user-facing messages, e.g. 1500000 -> "1,500,000".
func FormatPrice(amount int64) string {
	s := strconv.FormatInt(amount, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// ColorizeLogs styles log level markers for the terminal monitor's log view.
func ColorizeLogs(logs []string) []string {
	for i, line := range logs {
		// Only style if not already styled (check for ANSI codes)
		if strings.Contains(line, "\x1b[") {
			continue
		}
		switch {
		case strings.Contains(line, "INFO"):
			logs[i] = strings.Replace(line, "INFO", levelStyle("87", "16").Render("INFO"), 1)
		case strings.Contains(line, "ERRO"):
			logs[i] = strings.Replace(line, "ERRO", levelStyle("204", "0").Render("ERRO"), 1)
		case strings.Contains(line, "WARN"):
			logs[i] = strings.Replace(line, "WARN", levelStyle("192", "0").Render("WARN"), 1)
		case strings.Contains(line, "DEBU"):
			logs[i] = strings.Replace(line, "DEBU", levelStyle("63", "0").Render("DEBU"), 1)
		}
	}
	return logs
}

func levelStyle(bg, fg string) lipgloss.Style {
	return lipgloss.NewStyle().
		Padding(0, 1, 0, 1).
		Bold(true).
		MaxWidth(80).
		Background(lipgloss.Color(bg)).
		Foreground(lipgloss.Color(fg))
}
