package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mkalas/sessionkeeper/internal/domain"
)

// SessionsOptions controls the status view.
type SessionsOptions struct {
	Now        time.Time
	Threshold  int64
	StaleAfter time.Duration
}

func renderSessionsView(sessions []domain.Session, state domain.RunState, opts SessionsOptions, s styles) string {
	lines := []string{
		s.title.Render("Agent Sessions"),
		s.header.Render(fmt.Sprintf("sessions: %d, rotation threshold: %d tokens", len(sessions), opts.Threshold)),
	}

	if len(sessions) == 0 {
		lines = append(lines, s.empty.Render("No active sessions."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, session := range sessions {
		lines = append(lines, "", sessionLines(session, state, opts, s))
	}

	if len(state.Checkpoints) > 0 {
		lines = append(lines, "", checkpointLines(state, opts, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func sessionLines(session domain.Session, state domain.RunState, opts SessionsOptions, s styles) string {
	title := s.session.Render(fmt.Sprintf("%s (%s)", session.Key, session.RotatingID))

	percent := tokenPercent(session.TokenCount, opts.Threshold)
	bar := renderUsageBar(percent, 24, s)
	usage := s.detail.Render(fmt.Sprintf("%d tokens", session.TokenCount))
	meta := s.meta.Render(fmt.Sprintf("(%.0f%% of threshold)", percent))

	line := lipgloss.JoinHorizontal(lipgloss.Top, bar, " ", usage, " ", meta)
	if session.OverThreshold(opts.Threshold) {
		line += " " + s.warning.Render("[rotation due]")
	}

	parts := []string{title, line}
	if rotation, ok := state.Rotations[session.Key]; ok {
		parts = append(parts, s.meta.Render(
			fmt.Sprintf("last rotated %s -> %s", formatWhen(rotation.RotatedAt, opts.Now), rotation.NewRotatingID)))
	}
	if !session.LastModified.IsZero() && opts.StaleAfter > 0 && opts.Now.Sub(session.LastModified) > opts.StaleAfter {
		parts = append(parts, s.warning.Render("[idle]"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func checkpointLines(state domain.RunState, opts SessionsOptions, s styles) string {
	parts := []string{s.title.Render("Checkpoints")}

	for _, checkpoint := range sortedCheckpoints(state) {
		label := fmt.Sprintf("%s: %s %s", checkpoint.AgentID, checkpoint.Outcome, formatWhen(checkpoint.RanAt, opts.Now))
		switch checkpoint.Outcome {
		case domain.CheckpointFailed:
			parts = append(parts, s.warning.Render(label+" ("+checkpoint.Reason+")"))
		case domain.CheckpointSkipped:
			parts = append(parts, s.meta.Render(label+" ("+checkpoint.Reason+")"))
		default:
			parts = append(parts, s.good.Render(label))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func sortedCheckpoints(state domain.RunState) []domain.AgentCheckpointState {
	checkpoints := make([]domain.AgentCheckpointState, 0, len(state.Checkpoints))
	for _, checkpoint := range state.Checkpoints {
		checkpoints = append(checkpoints, checkpoint)
	}
	for i := 1; i < len(checkpoints); i++ {
		for j := i; j > 0 && checkpoints[j].AgentID < checkpoints[j-1].AgentID; j-- {
			checkpoints[j], checkpoints[j-1] = checkpoints[j-1], checkpoints[j]
		}
	}
	return checkpoints
}

// Rotation renders a rotation run tally with one line per decision.
func Rotation(report domain.RotationReport) string {
	s := newStyles()

	header := "Rotation pass"
	if report.Preview {
		header = "Rotation preview (no commands issued)"
	}

	lines := []string{
		s.title.Render(header),
		s.header.Render(fmt.Sprintf("sessions: %d, threshold: %d tokens", len(report.Decisions), report.Threshold)),
	}

	for _, decision := range report.Decisions {
		lines = append(lines, decisionLine(decision, report.Preview, s))
	}

	tally := fmt.Sprintf("rotated: %d, failed: %d, excluded: %d, below threshold: %d",
		report.Rotated(), report.Failed(), report.Excluded(), report.Count(domain.RotationBelowThreshold))
	if report.Preview {
		tally = fmt.Sprintf("would rotate: %d, excluded: %d, below threshold: %d",
			report.Count(domain.RotationRequested), report.Excluded(), report.Count(domain.RotationBelowThreshold))
	}
	lines = append(lines, "", s.detail.Render(tally))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func decisionLine(decision domain.RotationDecision, preview bool, s styles) string {
	key := s.session.Render(string(decision.Session.Key))
	tokens := s.meta.Render(fmt.Sprintf("%d tokens", decision.Session.TokenCount))

	var verdict string
	switch decision.State {
	case domain.RotationRotated:
		verdict = s.good.Render("rotated -> " + decision.NewRotatingID)
	case domain.RotationRequested:
		if preview {
			verdict = s.good.Render("would rotate")
		} else {
			verdict = s.detail.Render("rotation requested")
		}
	case domain.RotationFailed:
		verdict = s.warning.Render("failed: " + decision.Reason)
	case domain.RotationExcluded:
		verdict = s.meta.Render("excluded")
	default:
		verdict = s.empty.Render(string(decision.State))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, key, " ", tokens, " ", verdict)
}

// Checkpoint renders a checkpoint run tally.
func Checkpoint(report domain.CheckpointReport) string {
	s := newStyles()

	lines := []string{s.title.Render("Checkpoint pass")}

	for _, item := range report.Items {
		agent := s.session.Render(item.AgentID)
		var verdict string
		switch item.Outcome {
		case domain.CheckpointProcessed:
			verdict = s.good.Render("processed (" + item.SessionRef + ")")
		case domain.CheckpointSkipped:
			verdict = s.meta.Render("skipped: " + item.Reason)
		default:
			verdict = s.warning.Render("failed: " + item.Reason)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, agent, " ", verdict))
	}

	lines = append(lines, "", s.detail.Render(fmt.Sprintf(
		"processed: %d, skipped: %d, failed: %d",
		report.Processed(), report.Skipped(), report.Failed())))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func tokenPercent(tokens, threshold int64) float64 {
	if threshold <= 0 {
		return 0
	}
	return clampPercent(float64(tokens) / float64(threshold) * 100)
}

func renderUsageBar(percent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * percent / 100))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	fill := s.barFill
	if percent >= 100 {
		fill = s.barHot
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		fill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatWhen(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if now.IsZero() {
		return t.Format(time.RFC3339)
	}

	elapsed := now.Sub(t)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
