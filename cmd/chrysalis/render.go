package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chrysalis/internal/core"
	"chrysalis/internal/types"
)

// Palette
var (
	colorPrimary = lipgloss.Color("#8BC34A")
	colorMuted   = lipgloss.Color("#6b7280")
	colorWarn    = lipgloss.Color("#FFC107")
	colorInfo    = lipgloss.Color("#2196F3")
	colorError   = lipgloss.Color("#e53935")
)

// styles holds the console styles.
type styles struct {
	Title   lipgloss.Style
	Layer   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}

func newStyles() styles {
	return styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
		Layer:   lipgloss.NewStyle().Bold(true).Foreground(colorInfo).Width(11),
		Label:   lipgloss.NewStyle().Foreground(colorMuted),
		Value:   lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(colorMuted),
		Warning: lipgloss.NewStyle().Foreground(colorWarn),
		Error:   lipgloss.NewStyle().Foreground(colorError),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1),
	}
}

var st = newStyles()

// abbreviate shortens a candidate's text to n runes.
func abbreviate(c types.Candidate, n int) string {
	s := c.String()
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func joinCandidates(cs []types.Candidate) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = abbreviate(c, 40)
	}
	return strings.Join(parts, ", ")
}

// renderCrystallization shows one round layer by layer.
func renderCrystallization(obs *core.Observation) string {
	var b strings.Builder
	rec := obs.Trace
	indent := strings.Repeat(" ", 11)

	fmt.Fprintf(&b, "%s\n\n", st.Title.Render(fmt.Sprintf("Crystallization - round %d", obs.Cycle)))
	if rec == nil {
		b.WriteString(st.Muted.Render("(no trace)") + "\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%s%d candidates enter as potential\n", st.Layer.Render("[VOID]"), len(rec.Domain))
	if len(rec.Domain) > 0 {
		fmt.Fprintf(&b, "%s%s\n", indent, st.Muted.Render(joinCandidates(rec.Domain)))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s%d constraints active\n", st.Layer.Render("[MENTAL]"), len(obs.Predicates))
	for _, d := range obs.Predicates {
		fmt.Fprintf(&b, "%s- %s (%s, from %s)\n", indent, d.Name, d.Layer, d.Source)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%sNarrowing:\n", st.Layer.Render("[ASTRAL]"))
	for _, step := range rec.Narrowing {
		tag := "(all survive)"
		if n := step.Eliminated(); n > 0 {
			tag = fmt.Sprintf("(%d eliminated)", n)
		}
		arrow := fmt.Sprintf("%d -> %d", step.Before, step.After)
		fmt.Fprintf(&b, "%s%-20s %-10s %s\n", indent, step.Predicate, arrow, st.Muted.Render(tag))
	}
	fmt.Fprintf(&b, "%sSurvivors: %d\n", indent, len(rec.Survivors))
	if len(rec.Survivors) > 0 {
		fmt.Fprintf(&b, "%s%s\n", indent, joinCandidates(rec.Survivors))
	}
	b.WriteString("\n")

	if rec.Result.IsNone() {
		fmt.Fprintf(&b, "%s%s\n", st.Layer.Render("[ETHERIC]"), st.Warning.Render("nothing binds; state unchanged"))
	} else {
		fmt.Fprintf(&b, "%sbound %s\n", st.Layer.Render("[ETHERIC]"), st.Value.Render(obs.State.String()))
	}
	fmt.Fprintf(&b, "%s%s\n", st.Layer.Render("[PHYSICAL]"), st.Value.Render(rec.Result.String()))
	return b.String()
}

// renderSelf shows the engine's self-description.
func renderSelf(d core.SelfDescription) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", st.Title.Render(fmt.Sprintf("CHRYSALIS - Cycle %d", d.CycleCount)))
	fmt.Fprintf(&b, "%s %s\n", st.Label.Render("Engine:"), d.EngineID)
	fmt.Fprintf(&b, "%s %s\n\n", st.Label.Render("Born:  "), d.Birth.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "%s %d\n", st.Label.Render("Constraints:"), d.ConstraintCount)
	fmt.Fprintf(&b, "%s %s\n\n", st.Label.Render("State:"), st.Value.Render(d.State.String()))

	b.WriteString(st.Label.Render("Layer Census:") + "\n")
	for _, layer := range core.Layers {
		count := d.LayerCensus[layer]
		filled := count
		if filled > 10 {
			filled = 10
		}
		bar := strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
		fmt.Fprintf(&b, "  %-10s [%s] %d\n", layer, bar, count)
	}
	b.WriteString("\n")

	b.WriteString(st.Label.Render("Declared Constraints:") + "\n")
	if len(d.Constraints) == 0 {
		b.WriteString("  " + st.Muted.Render("(none)") + "\n")
	}
	for _, c := range d.Constraints {
		fmt.Fprintf(&b, "  [%-8s] %s (from: %s, cycle: %d)\n", c.Layer, c.Name, c.Source, c.DeclaredAt)
	}

	if len(d.VocabularyExpansions) > 0 {
		keys := make([]string, 0, len(d.VocabularyExpansions))
		for k := range d.VocabularyExpansions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, "\n%s %s\n", st.Label.Render("Vocabulary:"), strings.Join(keys, ", "))
	}
	fmt.Fprintf(&b, "\n%s %d\n", st.Label.Render("History Depth:"), d.HistoryLength)
	return st.Box.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

// renderTrajectory summarizes an evolve run one line per round.
func renderTrajectory(t *core.Trajectory) string {
	var b strings.Builder
	b.WriteString(st.Title.Render(fmt.Sprintf("Evolution - %d rounds", len(t.Observations))) + "\n\n")

	reflections := t.ReflectionNames()
	perturbed := make(map[int]string, len(t.Perturbations))
	for _, p := range t.Perturbations {
		perturbed[p.Round] = p.Key
	}

	for i, obs := range t.Observations {
		line := fmt.Sprintf("  %3d  domain=%-4d %s", obs.Cycle, t.DomainSizes[i], abbreviate(t.Results[i], 48))
		if name := reflections[i]; name != "" {
			line += "  " + st.Warning.Render("+"+name)
		}
		if key, ok := perturbed[i]; ok {
			line += "  " + st.Muted.Render("~"+key)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	if t.FixedPoint {
		fmt.Fprintf(&b, "%s first stall at step %d\n", st.Label.Render("Fixed point:"), t.FixedAt)
	} else {
		fmt.Fprintf(&b, "%s none\n", st.Label.Render("Fixed point:"))
	}
	return b.String()
}
