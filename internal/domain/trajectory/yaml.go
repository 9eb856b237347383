package trajectory

import (
	"fmt"
	"strconv"
	"strings"
)

// This file implements a minimal, deterministic YAML dialect for
// trajectories (spec.md §4.1). It is intentionally not a general YAML
// parser: it understands exactly the fixed indentation shape that
// SerializeTrajectoryYAML produces, so that serialize∘parse is the
// identity transform on any trajectory whose strings are round-trippable.
// A generic encoder cannot guarantee that exact quoting behavior, which is
// why this dialect is hand-written rather than built on a YAML library.

const (
	stepIndent     = 2
	fieldIndent    = 4
	listItemIndent = 6
)

// ParseTrajectoryYAML parses the dialect into a Trajectory. It never
// fails: malformed input degrades to an empty or partial trajectory, and
// steps with an empty identifier are dropped.
func ParseTrajectoryYAML(data []byte) Trajectory {
	lines := splitLines(string(data))
	var traj Trajectory
	i := 0
	for i < len(lines) {
		indent, content := measure(lines[i])
		if content == "" {
			i++
			continue
		}
		if indent != 0 {
			i++
			continue
		}
		key, value, ok := splitKV(content)
		if !ok {
			i++
			continue
		}
		switch key {
		case "name":
			traj.Name = unquoteScalar(value)
			i++
		case "description":
			traj.Description = unquoteScalar(value)
			i++
		case "steps":
			steps, consumed := parseSteps(lines, i+1)
			traj.Steps = steps
			i += 1 + consumed
		default:
			i++
		}
	}

	filtered := traj.Steps[:0]
	for _, s := range traj.Steps {
		if s.ID == "" {
			continue
		}
		filtered = append(filtered, s)
	}
	traj.Steps = filtered
	return traj
}

// parseSteps consumes step-list lines starting at idx (all at stepIndent or
// deeper) and returns the parsed steps plus the number of lines consumed.
func parseSteps(lines []string, idx int) ([]Step, int) {
	var steps []Step
	var cur *Step
	var lastListKey string
	start := idx
	i := idx

	for i < len(lines) {
		indent, content := measure(lines[i])
		if content == "" {
			i++
			continue
		}
		if indent < stepIndent {
			break
		}

		if indent == stepIndent {
			if !strings.HasPrefix(content, "- ") && content != "-" {
				break
			}
			if cur != nil {
				steps = append(steps, *cur)
			}
			cur = &Step{}
			lastListKey = ""
			rest := strings.TrimPrefix(content, "-")
			rest = strings.TrimSpace(rest)
			if rest != "" {
				applyStepField(cur, rest, &lastListKey)
			}
			i++
			continue
		}

		if cur == nil {
			i++
			continue
		}

		if indent == fieldIndent {
			if strings.HasPrefix(content, "- ") {
				appendListValue(cur, lastListKey, unquoteScalar(strings.TrimPrefix(content, "- ")))
				i++
				continue
			}
			if content == "measurement:" {
				m, consumed := parseMeasurement(lines, i+1)
				cur.Measurement = m
				i += 1 + consumed
				lastListKey = ""
				continue
			}
			applyStepField(cur, content, &lastListKey)
			i++
			continue
		}

		if indent == listItemIndent && strings.HasPrefix(content, "- ") {
			appendListValue(cur, lastListKey, unquoteScalar(strings.TrimPrefix(content, "- ")))
			i++
			continue
		}

		// Unexpected deeper indent: skip defensively.
		i++
	}

	if cur != nil {
		steps = append(steps, *cur)
	}
	return steps, i - start
}

func parseMeasurement(lines []string, idx int) (*Measurement, int) {
	m := &Measurement{}
	haveCmd, haveTarget, haveDirection := false, false, false
	start := idx
	i := idx
	for i < len(lines) {
		indent, content := measure(lines[i])
		if content == "" {
			i++
			continue
		}
		if indent < listItemIndent {
			break
		}
		key, value, ok := splitKV(content)
		if !ok {
			i++
			continue
		}
		switch key {
		case "cmd":
			m.Cmd = unquoteScalar(value)
			haveCmd = true
		case "target":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				m.Target = f
				haveTarget = true
			}
		case "direction":
			d := Direction(unquoteScalar(value))
			if d == DirectionUp || d == DirectionDown {
				m.Direction = d
				haveDirection = true
			}
		}
		i++
	}
	if !haveCmd || !haveTarget || !haveDirection {
		return nil, i - start
	}
	return m, i - start
}

// applyStepField assigns a single "key: value" line to the step under
// construction, tracking lastListKey so following "- item" lines know which
// list field they extend.
func applyStepField(step *Step, content string, lastListKey *string) {
	key, value, ok := splitKV(content)
	if !ok {
		return
	}
	switch key {
	case "id":
		step.ID = unquoteScalar(value)
		*lastListKey = ""
	case "title":
		step.Title = unquoteScalar(value)
		*lastListKey = ""
	case "description":
		step.Description = unquoteScalar(value)
		*lastListKey = ""
	case "scope":
		step.Scope = unquoteScalar(value)
		*lastListKey = ""
	case "categories":
		step.Categories = parseInlineOrBlockList(value)
		*lastListKey = "categories"
	case "acceptance_criteria":
		step.AcceptanceCriteria = parseInlineOrBlockList(value)
		*lastListKey = "acceptance_criteria"
	case "verification_commands":
		step.VerificationCommands = parseInlineOrBlockList(value)
		*lastListKey = "verification_commands"
	case "depends_on":
		step.DependsOn = parseInlineOrBlockList(value)
		*lastListKey = "depends_on"
	case "max_retries":
		*lastListKey = ""
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return
		}
		step.MaxRetries = &n
	case "priority":
		*lastListKey = ""
		n, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		step.Priority = &n
	default:
		*lastListKey = ""
	}
}

func appendListValue(step *Step, key, value string) {
	switch key {
	case "categories":
		step.Categories = append(step.Categories, value)
	case "acceptance_criteria":
		step.AcceptanceCriteria = append(step.AcceptanceCriteria, value)
	case "verification_commands":
		step.VerificationCommands = append(step.VerificationCommands, value)
	case "depends_on":
		step.DependsOn = append(step.DependsOn, value)
	}
}

// parseInlineOrBlockList handles `key: [a, b]`, `key: []`, and the
// block-list case where value is empty and items follow as nested lines
// (handled by the caller via lastListKey).
func parseInlineOrBlockList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		inner := strings.TrimSpace(value[1 : len(value)-1])
		if inner == "" {
			return []string{}
		}
		parts := strings.Split(inner, ",")
		items := make([]string, 0, len(parts))
		for _, p := range parts {
			items = append(items, unquoteScalar(strings.TrimSpace(p)))
		}
		return items
	}
	return []string{}
}

func measure(line string) (int, string) {
	trimmed := strings.TrimRight(line, " \t\r")
	stripped := strings.TrimLeft(trimmed, " ")
	indent := len(trimmed) - len(stripped)
	if idx := commentIndex(stripped); idx >= 0 {
		stripped = strings.TrimRight(stripped[:idx], " ")
	}
	return indent, stripped
}

// commentIndex finds an unquoted '#' marking a trailing comment.
func commentIndex(s string) int {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote && (i == 0 || s[i-1] == ' ') {
				return i
			}
		}
	}
	return -1
}

func splitKV(content string) (string, string, bool) {
	inQuote := false
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '"':
			inQuote = !inQuote
		case ':':
			if !inQuote {
				key := strings.TrimSpace(content[:i])
				value := strings.TrimSpace(content[i+1:])
				if key == "" {
					return "", "", false
				}
				return key, value, true
			}
		}
	}
	return "", "", false
}

func unquoteScalar(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		inner := s[1 : len(s)-1]
		var b strings.Builder
		for i := 0; i < len(inner); i++ {
			if inner[i] == '\\' && i+1 < len(inner) {
				i++
				switch inner[i] {
				case 'n':
					b.WriteByte('\n')
				case 't':
					b.WriteByte('\t')
				default:
					b.WriteByte(inner[i])
				}
				continue
			}
			b.WriteByte(inner[i])
		}
		return b.String()
	}
	return s
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(s, "\n")
}

// needsQuote reports whether s must be quoted per spec.md §4.1: strings
// containing ':', '#', a leading '-', or leading whitespace.
func needsQuote(s string) bool {
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, " ") || strings.HasPrefix(s, "\t") {
		return true
	}
	if strings.HasPrefix(s, "-") {
		return true
	}
	if strings.ContainsAny(s, ":#") {
		return true
	}
	return false
}

func quoteScalar(s string) string {
	if !needsQuote(s) {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(s[i])
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(s[i])
		}
	}
	b.WriteByte('"')
	return b.String()
}

func inlineList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = quoteScalar(it)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// SerializeTrajectoryYAML renders a Trajectory in the dialect parsed by
// ParseTrajectoryYAML. The output is deterministic: field order is fixed
// and list-valued fields always use the inline bracket form except
// acceptance_criteria and verification_commands, which use block form for
// readability in generated trajectory files.
func SerializeTrajectoryYAML(t Trajectory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\n", quoteScalar(t.Name))
	fmt.Fprintf(&b, "description: %s\n", quoteScalar(t.Description))
	b.WriteString("steps:\n")
	for _, step := range t.Steps {
		writeStep(&b, step)
	}
	return b.String()
}

func writeStep(b *strings.Builder, step Step) {
	fmt.Fprintf(b, "  - id: %s\n", quoteScalar(step.ID))
	fmt.Fprintf(b, "    title: %s\n", quoteScalar(step.Title))
	if step.Description != "" {
		fmt.Fprintf(b, "    description: %s\n", quoteScalar(step.Description))
	}
	if step.Scope != "" {
		fmt.Fprintf(b, "    scope: %s\n", quoteScalar(step.Scope))
	}
	fmt.Fprintf(b, "    categories: %s\n", inlineList(step.Categories))

	b.WriteString("    acceptance_criteria:\n")
	for _, c := range step.AcceptanceCriteria {
		fmt.Fprintf(b, "      - %s\n", quoteScalar(c))
	}

	b.WriteString("    verification_commands:\n")
	for _, c := range step.VerificationCommands {
		fmt.Fprintf(b, "      - %s\n", quoteScalar(c))
	}

	fmt.Fprintf(b, "    depends_on: %s\n", inlineList(step.DependsOn))

	if step.MaxRetries != nil {
		fmt.Fprintf(b, "    max_retries: %d\n", *step.MaxRetries)
	}
	if step.Priority != nil {
		fmt.Fprintf(b, "    priority: %d\n", *step.Priority)
	}
	if step.Measurement != nil {
		b.WriteString("    measurement:\n")
		fmt.Fprintf(b, "      cmd: %s\n", quoteScalar(step.Measurement.Cmd))
		fmt.Fprintf(b, "      target: %v\n", step.Measurement.Target)
		fmt.Fprintf(b, "      direction: %s\n", step.Measurement.Direction)
	}
}
