// Package view selects and renders tasks for display. Nothing here touches
// the store on disk.
package view

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/amirbrooks/jora/internal/store"
)

const DefaultLimit = 5

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Select keeps OPEN and IN_PROGRESS tasks (all tasks when includeClosed is
// set), orders them by priority, highest first, and returns at most limit of
// them. Equal priorities keep ascending id order. The input is not modified.
func Select(tasks []store.Task, limit int, includeClosed bool) []store.Task {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := make([]store.Task, 0, len(tasks))
	for _, t := range tasks {
		if !includeClosed && !t.Status.Active() {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ParseLimit reads a count argument, falling back to DefaultLimit.
func ParseLimit(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return DefaultLimit
	}
	return n
}

func Line(t store.Task) string {
	return fmt.Sprintf("#%d [%d] %-11s %s", t.ID, t.Priority, t.Status, title(t.Title))
}

func Detail(t store.Task) string {
	var b strings.Builder
	b.WriteString(title(t.Title) + "\n")
	b.WriteString(fmt.Sprintf("ID: %d\n", t.ID))
	b.WriteString(fmt.Sprintf("Priority: %d, Status: %s\n", t.Priority, t.Status))
	if strings.TrimSpace(t.Description) != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(t.Description, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func title(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(untitled)"
	}
	return s
}

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (use text|json|yaml)", s)
	}
}

// Encode writes v as JSON or YAML. Text output is rendered by the caller.
func Encode(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("encode: unsupported format %q", format)
	}
}
