package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/recsync/internal/ir"
)

// WriteSummary renders parsed instructions as an operator-readable text
// summary, one block per instruction in sequence order.
func WriteSummary(w io.Writer, results []*Result) error {
	var b strings.Builder
	if len(results) == 0 {
		b.WriteString("No instructions configured.\n")
	}
	for i, r := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		ins := r.Instruction
		state := "disabled"
		if ins.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(&b, "Instruction #%d (%s)\n", ins.Sequence, state)
		summaryLine(&b, "triggers", strings.Join(ins.TriggerForms, ", "))
		if ins.TriggerCondition != "" {
			summaryLine(&b, "condition", ins.TriggerCondition)
		}
		summaryLine(&b, "destination", destinationSummary(ins))
		summaryLine(&b, "record", fmt.Sprintf("%s (%s)", ins.RecordIDField, ins.RecordMatch))
		summaryLine(&b, "access group", accessGroupSummary(ins))

		b.WriteString("  copy:\n")
		for _, p := range ins.CopyFields {
			fmt.Fprintf(&b, "    %s => %s", p.SourceField, p.Target.Name())
			if p.OnlyIfEmpty {
				b.WriteString(" (only if empty)")
			}
			b.WriteByte('\n')
		}
		summaryIssues(&b, "errors", r.Errors())
		summaryIssues(&b, "warnings", r.Warnings())
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func summaryLine(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "  %-14s%s\n", label+":", value)
}

func summaryIssues(b *strings.Builder, label string, issues []Issue) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s:\n", label)
	for _, is := range issues {
		fmt.Fprintf(b, "    %s\n", is.Error())
	}
}

func destinationSummary(ins *ir.Instruction) string {
	project := ins.DestinationProject
	if project == "" {
		project = "(none)"
	}
	switch ins.EventSource {
	case ir.EventLiteral:
		return fmt.Sprintf("project %s, event %s", project, ins.DestinationEvent)
	case ir.EventFieldLookup:
		return fmt.Sprintf("project %s, event from field %s", project, ins.DestinationEvent)
	default:
		return fmt.Sprintf("project %s, first event", project)
	}
}

func accessGroupSummary(ins *ir.Instruction) string {
	if ins.DAGOption != ir.DAGMapDeprecated || len(ins.DAGMap) == 0 {
		return ins.DAGOption.String()
	}
	pairs := make([]string, len(ins.DAGMap))
	for i, m := range ins.DAGMap {
		pairs[i] = m.SourceGroup + " => " + m.DestGroup
	}
	return fmt.Sprintf("%s (%s)", ins.DAGOption, strings.Join(pairs, ", "))
}
