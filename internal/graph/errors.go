package graph

import (
	"fmt"
	"strings"
)

// CircularDependencyError reports a dependency cycle between named components.
type CircularDependencyError struct {
	Node string
	Path []string
}

func (e CircularDependencyError) Error() string {
	var b strings.Builder
	b.WriteString("circular dependency detected:\n\n")

	if len(e.Path) == 0 {
		b.WriteString(fmt.Sprintf("    %s\n", e.Node))
		b.WriteString("      ↓\n")
		b.WriteString(fmt.Sprintf("    %s (cycle)\n", e.Node))
	} else {
		// Build a visual representation of the cycle
		for i, node := range e.Path {
			b.WriteString(fmt.Sprintf("    %s\n", node))
			if i < len(e.Path)-1 {
				b.WriteString("      ↓\n")
			}
		}
		// Show the cycle back to the first node
		b.WriteString("      ↓\n")
		b.WriteString(fmt.Sprintf("    %s (cycle)\n", e.Path[0]))
	}

	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  • Make one side of the relationship optional\n")
	b.WriteString("  • Use a factory for lazy initialization\n")
	b.WriteString("  • Restructure to remove the circular relationship\n")

	return b.String()
}
