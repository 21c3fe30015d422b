package repl

import (
	"sort"
	"strings"
)

// Completer matches input against known command names. Names may contain
// subcommands separated by spaces, such as "snapshot save".
type Completer struct {
	commands []string
	top      map[string]bool
}

// NewCompleter creates a completer over commands. An empty list accepts
// every command.
func NewCompleter(commands []string) *Completer {
	c := &Completer{top: make(map[string]bool)}
	for _, cmd := range commands {
		fields := strings.Fields(cmd)
		if len(fields) == 0 {
			continue
		}
		c.commands = append(c.commands, strings.Join(fields, " "))
		c.top[fields[0]] = true
	}
	sort.Strings(c.commands)
	return c
}

// Complete returns the commands starting with prefix, in order.
func (c *Completer) Complete(prefix string) []string {
	var out []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			out = append(out, cmd)
		}
	}
	return out
}

// Known reports whether name is a top-level command.
func (c *Completer) Known(name string) bool {
	return len(c.top) == 0 || c.top[name]
}

// Suggest returns top-level commands sharing the first letter of name.
func (c *Completer) Suggest(name string) []string {
	if name == "" {
		return nil
	}
	var out []string
	for _, cmd := range c.Complete(name[:1]) {
		if !strings.Contains(cmd, " ") {
			out = append(out, cmd)
		}
	}
	return out
}
