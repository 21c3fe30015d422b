package command

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/stablemem/internal/cli/repl"
)

// ShellCommand returns the interactive shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:   "shell",
		Usage:  "Run commands interactively",
		Action: shellAction,
	}
}

func shellAction(c *cli.Context) error {
	prefix := shellArgs(c)
	exec := func(ctx context.Context, args []string) error {
		if args[0] == "shell" {
			return fmt.Errorf("already in a shell")
		}
		app := App()
		app.Reader = c.App.Reader
		app.Writer = c.App.Writer
		app.ErrWriter = c.App.ErrWriter
		app.ExitErrHandler = func(*cli.Context, error) {}
		return app.RunContext(ctx, append(append([]string{}, prefix...), args...))
	}

	fmt.Fprintln(c.App.Writer, "stablemem shell. Type help for commands, exit to quit.")
	path, _ := c.App.Metadata[metaConfigPath].(string)
	r := repl.New(exec,
		repl.WithIO(c.App.Reader, c.App.Writer),
		repl.WithCommands(commandNames(c.App.Commands)),
		repl.WithHistory(repl.NewHistory(filepath.Join(filepath.Dir(path), "history"), 0)),
	)
	return r.Run(c.Context)
}

// shellArgs rebuilds the global flags so every shell line sees them.
func shellArgs(c *cli.Context) []string {
	args := []string{c.App.Name}
	for _, name := range forwardedFlags {
		if c.IsSet(name) {
			args = append(args, "--"+name, c.String(name))
		}
	}
	for _, name := range []string{"insecure", "verbose"} {
		if c.Bool(name) {
			args = append(args, "--"+name)
		}
	}
	return args
}

// commandNames lists commands and their subcommands as space separated
// paths.
func commandNames(cmds []*cli.Command) []string {
	var names []string
	for _, cmd := range cmds {
		for _, name := range cmd.Names() {
			names = append(names, name)
			for _, sub := range cmd.Subcommands {
				names = append(names, name+" "+sub.Name)
			}
		}
	}
	return names
}
