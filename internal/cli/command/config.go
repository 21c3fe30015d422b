package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/stablemem/internal/cli/connection"
	"github.com/yndnr/stablemem/internal/cli/output"
)

type configView struct {
	Path     string                   `json:"path" yaml:"path"`
	Output   string                   `json:"output" yaml:"output"`
	Current  string                   `json:"current,omitempty" yaml:"current,omitempty"`
	Profiles []connection.ProfileInfo `json:"profiles" yaml:"profiles"`
}

// ConfigCommand returns the config command.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change the CLI configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the configuration with keys fingerprinted",
				Action: configShowAction,
			},
			{
				Name:  "path",
				Usage: "Print the configuration file path",
				Action: func(c *cli.Context) error {
					path, _ := c.App.Metadata[metaConfigPath].(string)
					fmt.Fprintln(c.App.Writer, path)
					return nil
				},
			},
			{
				Name:      "set",
				Usage:     "Set a configuration value",
				ArgsUsage: "KEY VALUE",
				Action:    configSetAction,
			},
		},
	}
}

func configShowAction(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return fmt.Errorf("connection manager not initialized")
	}
	profiles, err := mgr.Profiles()
	if err != nil {
		return err
	}
	path, _ := c.App.Metadata[metaConfigPath].(string)
	cfg := mgr.Config()
	view := configView{Path: path, Output: cfg.Output, Current: cfg.Current, Profiles: profiles}

	table := &output.Table{Headers: []string{"KEY", "VALUE"}}
	table.AddRow("path", view.Path)
	table.AddRow("output", view.Output)
	table.AddRow("current", view.Current)
	for _, p := range profiles {
		table.AddRow("profile."+p.Name, p.Server)
	}
	return render(c, view, table)
}

func configSetAction(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return fmt.Errorf("connection manager not initialized")
	}
	if c.NArg() != 2 {
		return fmt.Errorf("usage: config set KEY VALUE")
	}
	key, value := c.Args().Get(0), c.Args().Get(1)

	switch key {
	case "output":
		format, err := output.ParseFormat(value)
		if err != nil {
			return err
		}
		mgr.Config().Output = string(format)
	default:
		return fmt.Errorf("unknown config key %q (supported: output)", key)
	}

	if err := saveConfig(c); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s = %s\n", key, value)
	return nil
}
