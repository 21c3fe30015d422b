package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/stablemem/internal/cli/output"
)

// ConnectCommand returns the connect command.
func ConnectCommand() *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Check a server and save it as the current profile",
		ArgsUsage: "[SERVER]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Profile name",
				Value:   "default",
			},
		},
		Action: connectAction,
	}
}

func connectAction(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return fmt.Errorf("connection manager not initialized")
	}

	override := flagTarget(c)
	if c.Args().Present() {
		override.Server = c.Args().First()
	}
	// An explicit server does not inherit the current profile.
	target := override
	if target.Server == "" {
		var err error
		if target, err = mgr.Resolve(override); err != nil {
			return err
		}
	}

	name := c.String("name")
	if err := mgr.Connect(c.Context, name, target); err != nil {
		return err
	}
	if err := saveConfig(c); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Connected to %s (profile %q)\n", mgr.Config().Profiles[name].Server, name)
	return nil
}

// DisconnectCommand returns the disconnect command.
func DisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Clear the current profile",
		Action: func(c *cli.Context) error {
			mgr := GetConnectionManager(c)
			if mgr == nil {
				return fmt.Errorf("connection manager not initialized")
			}
			if !mgr.Disconnect() {
				fmt.Fprintln(c.App.Writer, "Not connected")
				return nil
			}
			if err := saveConfig(c); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "Disconnected")
			return nil
		},
	}
}

// ProfileCommand returns the profile command.
func ProfileCommand() *cli.Command {
	return &cli.Command{
		Name:    "profile",
		Aliases: []string{"profiles"},
		Usage:   "Manage saved server profiles",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List saved profiles",
				Action:  profileListAction,
			},
			{
				Name:      "use",
				Usage:     "Switch the current profile",
				ArgsUsage: "NAME",
				Action: func(c *cli.Context) error {
					return profileChange(c, "Switched to", func(name string) error {
						return GetConnectionManager(c).Use(name)
					})
				},
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove a saved profile",
				ArgsUsage: "NAME",
				Action: func(c *cli.Context) error {
					return profileChange(c, "Removed", func(name string) error {
						return GetConnectionManager(c).Remove(name)
					})
				},
			},
		},
	}
}

func profileListAction(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return fmt.Errorf("connection manager not initialized")
	}
	profiles, err := mgr.Profiles()
	if err != nil {
		return err
	}

	table := &output.Table{Headers: []string{"", "NAME", "SERVER", "KEY"}}
	for _, p := range profiles {
		mark := ""
		if p.Current {
			mark = "*"
		}
		table.AddRow(mark, p.Name, p.Server, p.KeyFingerprint)
	}
	return render(c, profiles, table)
}

func profileChange(c *cli.Context, verb string, fn func(name string) error) error {
	if GetConnectionManager(c) == nil {
		return fmt.Errorf("connection manager not initialized")
	}
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("profile name required")
	}
	if err := fn(name); err != nil {
		return err
	}
	if err := saveConfig(c); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s profile %q\n", verb, name)
	return nil
}
