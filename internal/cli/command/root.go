package command

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/stablemem/internal/cli/config"
	"github.com/yndnr/stablemem/internal/cli/connection"
	"github.com/yndnr/stablemem/internal/cli/output"
	"github.com/yndnr/stablemem/internal/infra/buildinfo"
)

const (
	metaManager    = "connMgr"
	metaConfigPath = "configPath"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "stablemem-cli",
		Usage:                "stablemem command-line client",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		Commands:             Commands(),
		Metadata:             map[string]any{},
		Before:               initApp,
		EnableBashCompletion: true,
	}
}

// Commands returns every top-level command.
func Commands() []*cli.Command {
	return []*cli.Command{
		ConnectCommand(),
		DisconnectCommand(),
		ProfileCommand(),
		BlobCommand(),
		SnapshotCommand(),
		MemoryCommand(),
		BackupCommand(),
		SystemCommand(),
		ConfigCommand(),
		KeyCommand(),
		ShellCommand(),
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI config file",
			EnvVars: []string{"STABLEMEM_CLI_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Server URL (default: current profile, then " + config.DefaultServer + ")",
			EnvVars: []string{"STABLEMEM_SERVER"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Aliases: []string{"K"},
			Usage:   "API key for authentication",
			EnvVars: []string{"STABLEMEM_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "PEM bundle of extra trusted CAs for https servers",
			EnvVars: []string{"STABLEMEM_CA_FILE"},
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Skip TLS certificate verification",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			EnvVars: []string{"STABLEMEM_OUTPUT"},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
	}
}

// forwardedFlags are the global flags the shell passes on to each line.
var forwardedFlags = []string{"config", "server", "api-key", "ca-file", "output"}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Config   string
	Server   string
	APIKey   string
	CAFile   string
	Insecure bool
	Output   string
	Verbose  bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Config:   c.String("config"),
		Server:   c.String("server"),
		APIKey:   c.String("api-key"),
		CAFile:   c.String("ca-file"),
		Insecure: c.Bool("insecure"),
		Output:   c.String("output"),
		Verbose:  c.Bool("verbose"),
	}
}

func initApp(c *cli.Context) error {
	path := c.String("config")
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	c.App.Metadata[metaConfigPath] = path
	c.App.Metadata[metaManager] = connection.NewManager(cfg, filepath.Dir(path))
	return nil
}

// GetConnectionManager retrieves the connection manager from context.
func GetConnectionManager(c *cli.Context) *connection.Manager {
	if mgr, ok := c.App.Metadata[metaManager].(*connection.Manager); ok {
		return mgr
	}
	return nil
}

// saveConfig persists the manager's configuration.
func saveConfig(c *cli.Context) error {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return fmt.Errorf("connection manager not initialized")
	}
	path, _ := c.App.Metadata[metaConfigPath].(string)
	return config.Save(mgr.Config(), path)
}

// flagTarget builds a target from the global flags only.
func flagTarget(c *cli.Context) connection.Target {
	flags := ParseGlobalFlags(c)
	return connection.Target{
		Server:   flags.Server,
		APIKey:   flags.APIKey,
		CAFile:   flags.CAFile,
		Insecure: flags.Insecure,
	}
}

// EnsureConnected resolves the target server and returns a client for it.
func EnsureConnected(c *cli.Context) (*connection.HTTPClient, error) {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return nil, fmt.Errorf("connection manager not initialized")
	}
	target, err := mgr.Resolve(flagTarget(c))
	if err != nil {
		return nil, err
	}
	if ParseGlobalFlags(c).Verbose {
		fmt.Fprintf(c.App.ErrWriter, "server: %s\n", target.Server)
	}
	return mgr.Client(target)
}

// outputFormat returns the --output flag, falling back to the config file.
func outputFormat(c *cli.Context) (output.Format, error) {
	name := ParseGlobalFlags(c).Output
	if name == "" {
		if mgr := GetConnectionManager(c); mgr != nil {
			name = mgr.Config().Output
		}
	}
	return output.ParseFormat(name)
}

// render writes data in the selected format. In table format, table is
// rendered instead of data when it is non-nil.
func render(c *cli.Context, data any, table *output.Table) error {
	format, err := outputFormat(c)
	if err != nil {
		return err
	}
	if format == output.FormatTable && table != nil {
		return table.Render(c.App.Writer)
	}
	return output.Write(c.App.Writer, format, data)
}

// withSpinner runs fn with a spinner on stderr when stderr is a terminal.
func withSpinner(c *cli.Context, message string, fn func() error) error {
	if !output.IsTerminal(c.App.ErrWriter) {
		return fn()
	}
	s := output.NewSpinner(c.App.ErrWriter, message)
	s.Start()
	err := fn()
	if err != nil {
		s.Fail(message)
	} else {
		s.Stop()
	}
	return err
}
