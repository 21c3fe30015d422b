package command

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/stablemem/internal/cli/output"
)

// SystemCommand returns the system command.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server status and health",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show engine and memory status (admin)",
				Action: systemStatusAction,
			},
			{
				Name:   "health",
				Usage:  "Check server liveness",
				Action: healthCheckAction("/health"),
			},
			{
				Name:   "ready",
				Usage:  "Check server readiness",
				Action: healthCheckAction("/ready"),
			},
		},
	}
}

func systemStatusAction(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	var st statusSummary
	if err := client.Get(c.Context, "/admin/v1/status/summary", &st); err != nil {
		return err
	}

	table := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	table.AddRow("Status", st.Status)
	table.AddRow("Version", st.Build.Version)
	table.AddRow("Backend", st.Engine.Backend)
	table.AddRow("Entries", humanize.Comma(int64(st.Engine.Entries)))
	table.AddRow("Blob bytes", humanize.IBytes(st.Engine.Bytes))
	table.AddRow("Heap", fmt.Sprintf("%d pages (%s)", st.Memory.HeapPages, humanize.IBytes(st.Memory.HeapSize)))
	table.AddRow("Stable", fmt.Sprintf("%d pages (%s)", st.Memory.StablePages, humanize.IBytes(st.Memory.StableSize)))
	table.AddRow("Max chunk", fmt.Sprintf("%d pages (%s)", st.Engine.MaxPages, humanize.IBytes(st.Engine.MaxPayload)))
	if st.Engine.LastSave != nil {
		table.AddRow("Last save", humanize.IBytes(st.Engine.LastSave.Size)+" "+st.Engine.LastSave.Checksum)
	}
	if st.Engine.LastLoad != nil {
		table.AddRow("Last load", humanize.IBytes(st.Engine.LastLoad.Size)+" "+st.Engine.LastLoad.Checksum)
	}
	table.AddRow("Time", st.Time)
	return render(c, st, table)
}

func healthCheckAction(path string) cli.ActionFunc {
	return func(c *cli.Context) error {
		client, err := EnsureConnected(c)
		if err != nil {
			return err
		}
		var st healthStatus
		if err := client.Get(c.Context, path, &st); err != nil {
			return err
		}
		table := &output.Table{Headers: []string{"SERVER", "STATUS", "TIME"}}
		table.AddRow(client.Server(), st.Status, st.Time)
		return render(c, st, table)
	}
}
