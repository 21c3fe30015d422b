package command

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/stablemem/internal/cli/output"
)

// SnapshotCommand returns the snapshot command.
func SnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:    "snapshot",
		Aliases: []string{"snap"},
		Usage:   "Save and load the stable memory snapshot",
		Subcommands: []*cli.Command{
			{
				Name:   "save",
				Usage:  "Write the blob store into stable memory",
				Action: snapshotCallAction("/v1/snapshots/save"),
			},
			{
				Name:   "load",
				Usage:  "Replace the blob store with the stable memory snapshot",
				Action: snapshotCallAction("/v1/snapshots/load"),
			},
			{
				Name:   "archives",
				Usage:  "List archived snapshots (admin)",
				Action: snapshotArchivesAction,
			},
			{
				Name:   "restore",
				Usage:  "Restore the newest archived snapshot (admin)",
				Action: snapshotCallAction("/admin/v1/snapshots/restore"),
			},
		},
	}
}

func snapshotCallAction(path string) cli.ActionFunc {
	return func(c *cli.Context) error {
		client, err := EnsureConnected(c)
		if err != nil {
			return err
		}
		var res snapshotResult
		err = withSpinner(c, c.Command.Name, func() error {
			return client.Post(c.Context, path, nil, &res)
		})
		if err != nil {
			return err
		}
		if res.Snapshot == nil {
			return fmt.Errorf("server returned no snapshot metadata")
		}
		return render(c, res.Snapshot, snapshotTable(res.Snapshot))
	}
}

func snapshotTable(s *snapshotInfo) *output.Table {
	table := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	table.AddRow("Version", fmt.Sprint(s.Version))
	table.AddRow("Created", time.UnixMilli(s.CreatedAt).UTC().Format(time.RFC3339))
	table.AddRow("Entries", humanize.Comma(int64(s.EntryCount)))
	table.AddRow("Size", humanize.IBytes(s.Size))
	table.AddRow("Pages", fmt.Sprint(s.Pages))
	table.AddRow("Checksum", s.Checksum)
	return table
}

func snapshotArchivesAction(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	var res archiveList
	if err := client.Get(c.Context, "/admin/v1/snapshots/archives", &res); err != nil {
		return err
	}

	table := &output.Table{Headers: []string{"ID", "SIZE", "PATH"}}
	for _, a := range res.Archives {
		table.AddRow(a.ID, humanize.IBytes(uint64(a.Size)), a.Path)
	}
	return render(c, res.Archives, table)
}
