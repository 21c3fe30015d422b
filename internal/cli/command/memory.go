package command

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/stablemem/internal/cli/connection"
	"github.com/yndnr/stablemem/internal/cli/output"
)

// MemoryCommand returns the memory command.
func MemoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect working and stable memory",
		Subcommands: []*cli.Command{
			{
				Name:  "header",
				Usage: "Show page and byte usage",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "trusted",
						Usage: "Read the header through a committed call",
					},
				},
				Action: memoryHeaderAction,
			},
		},
	}
}

func memoryHeaderAction(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	mh, err := fetchHeader(c, client, c.Bool("trusted"))
	if err != nil {
		return err
	}

	table := &output.Table{Headers: []string{"TIER", "PAGES", "SIZE"}}
	table.AddRow("heap", fmt.Sprint(mh.HeapPages), humanize.IBytes(mh.HeapSize))
	table.AddRow("stable", fmt.Sprint(mh.StablePages), humanize.IBytes(mh.StableSize))
	table.AddRow("all", "", humanize.IBytes(mh.All))
	return render(c, mh, table)
}

func fetchHeader(c *cli.Context, client *connection.HTTPClient, trusted bool) (*memoryHeader, error) {
	var mh memoryHeader
	var err error
	if trusted {
		err = client.Post(c.Context, "/v1/memory/header/trusted", nil, &mh)
	} else {
		err = client.Get(c.Context, "/v1/memory/header", &mh)
	}
	if err != nil {
		return nil, err
	}
	return &mh, nil
}
