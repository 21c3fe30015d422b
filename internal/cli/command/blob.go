package command

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/stablemem/internal/cli/output"
)

// BlobCommand returns the blob command.
func BlobCommand() *cli.Command {
	return &cli.Command{
		Name:  "blob",
		Usage: "Work with the keyed blob store",
		Subcommands: []*cli.Command{
			{
				Name:      "push",
				Usage:     "Append a blob and print its key",
				ArgsUsage: "[FILE|-]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "Blob contents as a literal string",
					},
				},
				Action: blobPushAction,
			},
		},
	}
}

func blobPushAction(c *cli.Context) error {
	data, err := readBlob(c)
	if err != nil {
		return err
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	var res pushBlobResult
	if err := client.PostRaw(c.Context, "/v1/blobs", data, &res); err != nil {
		return err
	}

	table := &output.Table{Headers: []string{"KEY", "SIZE"}}
	table.AddRow(fmt.Sprint(res.Key), humanize.IBytes(uint64(res.Size)))
	return render(c, res, table)
}

func readBlob(c *cli.Context) ([]byte, error) {
	if c.IsSet("data") {
		if c.Args().Present() {
			return nil, fmt.Errorf("--data and FILE are mutually exclusive")
		}
		return []byte(c.String("data")), nil
	}

	switch name := c.Args().First(); name {
	case "":
		return nil, fmt.Errorf("blob contents required: pass FILE, - or --data")
	case "-":
		return io.ReadAll(c.App.Reader)
	default:
		return os.ReadFile(name)
	}
}
