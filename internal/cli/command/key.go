package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/stablemem/internal/cli/output"
	"github.com/yndnr/stablemem/pkg/token"
)

type generatedKey struct {
	Key         string `json:"key" yaml:"key"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
}

// KeyCommand returns the key command.
func KeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "key",
		Usage: "API key helpers",
		Subcommands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Generate a random API key for server config",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "length",
						Usage: "Random part length",
						Value: token.DefaultLength,
					},
				},
				Action: keyGenerateAction,
			},
		},
	}
}

func keyGenerateAction(c *cli.Context) error {
	key, err := token.GenerateWithLength(c.Int("length"))
	if err != nil {
		return err
	}
	res := generatedKey{Key: key, Fingerprint: token.Fingerprint(key)}

	table := &output.Table{Headers: []string{"KEY", "FINGERPRINT"}}
	table.AddRow(res.Key, res.Fingerprint)
	return render(c, res, table)
}
