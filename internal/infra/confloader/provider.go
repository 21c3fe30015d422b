package confloader

import (
	"errors"
	"flag"

	"github.com/knadh/koanf/maps"
)

// overrideProvider feeds flat dotted keys to koanf as a nested map.
type overrideProvider map[string]any

func (p overrideProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("override provider does not support ReadBytes")
}

func (p overrideProvider) Read() (map[string]any, error) {
	flat := make(map[string]any, len(p))
	for k, v := range p {
		flat[k] = v
	}
	return maps.Unflatten(flat, "."), nil
}

// FlagOverrides returns the config values of the flags set on the command
// line. keys maps a flag name to its config key. Flags left at their
// default are skipped so they do not mask the file or the environment.
func FlagOverrides(fs *flag.FlagSet, keys map[string]string) map[string]any {
	out := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		key, ok := keys[f.Name]
		if !ok {
			return
		}
		if g, ok := f.Value.(flag.Getter); ok {
			out[key] = g.Get()
			return
		}
		out[key] = f.Value.String()
	})
	return out
}
