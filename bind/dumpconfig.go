package bind

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"storybind/config"
	"storybind/state"
)

// DumpConfig is the action of dumpconfig subcommand.
func DumpConfig(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}
	return dumpConfig(env, cmd.Args().Get(0), cmd.Bool("default"))
}

// dumpConfig writes either embedded default or active configuration to
// fname, or to stdout when fname is empty.
func dumpConfig(env *state.LocalEnv, fname string, defaults bool) error {
	var (
		data  []byte
		err   error
		which = "actual"
	)
	if defaults {
		which = "default"
		data, err = config.Prepare()
	} else {
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	if len(fname) == 0 {
		env.Log.Info("Writing configuration", zap.String("state", which), zap.String("file", "STDOUT"))
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("unable to write configuration: %w", err)
		}
		return nil
	}

	env.Log.Info("Writing configuration", zap.String("state", which), zap.String("file", fname))
	if err := os.WriteFile(fname, data, 0644); err != nil {
		return fmt.Errorf("unable to write configuration to '%s': %w", fname, err)
	}
	return nil
}
