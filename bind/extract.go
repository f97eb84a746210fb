package bind

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"storybind/archive"
	"storybind/state"
)

// Extract is the action of extract subcommand: unpacks EPUB (or any zip)
// into a directory named after the archive.
func Extract(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("extract")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no archive has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		dst = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	return extract(src, dst, cmd.Bool("overwrite"), log)
}

func extract(src, dst string, overwrite bool, log *zap.Logger) error {
	_, err := os.Stat(dst)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	case !overwrite:
		return fmt.Errorf("destination already exists: %s", dst)
	default:
		log.Warn("Overwriting existing directory", zap.String("dir", dst))
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	}

	if err := archive.Extract(src, dst); err != nil {
		return fmt.Errorf("unable to extract %s: %w", filepath.Base(src), err)
	}
	log.Info("Archive extracted", zap.String("from", src), zap.String("to", dst))
	return nil
}
