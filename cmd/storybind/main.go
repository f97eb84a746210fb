package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"storybind/bind"
	"storybind/config"
	"storybind/misc"
	"storybind/state"
)

// initializeAppContext loads configuration and sets up logging and debug
// report once command line has been parsed.
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.NArg() == 0 {
		return ctx, nil
	}

	env := state.EnvFromContext(ctx)
	configFile := cmd.String("config")

	var err error
	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		if err := prepareReport(env, configFile); err != nil {
			return ctx, err
		}
	}
	if env.Log, err = env.Cfg.Logging.Prepare(env.Rpt); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Program started",
		zap.Strings("args", os.Args),
		zap.String("ver", misc.GetVersion()),
		zap.String("runtime", runtime.Version()),
		zap.String("hash", misc.GetGitHash()))

	switch {
	case env.Rpt != nil:
		env.Log.Info("Creating debug report", zap.String("location", env.Rpt.Name()))
	case len(configFile) == 0:
		env.Log.Info("Using defaults (no configuration file)")
	}
	return ctx, nil
}

// prepareReport creates debug report and puts processed configuration into
// it when configuration file was provided. Secrets are masked by Dump.
func prepareReport(env *state.LocalEnv, configFile string) (err error) {
	if env.Rpt, err = env.Cfg.Reporting.Prepare(); err != nil {
		return fmt.Errorf("unable to prepare debug report: %w", err)
	}
	if len(configFile) == 0 {
		return nil
	}
	if data, err := config.Dump(env.Cfg); err == nil {
		env.Rpt.StoreData("config/"+filepath.Base(configFile), data)
	}
	return nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	}
	env.RestoreStdLog()

	// logs are synced and may go into report, from now on errors are
	// reported to stderr
	if env.Rpt != nil {
		if er := env.Rpt.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close debug report: %w", er))
		}
	}
	if env.Cfg != nil {
		err = multierr.Append(err, removeEmptyPanicLog(env.Cfg.Logging.FileLogger.Destination))
	}
	return err
}

// removeEmptyPanicLog stops crash output and removes panic log created next
// to file log if nothing was written there.
func removeEmptyPanicLog(logName string) error {
	if len(logName) == 0 {
		return nil
	}
	debug.SetCrashOutput(nil, debug.CrashOptions{})

	fname := filepath.Join(filepath.Dir(logName), misc.GetAppName()+"-panic.log")
	fi, err := os.Stat(fname)
	if err != nil || fi.Size() != 0 {
		return nil
	}
	if err := os.Remove(fname); err != nil {
		return fmt.Errorf("unable to remove empty panic log file '%s': %w", fname, err)
	}
	return nil
}

// urfave/cli default error handling is not used, subcommands return regular
// errors.
var errWasHandled bool

// exitErrHandler runs before application context is destroyed, so error
// from subcommand still goes into the log.
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

// usageErrorHandler leaves reporting to exitErrHandler or main.
func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func subcommandNotFoundHandler(ctx context.Context, _ *cli.Command, name string) {
	log := state.EnvFromContext(ctx).Log
	if log == nil {
		fmt.Fprintf(os.Stderr, "Unknown command %q, nothing to do\n", name)
		return
	}
	log.Warn("Unknown command, nothing to do", zap.String("command", name))
}

func main() {
	// cover download and chapter generation are cancelled on interrupt
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "assembles stories into EPUB packages",
		Version:         misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash(),
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		CommandNotFound: subcommandNotFoundHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, DefaultText: "", Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "changes program behavior to help troubleshooting, produces report archive"},
		},
		Commands: []*cli.Command{
			{
				Name:         "assemble",
				Usage:        "Assembles story into EPUB package",
				OnUsageError: usageErrorHandler,
				Action:       bind.Run,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "cover", Usage: "use image at `PATH_OR_URL` as cover instead of the one from story manifest"},
					&cli.BoolFlag{Name: "raw", Usage: "keep assembled package directory, do not produce archive"},
					&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "continue even if destination exists, overwrite files"},
					&cli.StringFlag{Name: "force-cp",
						Usage: "Force `ENCODING` for ALL chapter text files (see IANA.org for character set names)"},
				},
				ArgsUsage: "STORY [DESTINATION]",
				CustomHelpTemplate: fmt.Sprintf(`%s
STORY:
    story to assemble, following forms are supported:
        path to story manifest: "[path_to_file]story.yaml"
        path to a directory containing "story.yaml"
        path to zip archive containing "story.yaml" anywhere inside

	Relative chapter and cover paths in manifest are resolved against
	manifest location.

DESTINATION:
    always a path, output directory or file name will be derived from story title
    (or output_name_template from configuration), if absent - current working directory
`, cli.CommandHelpTemplate),
			},
			{
				Name:         "extract",
				Usage:        "Unpacks EPUB archive into directory",
				OnUsageError: usageErrorHandler,
				Action:       bind.Extract,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "replace existing destination directory"},
				},
				ArgsUsage: "EPUB [DESTINATION]",
				CustomHelpTemplate: fmt.Sprintf(`%s
DESTINATION:
    directory to unpack archive to, if absent - archive name without extension
    in current working directory
`, cli.CommandHelpTemplate),
			},
			{
				Name:  "dumpconfig",
				Usage: "Dumps either default or actual configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
				},
				OnUsageError: usageErrorHandler,
				Action:       bind.DumpConfig,
				ArgsUsage:    "DESTINATION",
				CustomHelpTemplate: fmt.Sprintf(`%s

DESTINATION:
    file name to write configuration to, if absent - STDOUT

Produces file with actual "active" configuration values which is composition of
default values and values specified in configuration file. To see default
configuration embedded into the program use --default flag.
`, cli.CommandHelpTemplate),
			},
		},
	}

	var err error
	// os.Exit below skips deferred calls, nothing else may be deferred in main
	defer func() {
		stop()
		if err != nil {
			// log may be not ready yet or already closed
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}
