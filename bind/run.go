// Package bind implements program subcommands on top of the assembler.
package bind

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/h2non/filetype"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"storybind/archive"
	"storybind/epub"
	"storybind/state"
	"storybind/story"
)

// ManifestName is the story manifest looked up in directories and archives.
const ManifestName = "story.yaml"

// Run is the action of assemble subcommand.
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("assemble")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no story has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	env.Overwrite, env.Raw = cmd.Bool("overwrite"), cmd.Bool("raw")
	env.CoverOverride = cmd.String("cover")

	cp := env.Cfg.Document.ChapterEncoding
	if forced := cmd.String("force-cp"); len(forced) > 0 {
		cp = forced
	}
	if err := env.SetCodePage(cp); err != nil {
		log.Warn("Unknown character set specification, detecting encoding instead", zap.String("charset", cp), zap.Error(err))
	} else if env.CodePage != nil {
		log.Debug("Forcing chapter text encoding", zap.String("charset", cp))
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, src, dst, log)
}

// process finds story manifest: src may be the manifest itself, directory
// containing it or zip archive with it.
func process(ctx context.Context, src, dst string, log *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("story was not found (%s): %w", src, err)
	}

	if fi.IsDir() {
		manifest := filepath.Join(src, ManifestName)
		if _, err := os.Stat(manifest); err != nil {
			return fmt.Errorf("directory does not contain %s (%s)", ManifestName, src)
		}
		return processStory(ctx, manifest, dst, log)
	}

	if !fi.Mode().IsRegular() {
		return fmt.Errorf("unexpected path mode for (%s)", src)
	}

	isZip, err := isArchiveFile(src)
	if err != nil {
		return fmt.Errorf("unable to check archive type: %w", err)
	}
	if isZip {
		return processArchive(ctx, src, dst, log)
	}
	return processStory(ctx, src, dst, log)
}

// processArchive unpacks archive into temporary directory and assembles
// story from manifest found there.
func processArchive(ctx context.Context, path, dst string, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)

	var manifests []string
	err := archive.Walk(path, "", func(_ string, f *zip.File) error {
		if strings.EqualFold(filepath.Base(f.Name), ManifestName) {
			manifests = append(manifests, f.Name)
		}
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("unable to read archive: %w", err)
	}
	switch len(manifests) {
	case 0:
		return fmt.Errorf("archive does not contain %s (%s)", ManifestName, path)
	case 1:
	default:
		log.Warn("Archive contains several manifests, using first one", zap.Strings("manifests", manifests))
	}

	dir, err := os.MkdirTemp(env.Cfg.Document.TempRoot, "storybind-src-")
	if err != nil {
		return fmt.Errorf("unable to create working directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Debug("Unable to remove working directory", zap.String("dir", dir), zap.Error(err))
		}
	}()

	if err := archive.Extract(path, dir); err != nil {
		return err
	}
	log.Debug("Story archive extracted", zap.String("archive", path), zap.String("manifest", manifests[0]))
	return processStory(ctx, filepath.Join(dir, filepath.FromSlash(manifests[0])), dst, log)
}

// processStory assembles single story described by manifest at path.
func processStory(ctx context.Context, path, dst string, log *zap.Logger) (rerr error) {
	env := state.EnvFromContext(ctx)

	var output string

	log.Info("Assembly starting", zap.String("from", path))
	defer func(start time.Time) {
		if r := recover(); r != nil {
			log.Error("Assembly ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("assembly panic: %v", r)
		} else if rerr == nil {
			log.Info("Assembly completed", zap.Duration("elapsed", time.Since(start)), zap.String("to", output))
		}
	}(time.Now())

	m, err := story.LoadManifest(path)
	if err != nil {
		return err
	}
	if env.Rpt != nil {
		if data, err := os.ReadFile(path); err == nil {
			env.Rpt.StoreData("story/"+filepath.Base(path), data)
		}
	}
	if !story.LanguageValid(m.Language) {
		log.Warn("Unable to parse story language, using default", zap.String("language", m.Language), zap.Stringer("default", story.DefaultLanguage))
	}

	st, err := m.Story()
	if err != nil {
		return fmt.Errorf("invalid story (%s): %w", path, err)
	}

	res, err := epub.Assemble(ctx, st, dst, epub.Options{
		CoverOverride: env.CoverOverride,
		Raw:           env.Raw,
		Overwrite:     env.Overwrite,
		Workers:       env.Cfg.Document.Workers,
		TempRoot:      env.Cfg.Document.TempRoot,
		CodePage:      env.CodePage,
		Document:      &env.Cfg.Document,
		Report:        env.Rpt,
	}, log)
	if err != nil {
		return fmt.Errorf("unable to assemble story (%s): %w", st.Title, err)
	}
	output = res.Path

	for _, w := range res.Warnings {
		log.Warn("Assembled with problems", zap.Stringer("kind", w.Kind), zap.String("chapter", w.Chapter), zap.Error(w.Err))
	}
	if env.Rpt != nil && !res.Raw {
		env.Rpt.Store("result/"+filepath.Base(res.Path), res.Path)
	}
	return nil
}

// isArchiveFile checks file signature.
func isArchiveFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return filetype.Is(head[:n], "zip"), nil
}
