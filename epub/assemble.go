package epub

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"

	"storybind/archive"
	"storybind/config"
	"storybind/story"
)

// ErrExists is returned when output directory or archive is already present
// and overwriting was not requested.
var ErrExists = errors.New("output already exists")

// WarningKind classifies non-fatal problems of assembly.
type WarningKind int

const (
	WarnCoverDegraded WarningKind = iota
	WarnChapterPostProcess
	WarnOutputName
)

func (k WarningKind) String() string {
	switch k {
	case WarnCoverDegraded:
		return "cover"
	case WarnChapterPostProcess:
		return "post-process"
	case WarnOutputName:
		return "output-name"
	default:
		return fmt.Sprintf("WarningKind(%d)", int(k))
	}
}

// Warning is a problem which did not prevent package from being produced.
type Warning struct {
	Kind WarningKind
	// chapter label, empty for warnings not related to chapter
	Chapter string
	Err     error
}

func (w Warning) Error() string {
	if w.Chapter != "" {
		return fmt.Sprintf("%s: chapter %q: %v", w.Kind, w.Chapter, w.Err)
	}
	return fmt.Sprintf("%s: %v", w.Kind, w.Err)
}

func (w Warning) Unwrap() error {
	return w.Err
}

// Options controls single assembly run.
type Options struct {
	// path or URL, takes precedence over story cover
	CoverOverride string
	// keep package directory, do not archive
	Raw       bool
	Overwrite bool
	// concurrent chapter writers, 0 means number of CPUs
	Workers int
	// where per-run working directory is created, empty means os.TempDir
	TempRoot string
	// nil means detect encoding of every chapter file
	CodePage encoding.Encoding
	Document *config.DocumentConfig
	// used to download cover, created from Document.Fetch when nil
	Fetcher *Fetcher
	// debug report, may be nil
	Report *config.Report
	// clock for dcterms:modified
	Now func() time.Time
}

// Result describes produced package.
type Result struct {
	// archive file or, in raw mode, package directory
	Path     string
	Raw      bool
	Cover    CoverResult
	Warnings []Warning
}

// Assemble builds EPUB package for st under outputDir. Package directory is
// named after sanitized story title, archive (unless opts.Raw) gets .epub
// extension and replaces the directory. Partially written output is removed
// on failure or cancellation, the per-run working directory is always
// removed.
func Assemble(ctx context.Context, st *story.Story, outputDir string, opts Options, log *zap.Logger) (res *Result, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := opts.Document
	if cfg == nil {
		defaults, err := config.LoadConfiguration("")
		if err != nil {
			return nil, err
		}
		cfg = &defaults.Document
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(&cfg.Fetch, nil, log)
	}

	res = &Result{Raw: opts.Raw}

	tempRoot, err := os.MkdirTemp(opts.TempRoot, "storybind-")
	if err != nil {
		return nil, fmt.Errorf("unable to create working directory: %w", err)
	}
	defer func() {
		if rerr := os.RemoveAll(tempRoot); rerr != nil {
			log.Debug("Unable to remove working directory", zap.String("dir", tempRoot), zap.Error(rerr))
		}
	}()

	sources, err := story.Stage(filepath.Join(tempRoot, "chapters"), st.Chapters)
	if err != nil {
		return nil, err
	}
	chapters := story.Order(sources)

	storyDir := filepath.Join(outputDir, storyDirName(st, cfg))
	name, nerr := archiveName(st, cfg)
	if nerr != nil {
		log.Warn("Unable to expand output name template, using default name", zap.Error(nerr))
		res.Warnings = append(res.Warnings, Warning{Kind: WarnOutputName, Err: nerr})
	}
	archivePath := filepath.Join(outputDir, name)

	if err := prepareOutput(storyDir, archivePath, opts, log); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.RemoveAll(storyDir))
		}
	}()

	log.Info("Assembling EPUB", zap.String("title", st.Title), zap.Int("chapters", len(chapters)), zap.String("directory", storyDir))

	stylesheet, err := LoadStylesheet(cfg.StylesheetPath, log)
	if err != nil {
		return nil, err
	}
	if err := writeBoilerplate(storyDir, stylesheet); err != nil {
		return nil, err
	}

	// cover and chapters are independent: each chapter has its own file
	// and position is fixed by chapter sequence
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers + 1)

	var cover CoverResult
	g.Go(func() error {
		c, err := stageCover(gctx, resolveCover(opts.CoverOverride, st.Cover), storyDir, cfg, fetcher, log)
		cover = c
		return err
	})
	for _, e := range chapterEntries(chapters) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return writeChapter(storyDir, st, e, opts.CodePage, log)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Cover = cover

	if !cover.Staged {
		src := resolveCover(opts.CoverOverride, st.Cover)
		if !src.IsZero() {
			log.Warn("Cover not available, assembling without cover", zap.String("reason", cover.Reason))
			res.Warnings = append(res.Warnings, Warning{Kind: WarnCoverDegraded, Err: errors.New(cover.Reason)})
		}
	}

	plan := NewPlan(chapters, cover.Staged)
	if opts.Report != nil {
		opts.Report.StoreData("plan/"+filepath.Base(storyDir)+".txt", []byte(plan.String()))
	}
	if err := writeDocuments(storyDir, st, plan, cover, cfg, now(), log); err != nil {
		return nil, err
	}

	for _, e := range plan.Chapters() {
		if err := PostProcess(contentPath(storyDir, e.Href)); err != nil {
			log.Warn("Chapter post-processing failed", zap.String("chapter", e.Label), zap.Error(err))
			res.Warnings = append(res.Warnings, Warning{Kind: WarnChapterPostProcess, Chapter: e.Label, Err: err})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := opts.Report.StoreCopy("package", storyDir); err != nil {
		log.Debug("Unable to store package in report", zap.Error(err))
	}

	if opts.Raw {
		res.Path = storyDir
		log.Info("EPUB directory ready", zap.String("path", storyDir), zap.Int("warnings", len(res.Warnings)))
		return res, nil
	}

	var packOpts []archive.PackOption
	if cfg.FixZip {
		packOpts = append(packOpts, archive.WithoutDataDescriptors())
	}
	if err := archive.Pack(storyDir, archivePath, packOpts...); err != nil {
		return nil, fmt.Errorf("unable to archive package: %w", err)
	}
	if rerr := os.RemoveAll(storyDir); rerr != nil {
		log.Warn("Unable to remove package directory", zap.String("dir", storyDir), zap.Error(rerr))
	}

	res.Path = archivePath
	log.Info("EPUB ready", zap.String("path", archivePath), zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// prepareOutput makes sure nothing is in the way of the new package. With
// Overwrite a stale package directory is removed, while an existing archive is
// kept until Pack renames the new one over it.
func prepareOutput(storyDir, archivePath string, opts Options, log *zap.Logger) error {
	if !opts.Raw {
		exists, err := pathExists(archivePath)
		switch {
		case err != nil:
			return err
		case exists && !opts.Overwrite:
			return fmt.Errorf("%s: %w", archivePath, ErrExists)
		case exists:
			log.Warn("Existing archive will be replaced", zap.String("path", archivePath))
		}
	}

	exists, err := pathExists(storyDir)
	switch {
	case err != nil:
		return err
	case exists && !opts.Overwrite:
		return fmt.Errorf("%s: %w", storyDir, ErrExists)
	case exists:
		log.Warn("Overwriting existing output", zap.String("path", storyDir))
		if err := os.RemoveAll(storyDir); err != nil {
			return fmt.Errorf("unable to remove existing output: %w", err)
		}
	}
	if err := os.MkdirAll(storyDir, 0755); err != nil {
		return fmt.Errorf("unable to create package directory: %w", err)
	}
	return nil
}

func pathExists(name string) (bool, error) {
	_, err := os.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, err
}

func writeChapter(storyDir string, st *story.Story, e Entry, codePage encoding.Encoding, log *zap.Logger) error {
	text, err := story.ReadText(e.Source, codePage)
	if err != nil {
		return fmt.Errorf("chapter %q: %w", e.Label, err)
	}
	name := contentPath(storyDir, e.Href)
	if err := writeXML(name, BuildChapter(st, e, story.Paragraphs(text))); err != nil {
		return fmt.Errorf("chapter %q: %w", e.Label, err)
	}
	log.Debug("Chapter written", zap.String("file", e.Href), zap.String("label", e.Label))
	return nil
}

// writeDocuments writes pages and navigation which depend on the whole plan.
func writeDocuments(storyDir string, st *story.Story, plan *Plan, cover CoverResult, cfg *config.DocumentConfig, modified time.Time, log *zap.Logger) error {
	docs := []struct {
		href string
		what string
		gen  func() error
	}{
		{titlePageHref, "title page", func() error {
			return writeXML(contentPath(storyDir, titlePageHref), BuildTitlePage(st))
		}},
		{coverPageHref, "cover page", func() error {
			return writeXML(contentPath(storyDir, coverPageHref), BuildCoverPage(st, cover, CoverPageOptions{
				Resize: cfg.Cover.Resize,
				Width:  cfg.Cover.Width,
				Height: cfg.Cover.Height,
			}))
		}},
		{opfName, "package document", func() error {
			return writeXML(contentPath(storyDir, opfName), BuildOPF(st, plan, cover, modified))
		}},
		{ncxName, "NCX", func() error {
			return writeXML(contentPath(storyDir, ncxName), BuildNCX(st, plan))
		}},
		{navName, "navigation document", func() error {
			return writeXML(contentPath(storyDir, navName), BuildNav(st, plan))
		}},
	}
	for _, d := range docs {
		if d.href == coverPageHref && !plan.HasCover() {
			continue
		}
		if err := d.gen(); err != nil {
			return fmt.Errorf("unable to write %s: %w", d.what, err)
		}
		log.Debug("Document written", zap.String("file", d.href))
	}
	return nil
}
