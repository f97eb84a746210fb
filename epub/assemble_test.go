package epub

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storybind/config"
	"storybind/story"
)

func assembleOptions(t *testing.T) Options {
	t.Helper()
	_, cfg := setupTest(t)
	return Options{
		Document: cfg,
		TempRoot: t.TempDir(),
		Workers:  2,
		Now:      func() time.Time { return testTime },
	}
}

func twoChapterStory(t *testing.T, title string, options ...story.Option) *story.Story {
	t.Helper()
	sources := writeChapters(t, t.TempDir(), map[string]string{
		"Intro":   "Once upon a time.\n\nThere was a tale.",
		"The End": "And that was all.",
	}, "Intro", "The End")
	return newTestStory(t, title, append(options, story.WithChapters(sources...))...)
}

func spineOf(t *testing.T, opf string) []string {
	t.Helper()
	return attrs(readDoc(t, opf).FindElements("//spine/itemref"), "idref")
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%s is not empty: %v", dir, entries)
	}
}

func TestAssemble_Raw(t *testing.T) {
	log, _ := setupTest(t)
	opts := assembleOptions(t)
	opts.Raw = true
	out := t.TempDir()

	res, err := Assemble(context.Background(), twoChapterStory(t, "My Tale"), out, opts, log)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	storyDir := filepath.Join(out, "My Tale")
	if res.Path != storyDir || !res.Raw {
		t.Errorf("Result = %+v", res)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}

	for _, name := range []string{
		"mimetype",
		"META-INF/container.xml",
		"EPUB/content.opf",
		"EPUB/toc.ncx",
		"EPUB/nav.xhtml",
		"EPUB/styles/stylesheet.css",
		"EPUB/text/title_page.xhtml",
		"EPUB/text/ch0002.xhtml",
		"EPUB/text/ch0003.xhtml",
	} {
		if _, err := os.Stat(filepath.Join(storyDir, filepath.FromSlash(name))); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(storyDir, "EPUB", "text", "cover.xhtml")); err == nil {
		t.Error("cover page written without cover")
	}

	data, err := os.ReadFile(filepath.Join(storyDir, "mimetype"))
	if err != nil || string(data) != "application/epub+zip" {
		t.Errorf("mimetype = %q, %v", data, err)
	}

	opf := filepath.Join(storyDir, "EPUB", "content.opf")
	equalStrings(t, "spine", spineOf(t, opf), []string{"title_page", "ch0002", "ch0003"})
	if e := readDoc(t, opf).FindElement("//metadata/meta[@property='dcterms:modified']"); e == nil || e.Text() != "2024-05-06T07:08:09Z" {
		t.Error("dcterms:modified does not use injected clock")
	}

	ncx := readDoc(t, filepath.Join(storyDir, "EPUB", "toc.ncx"))
	equalStrings(t, "playOrder", attrs(ncx.FindElements("//navMap/navPoint"), "playOrder"), []string{"1", "2", "3"})

	chapter := readDoc(t, filepath.Join(storyDir, "EPUB", "text", "ch0002.xhtml"))
	if e := chapter.FindElement("//h2"); e == nil || e.Text() != "Intro" {
		t.Error("chapter heading is wrong")
	}
	equalStrings(t, "paragraphs", texts(chapter.FindElements("//section/p")), []string{"Once upon a time.", "There was a tale."})

	assertEmptyDir(t, opts.TempRoot)
}

func TestAssemble_ControlCharacters(t *testing.T) {
	log, _ := setupTest(t)
	opts := assembleOptions(t)
	opts.Raw = true

	sources := writeChapters(t, t.TempDir(), map[string]string{
		"Noise": "be\x01fore\x0b after\x1b!\n\n\x07",
	}, "Noise")
	st := newTestStory(t, "My\x01 Tale", story.WithChapters(sources...))

	res, err := Assemble(context.Background(), st, t.TempDir(), opts, log)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}

	chapter := readDoc(t, filepath.Join(res.Path, "EPUB", "text", "ch0002.xhtml"))
	equalStrings(t, "paragraphs", texts(chapter.FindElements("//section/p")), []string{"before after!"})

	for _, name := range []string{"content.opf", "toc.ncx", "nav.xhtml", "text/title_page.xhtml", "text/ch0002.xhtml"} {
		data, err := os.ReadFile(filepath.Join(res.Path, "EPUB", filepath.FromSlash(name)))
		if err != nil {
			t.Fatal(err)
		}
		if strings.ContainsRune(string(data), '\uFFFD') {
			t.Errorf("%s contains replacement characters", name)
		}
	}
	if e := readDoc(t, filepath.Join(res.Path, "EPUB", "content.opf")).FindElement("//metadata/dc:title"); e == nil || e.Text() != "My Tale" {
		t.Error("dc:title keeps control characters")
	}
}

func TestAssemble_Archive(t *testing.T) {
	log, _ := setupTest(t)
	out := t.TempDir()

	for _, fix := range []bool{false, true} {
		opts := assembleOptions(t)
		opts.Document.FixZip = fix
		opts.Overwrite = true

		res, err := Assemble(context.Background(), twoChapterStory(t, "My Tale"), out, opts, log)
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		if res.Path != filepath.Join(out, "My Tale.epub") || res.Raw {
			t.Errorf("Result = %+v", res)
		}
		if _, err := os.Stat(filepath.Join(out, "My Tale")); err == nil {
			t.Error("package directory left after archiving")
		}
		assertEmptyDir(t, opts.TempRoot)

		zr, err := zip.OpenReader(res.Path)
		if err != nil {
			t.Fatal(err)
		}
		first := zr.File[0]
		if first.Name != "mimetype" || first.Method != zip.Store {
			t.Errorf("first entry = %s (method %d)", first.Name, first.Method)
		}
		rc, err := first.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != "application/epub+zip" {
			t.Errorf("mimetype content = %q", data)
		}

		names := make(map[string]bool)
		for _, f := range zr.File {
			names[f.Name] = true
			if fix && f.Flags&0x8 != 0 {
				t.Errorf("%s has data descriptor", f.Name)
			}
		}
		for _, want := range []string{"META-INF/container.xml", "EPUB/content.opf", "EPUB/text/ch0003.xhtml"} {
			if !names[want] {
				t.Errorf("archive is missing %s", want)
			}
		}
		zr.Close()
	}
}

func TestAssemble_Exists(t *testing.T) {
	log, _ := setupTest(t)
	out := t.TempDir()
	st := twoChapterStory(t, "My Tale")

	opts := assembleOptions(t)
	if _, err := Assemble(context.Background(), st, out, opts, log); err != nil {
		t.Fatal(err)
	}

	_, err := Assemble(context.Background(), st, out, opts, log)
	if !errors.Is(err, ErrExists) {
		t.Fatalf("Assemble() error = %v, want ErrExists", err)
	}
	if _, err := os.Stat(filepath.Join(out, "My Tale.epub")); err != nil {
		t.Errorf("existing archive damaged: %v", err)
	}

	opts.Overwrite = true
	if _, err := Assemble(context.Background(), st, out, opts, log); err != nil {
		t.Fatalf("Assemble() with overwrite error = %v", err)
	}

	// raw output only conflicts with directory
	opts.Overwrite = false
	opts.Raw = true
	if _, err := Assemble(context.Background(), st, out, opts, log); err != nil {
		t.Fatalf("Assemble() raw error = %v", err)
	}
	if _, err := Assemble(context.Background(), st, out, opts, log); !errors.Is(err, ErrExists) {
		t.Fatalf("Assemble() raw error = %v, want ErrExists", err)
	}
}

func TestAssemble_OverwriteKeepsArchiveOnFailure(t *testing.T) {
	log, _ := setupTest(t)
	out := t.TempDir()
	opts := assembleOptions(t)

	previous := []byte("previous archive")
	archivePath := filepath.Join(out, "My Tale.epub")
	if err := os.WriteFile(archivePath, previous, 0644); err != nil {
		t.Fatal(err)
	}

	st := newTestStory(t, "My Tale", story.WithChapters(
		story.ChapterSource{Key: "Gone", Path: filepath.Join(t.TempDir(), "Gone.txt")},
	))
	opts.Overwrite = true
	if _, err := Assemble(context.Background(), st, out, opts, log); err == nil {
		t.Fatal("Assemble() succeeded with missing chapter")
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatalf("previous archive lost after failed run: %v", err)
	}
	if string(data) != string(previous) {
		t.Errorf("previous archive modified: %q", data)
	}
	if _, err := os.Stat(filepath.Join(out, "My Tale")); err == nil {
		t.Error("partial package directory left behind")
	}

	// successful run replaces it
	res, err := Assemble(context.Background(), twoChapterStory(t, "My Tale"), out, opts, log)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	zr, err := zip.OpenReader(res.Path)
	if err != nil {
		t.Fatalf("replaced archive is not a zip: %v", err)
	}
	zr.Close()
}

func TestAssemble_Cover(t *testing.T) {
	log, _ := setupTest(t)
	pngData := pngImage(t, 60, 80)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cover.png" {
			_, _ = w.Write(pngData)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tests := []struct {
		name      string
		own       string
		override  string
		wantCover bool
		wantWarn  bool
	}{
		{"story cover", srv.URL + "/cover.png", "", true, false},
		{"override wins", srv.URL + "/missing.png", srv.URL + "/cover.png", true, false},
		{"not found degrades", srv.URL + "/missing.png", "", false, true},
		{"no cover", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := assembleOptions(t)
			opts.Raw = true
			opts.CoverOverride = tt.override
			opts.Fetcher = NewFetcher(&opts.Document.Fetch, srv.Client(), log)
			out := t.TempDir()

			st := twoChapterStory(t, "My Tale", story.WithCover(story.ParseCoverSource(tt.own)))
			res, err := Assemble(context.Background(), st, out, opts, log)
			if err != nil {
				t.Fatalf("Assemble() error = %v", err)
			}
			if res.Cover.Staged != tt.wantCover {
				t.Errorf("cover staged = %v, want %v", res.Cover.Staged, tt.wantCover)
			}

			var warned bool
			for _, w := range res.Warnings {
				if w.Kind == WarnCoverDegraded {
					warned = true
				}
			}
			if warned != tt.wantWarn {
				t.Errorf("cover warning = %v, want %v (%v)", warned, tt.wantWarn, res.Warnings)
			}

			storyDir := filepath.Join(out, "My Tale")
			spine := spineOf(t, filepath.Join(storyDir, "EPUB", "content.opf"))
			want := []string{"title_page", "ch0002", "ch0003"}
			if tt.wantCover {
				want = []string{"title_page", "cover", "ch0002", "ch0003"}
			}
			equalStrings(t, "spine", spine, want)

			_, err = os.Stat(filepath.Join(storyDir, "EPUB", "images", "cover.png"))
			if (err == nil) != tt.wantCover {
				t.Errorf("cover image present = %v, want %v", err == nil, tt.wantCover)
			}
			_, err = os.Stat(filepath.Join(storyDir, "EPUB", "text", "cover.xhtml"))
			if (err == nil) != tt.wantCover {
				t.Errorf("cover page present = %v, want %v", err == nil, tt.wantCover)
			}
		})
	}
}

func TestAssemble_ReservedTitle(t *testing.T) {
	log, _ := setupTest(t)
	opts := assembleOptions(t)
	opts.Raw = true
	out := t.TempDir()

	res, err := Assemble(context.Background(), twoChapterStory(t, "CON"), out, opts, log)
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != filepath.Join(out, "_CON_") {
		t.Errorf("Path = %s", res.Path)
	}
}

func TestAssemble_InlineChapters(t *testing.T) {
	log, _ := setupTest(t)
	opts := assembleOptions(t)
	opts.Raw = true
	out := t.TempDir()

	st := newTestStory(t, "Inline", story.WithChapters(
		story.ChapterSource{Key: "Same", Blocks: []string{"first"}},
		story.ChapterSource{Key: "Same", Blocks: []string{"second", "third"}},
	))
	res, err := Assemble(context.Background(), st, out, opts, log)
	if err != nil {
		t.Fatal(err)
	}

	for i, want := range [][]string{{"first"}, {"second", "third"}} {
		doc := readDoc(t, contentPath(res.Path, chapterHref(i+1)))
		equalStrings(t, "paragraphs", texts(doc.FindElements("//section/p")), want)
		if e := doc.FindElement("//h2"); e == nil || e.Text() != "Same" {
			t.Error("chapter label is wrong")
		}
	}
	assertEmptyDir(t, opts.TempRoot)
}

func TestAssemble_NoChapters(t *testing.T) {
	log, _ := setupTest(t)
	opts := assembleOptions(t)
	opts.Raw = true

	res, err := Assemble(context.Background(), newTestStory(t, "Empty"), t.TempDir(), opts, log)
	if err != nil {
		t.Fatal(err)
	}
	equalStrings(t, "spine", spineOf(t, contentPath(res.Path, opfName)), []string{"title_page"})
}

func TestAssemble_ChapterFailure(t *testing.T) {
	log, _ := setupTest(t)
	opts := assembleOptions(t)
	out := t.TempDir()

	st := newTestStory(t, "Broken", story.WithChapters(
		story.ChapterSource{Key: "gone", Path: filepath.Join(t.TempDir(), "gone.txt")},
	))
	_, err := Assemble(context.Background(), st, out, opts, log)
	if err == nil || !strings.Contains(err.Error(), "gone") {
		t.Fatalf("Assemble() error = %v", err)
	}
	assertEmptyDir(t, out)
	assertEmptyDir(t, opts.TempRoot)
}

func TestAssemble_Cancelled(t *testing.T) {
	log, _ := setupTest(t)
	opts := assembleOptions(t)
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	opts.Fetcher = NewFetcher(&opts.Document.Fetch, srv.Client(), log)

	st := twoChapterStory(t, "My Tale", story.WithCover(story.ParseCoverSource(srv.URL+"/cover.jpg")))
	_, err := Assemble(ctx, st, out, opts, log)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Assemble() error = %v, want context.Canceled", err)
	}
	assertEmptyDir(t, out)
	assertEmptyDir(t, opts.TempRoot)

	if _, err := Assemble(ctx, st, out, opts, log); !errors.Is(err, context.Canceled) {
		t.Errorf("Assemble() on done context error = %v", err)
	}
}

func TestAssemble_OutputNameTemplate(t *testing.T) {
	log, _ := setupTest(t)
	out := t.TempDir()

	opts := assembleOptions(t)
	opts.Document.OutputNameTemplate = `{{ .Author }} - {{ .Title }}`
	res, err := Assemble(context.Background(), twoChapterStory(t, "My Tale"), out, opts, log)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(res.Path) != "Jane Doe - My Tale.epub" {
		t.Errorf("Path = %s", res.Path)
	}

	opts = assembleOptions(t)
	opts.Document.OutputNameTemplate = `{{ .Nope }}`
	res, err = Assemble(context.Background(), twoChapterStory(t, "My Tale"), out, opts, log)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(res.Path) != "My Tale.epub" {
		t.Errorf("Path = %s", res.Path)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != WarnOutputName {
		t.Errorf("Warnings = %v", res.Warnings)
	}
}

func TestWarning(t *testing.T) {
	base := errors.New("boom")
	w := Warning{Kind: WarnChapterPostProcess, Chapter: "Intro", Err: base}
	if !errors.Is(w, base) {
		t.Error("Warning does not unwrap")
	}
	if got := w.Error(); got != `post-process: chapter "Intro": boom` {
		t.Errorf("Error() = %q", got)
	}
	if got := (Warning{Kind: WarnCoverDegraded, Err: base}).Error(); got != "cover: boom" {
		t.Errorf("Error() = %q", got)
	}
}

func TestAssemble_Report(t *testing.T) {
	log, _ := setupTest(t)
	opts := assembleOptions(t)

	conf := config.ReporterConfig{Destination: filepath.Join(t.TempDir(), "report.zip")}
	rpt, err := conf.Prepare()
	if err != nil {
		t.Fatal(err)
	}
	opts.Report = rpt

	if _, err := Assemble(context.Background(), twoChapterStory(t, "My Tale"), t.TempDir(), opts, log); err != nil {
		t.Fatal(err)
	}
	if err := rpt.Close(); err != nil {
		t.Fatal(err)
	}

	zr, err := zip.OpenReader(conf.Destination)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"plan/My Tale.txt", "package/EPUB/content.opf", "package/mimetype"} {
		if !names[want] {
			t.Errorf("report is missing %s", want)
		}
	}
}
