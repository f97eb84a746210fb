package config

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readReport(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("unable to open report: %v", err)
	}
	defer zr.Close()

	result := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		result[f.Name] = string(data)
	}
	return result
}

func TestReport(t *testing.T) {
	tmpDir := t.TempDir()
	conf := ReporterConfig{Destination: filepath.Join(tmpDir, "report.zip")}
	r, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	stored := filepath.Join(tmpDir, "story.yaml")
	if err := os.WriteFile(stored, []byte("title: x"), 0644); err != nil {
		t.Fatal(err)
	}
	r.Store("story.yaml", stored)

	pkg := filepath.Join(tmpDir, "pkg")
	if err := os.MkdirAll(filepath.Join(pkg, "EPUB"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pkg, "EPUB", "content.opf"), []byte("<package/>"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := r.StoreCopy("package", pkg); err != nil {
		t.Fatalf("StoreCopy() error = %v", err)
	}
	// removing original must not affect the report
	if err := os.RemoveAll(pkg); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		wg.Go(func() { r.StoreData(name, []byte(name)) })
	}
	wg.Wait()

	var scratch string
	for _, e := range r.entries {
		if e.scratch != "" {
			scratch = e.scratch
		}
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	files := readReport(t, conf.Destination)
	if files["story.yaml"] != "title: x" {
		t.Errorf("story.yaml = %q", files["story.yaml"])
	}
	if files["package/EPUB/content.opf"] != "<package/>" {
		t.Errorf("copied package missing, got files %v", len(files))
	}
	if files["b.txt"] != "b.txt" {
		t.Errorf("b.txt = %q", files["b.txt"])
	}
	if !strings.Contains(files["MANIFEST"], "story.yaml") {
		t.Error("MANIFEST does not list stored file")
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("temporary copy %s was not removed", scratch)
	}
	if _, err := os.Stat(stored); err != nil {
		t.Errorf("stored file should not be removed: %v", err)
	}
}

func TestReport_Nil(t *testing.T) {
	var r *Report
	r.Store("x", "y")
	r.StoreData("x", []byte("y"))
	if err := r.StoreCopy("x", "y"); err != nil {
		t.Errorf("StoreCopy on nil report error = %v", err)
	}
	if r.Name() != "" {
		t.Error("Name() on nil report should be empty")
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil report should not error, got: %v", err)
	}
}

func TestReportClose_NilFile(t *testing.T) {
	r := &Report{entries: make(map[string]entry)}
	if err := r.Close(); err != nil {
		t.Errorf("Close with nil file should not error, got: %v", err)
	}
}
