package epub

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"storybind/config"
	"storybind/story"
	"storybind/utils/images"
)

// CoverResult describes outcome of cover staging. When Staged is false
// Reason tells why package is built without cover.
type CoverResult struct {
	Staged bool
	// staged image file
	Path      string
	Ext       string
	MediaType string
	// zero when image could not be decoded
	Width, Height int
	Reason        string
}

// Href returns cover image location relative to content directory.
func (c CoverResult) Href() string {
	return coverImageHref(c.Ext)
}

func degraded(format string, args ...any) CoverResult {
	return CoverResult{Reason: fmt.Sprintf(format, args...)}
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
}

// resolveCover picks cover source: non-empty override wins over story
// cover.
func resolveCover(override string, own story.CoverSource) story.CoverSource {
	if src := story.ParseCoverSource(override); !src.IsZero() {
		return src
	}
	return own
}

// stageCover obtains cover image and writes it into package images
// directory. Missing or unusable image degrades to no cover, only failure to
// write into the package and context cancellation are errors.
func stageCover(ctx context.Context, src story.CoverSource, storyDir string, cfg *config.DocumentConfig, fetcher *Fetcher, log *zap.Logger) (CoverResult, error) {
	var (
		data []byte
		err  error
	)
	switch src.Kind {
	case story.CoverNone:
		return degraded("no cover requested"), nil
	case story.CoverFile:
		data, err = os.ReadFile(src.Location)
		if err != nil {
			return degraded("unable to read cover %s: %v", src.Location, err), nil
		}
	case story.CoverURL:
		data, err = fetcher.Fetch(ctx, src.Location)
		if err != nil {
			if ctx.Err() != nil {
				return CoverResult{}, ctx.Err()
			}
			return degraded("unable to download cover %s: %v", src.Location, err), nil
		}
	}

	ext, reason := coverExt(src, data)
	if reason != "" {
		return degraded("%s: %s", src.Location, reason), nil
	}

	res := CoverResult{Staged: true, Ext: ext, MediaType: mediaTypeByExt(ext)}
	if ext == ".svg" {
		data = prepareCoverSVG(data, &res, &cfg.Cover, log)
	} else {
		data = prepareCoverImage(data, &res, &cfg.Cover, log)
	}

	res.Path = contentPath(storyDir, res.Href())
	if err := writeData(res.Path, data); err != nil {
		return CoverResult{}, fmt.Errorf("unable to store cover image: %w", err)
	}
	log.Debug("Cover staged", zap.Stringer("source", src), zap.String("type", res.MediaType),
		zap.Int("width", res.Width), zap.Int("height", res.Height))
	return res, nil
}

// coverExt returns extension for staged image. Raster content is identified
// by its bytes, extension from location is kept only when it agrees with them.
// SVG has no reliable signature and is trusted by extension.
func coverExt(src story.CoverSource, data []byte) (string, string) {
	if len(data) == 0 {
		return "", "cover is empty"
	}

	loc := src.Location
	if src.Kind == story.CoverURL {
		if u, err := url.Parse(loc); err == nil {
			loc = u.Path
		}
		loc = path.Ext(loc)
	} else {
		loc = filepath.Ext(loc)
	}
	ext := strings.ToLower(loc)
	if ext == ".svg" {
		return ext, ""
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || !filetype.IsImage(data) {
		return "", "content is not an image"
	}
	detected := "." + kind.Extension
	if !imageExts[detected] {
		return "", fmt.Sprintf("unsupported image type %s", kind.MIME.Value)
	}
	if imageExts[ext] && mediaTypeByExt(ext) == mediaTypeByExt(detected) {
		return ext, ""
	}
	return detected, ""
}

// prepareCoverImage probes dimensions and resizes JPEG and PNG images as
// configured. Original data is returned when image cannot be processed.
func prepareCoverImage(data []byte, res *CoverResult, cfg *config.CoverConfig, log *zap.Logger) []byte {
	ic, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		log.Debug("Unable to probe cover dimensions", zap.Error(err))
		return data
	}
	res.Width, res.Height = ic.Width, ic.Height

	if cfg.Resize == "none" || cfg.Resize == "" || (format != "jpeg" && format != "png") {
		return data
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		log.Debug("Unable to decode cover", zap.Error(err))
		return data
	}

	switch cfg.Resize {
	case "keepAR":
		if img.Bounds().Dy() >= cfg.Height {
			return data
		}
		img = imaging.Resize(img, 0, cfg.Height, imaging.Lanczos)
	case "stretch":
		img = imaging.Resize(img, cfg.Width, cfg.Height, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if format == "png" {
		err = imaging.Encode(&buf, img, imaging.PNG)
	} else {
		var out []byte
		if out, err = images.EncodeJPEG(img, cfg.JPEGQuality); err == nil {
			buf.Write(out)
		}
	}
	if err != nil {
		log.Debug("Unable to encode resized cover", zap.Error(err))
		return data
	}
	res.Width, res.Height = img.Bounds().Dx(), img.Bounds().Dy()
	return buf.Bytes()
}

// prepareCoverSVG probes SVG dimensions and optionally rasterizes it into
// JPEG of configured size. Original data is kept when SVG cannot be
// rendered.
func prepareCoverSVG(data []byte, res *CoverResult, cfg *config.CoverConfig, log *zap.Logger) []byte {
	w, h, err := images.SVGSize(data)
	if err != nil {
		log.Debug("Unable to probe SVG cover dimensions", zap.Error(err))
		return data
	}
	res.Width, res.Height = w, h
	if !cfg.RasterizeSVG {
		return data
	}

	img, err := images.RasterizeSVG(data, cfg.Width, cfg.Height, cfg.Resize == "stretch")
	if err != nil {
		log.Debug("Unable to rasterize SVG cover", zap.Error(err))
		return data
	}
	out, err := images.EncodeJPEG(img, cfg.JPEGQuality)
	if err != nil {
		log.Debug("Unable to encode rasterized cover", zap.Error(err))
		return data
	}
	res.Ext, res.MediaType = ".jpg", mediaTypeByExt(".jpg")
	res.Width, res.Height = img.Bounds().Dx(), img.Bounds().Dy()
	return out
}
