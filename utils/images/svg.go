// Package images holds image helpers the standard image packages and
// imaging do not cover: SVG rasterization and JFIF aware JPEG encoding.
package images

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// defaultSVGSize is used for a dimension SVG viewBox does not specify.
const defaultSVGSize = 1024

// maxRasterDim caps rasterized image dimensions, enormous viewBox values
// would otherwise allocate gigabytes.
var maxRasterDim = 8192

// SVGSize returns intrinsic dimensions of SVG image taken from its viewBox.
func SVGSize(svgData []byte) (int, int, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return 0, 0, err
	}
	w, h := intrinsicSize(icon)
	return w, h, nil
}

func intrinsicSize(icon *oksvg.SvgIcon) (int, int) {
	w := int(math.Ceil(icon.ViewBox.W))
	h := int(math.Ceil(icon.ViewBox.H))
	if w <= 0 {
		w = defaultSVGSize
	}
	if h <= 0 {
		h = defaultSVGSize
	}
	return w, h
}

// RasterizeSVG renders SVG on white background. With both target
// dimensions zero intrinsic size is used, with one of them zero image is
// scaled by the other keeping aspect ratio, otherwise image is fitted into
// the box. When stretch is set image fills the box exactly.
func RasterizeSVG(svgData []byte, targetW, targetH int, stretch bool) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, err
	}

	intrW, intrH := intrinsicSize(icon)
	w, h := intrW, intrH
	switch {
	case targetW <= 0 && targetH <= 0:
	case targetH <= 0:
		w = targetW
		h = int(math.Round(float64(w) * float64(intrH) / float64(intrW)))
	case targetW <= 0:
		h = targetH
		w = int(math.Round(float64(h) * float64(intrW) / float64(intrH)))
	case stretch:
		w, h = targetW, targetH
	default:
		scale := math.Min(float64(targetW)/float64(intrW), float64(targetH)/float64(intrH))
		w = int(math.Round(float64(intrW) * scale))
		h = int(math.Round(float64(intrH) * scale))
	}
	w, h = max(w, 1), max(h, 1)

	if w > maxRasterDim || h > maxRasterDim {
		s := min(float64(maxRasterDim)/float64(w), float64(maxRasterDim)/float64(h))
		w = max(int(math.Round(float64(w)*s)), 1)
		h = max(int(math.Round(float64(h)*s)), 1)
	}

	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return dst, nil
}
