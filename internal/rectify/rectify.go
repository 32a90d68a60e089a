// Package rectify finds the table in a photographed report, undoes the
// perspective and binarizes the result for OCR.
package rectify

import (
	"image"
	"log/slog"
)

// Options holds the tuning constants of the rectification pipeline.
type Options struct {
	ClipLimit     float64 // CLAHE clip limit
	TileGrid      int     // CLAHE tiles per side
	BlurSize      int     // denoise kernel
	UnsharpSigma  float64
	CannyLow      float64
	CannyHigh     float64
	MinAreaRatio  float64 // contour area / image area
	ApproxRatio   float64 // polygon tolerance / arc length
	SauvolaWindow int
	SauvolaK      float64
	SauvolaR      float64
}

func DefaultOptions() Options {
	return Options{
		ClipLimit:     0.5,
		TileGrid:      8,
		BlurSize:      5,
		UnsharpSigma:  3,
		CannyLow:      40,
		CannyHigh:     100,
		MinAreaRatio:  0.1,
		ApproxRatio:   0.02,
		SauvolaWindow: 15,
		SauvolaK:      0.2,
		SauvolaR:      128,
	}
}

// Rectifier turns photographs of tables into binarized, perspective
// corrected images.
type Rectifier struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Rectifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rectifier{opts: opts, log: logger}
}

// Rectify never fails: when no table outline is found the whole normalized
// image is binarized instead.
func (r *Rectifier) Rectify(img image.Image) *image.Gray {
	o := r.opts
	gray := toGray(img)
	normalized := normalizeMinMax(clahe(gray, o.ClipLimit, o.TileGrid))

	edges := canny(unsharp(gaussianBlur(normalized, o.BlurSize, 0), o.UnsharpSigma), o.CannyLow, o.CannyHigh)
	mask := dilate3x3(edges)

	w, h := normalized.Rect.Dx(), normalized.Rect.Dy()
	quad, ok := r.findTable(mask, float64(w*h)*o.MinAreaRatio)
	if !ok {
		r.log.Info("rectify.no_table", "width", w, "height", h)
		return sauvola(normalized, o.SauvolaWindow, o.SauvolaK, o.SauvolaR)
	}

	corners := orderCorners(quad)
	tw, th := targetSize(corners)
	if tw < 1 || th < 1 {
		r.log.Info("rectify.degenerate_table", "width", tw, "height", th)
		return sauvola(normalized, o.SauvolaWindow, o.SauvolaK, o.SauvolaR)
	}
	warped, err := warpQuad(normalized, corners, tw, th)
	if err != nil {
		r.log.Warn("rectify.warp_failed", "error", err)
		return sauvola(normalized, o.SauvolaWindow, o.SauvolaK, o.SauvolaR)
	}
	r.log.Info("rectify.table", "width", tw, "height", th, "source_width", w, "source_height", h)
	return sauvola(warped, o.SauvolaWindow, o.SauvolaK, o.SauvolaR)
}

// findTable picks the most rectangle-like quadrilateral among contours
// larger than minArea. Without one it falls back to the largest contour's
// polygon, boxed when that polygon is not a quadrilateral.
func (r *Rectifier) findTable(mask *image.Gray, minArea float64) ([]image.Point, bool) {
	var candidates []contour
	for _, c := range externalContours(mask) {
		if c.area() > minArea {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	var best contour
	bestScore := 0.0
	for _, c := range candidates {
		poly := c.approx(r.opts.ApproxRatio * c.perimeter())
		if len(poly) != 4 {
			continue
		}
		_, _, bw, bh := poly.boundingRect()
		if bw*bh == 0 {
			continue
		}
		if score := poly.area() / float64(bw*bh); score > bestScore {
			best, bestScore = poly, score
		}
	}

	if best == nil {
		largest := candidates[0]
		for _, c := range candidates[1:] {
			if c.area() > largest.area() {
				largest = c
			}
		}
		best = largest.approx(r.opts.ApproxRatio * largest.perimeter())
	}
	if len(best) != 4 {
		x, y, bw, bh := best.boundingRect()
		best = contour{{x, y}, {x + bw, y}, {x + bw, y + bh}, {x, y + bh}}
	}
	return best, true
}
