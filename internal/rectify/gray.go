package rectify

import (
	"image"
	"image/draw"
	"math"
)

// toGray converts img to an 8-bit luma plane with origin (0,0).
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// normalizeMinMax stretches g linearly to the full 0..255 range. A flat
// image maps to zero.
func normalizeMinMax(g *image.Gray) *image.Gray {
	lo, hi := uint8(255), uint8(0)
	for _, v := range g.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := image.NewGray(g.Rect)
	if hi == lo {
		return out
	}
	scale := 255 / float64(hi-lo)
	for i, v := range g.Pix {
		out.Pix[i] = saturate(float64(v-lo) * scale)
	}
	return out
}

func saturate(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// reflect101 maps an out-of-range index into [0, n) mirroring around the
// edge pixels without repeating them (abcd|cba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
