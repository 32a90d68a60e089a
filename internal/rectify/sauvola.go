package rectify

import (
	"image"
	"math"
)

// sauvola binarizes g with threshold mean*(1 + k*(std/r - 1)) over a
// window x window neighbourhood. Pixels above the threshold become 255.
func sauvola(g *image.Gray, window int, k, r float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	// Integral images of values and squares, one row and column of padding.
	sum := make([]float64, (w+1)*(h+1))
	sq := make([]float64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		rowSum, rowSq := 0.0, 0.0
		for x := 0; x < w; x++ {
			v := float64(g.Pix[y*g.Stride+x])
			rowSum += v
			rowSq += v * v
			i := (y+1)*(w+1) + x + 1
			sum[i] = sum[i-(w+1)] + rowSum
			sq[i] = sq[i-(w+1)] + rowSq
		}
	}
	rect := func(t []float64, x0, y0, x1, y1 int) float64 {
		return t[y1*(w+1)+x1] - t[y0*(w+1)+x1] - t[y1*(w+1)+x0] + t[y0*(w+1)+x0]
	}

	half := window / 2
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		y0, y1 := max(y-half, 0), min(y+half+1, h)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-half, 0), min(x+half+1, w)
			n := float64((x1 - x0) * (y1 - y0))
			mean := rect(sum, x0, y0, x1, y1) / n
			variance := rect(sq, x0, y0, x1, y1)/n - mean*mean
			std := math.Sqrt(math.Max(variance, 0))
			threshold := mean * (1 + k*(std/r-1))
			if float64(g.Pix[y*g.Stride+x]) > threshold {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}
