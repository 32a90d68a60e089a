package rectify

import (
	"image"
	"math"
)

// gaussianKernel returns a normalized 1-D kernel. sigma <= 0 derives sigma
// from the size, and the common 5-tap case uses the binomial weights.
func gaussianKernel(size int, sigma float64) []float64 {
	if size <= 0 {
		size = int(math.Round(sigma*3*2+1)) | 1
	}
	if sigma <= 0 && size == 5 {
		return []float64{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}
	}
	if sigma <= 0 {
		sigma = 0.3*(float64(size-1)*0.5-1) + 0.8
	}
	k := make([]float64, size)
	half := size / 2
	sum := 0.0
	for i := range k {
		x := float64(i - half)
		k[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// convolveSeparable applies k horizontally then vertically with mirrored
// borders and returns unrounded values.
func convolveSeparable(src []float64, w, h int, k []float64) []float64 {
	half := len(k) / 2
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range k {
				acc += kv * row[reflect101(x+i-half, w)]
			}
			tmp[y*w+x] = acc
		}
	}
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range k {
				acc += kv * tmp[reflect101(y+i-half, h)*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

func grayToFloat(g *image.Gray) []float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = float64(g.Pix[y*g.Stride+x])
		}
	}
	return out
}

func floatToGray(v []float64, w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Pix[y*g.Stride+x] = saturate(v[y*w+x])
		}
	}
	return g
}

func gaussianBlur(g *image.Gray, size int, sigma float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	return floatToGray(convolveSeparable(grayToFloat(g), w, h, gaussianKernel(size, sigma)), w, h)
}

// unsharp sharpens g as 1.5*g - 0.5*gauss(g, sigma), saturating to 8 bits.
func unsharp(g *image.Gray, sigma float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	soft := gaussianBlur(g, 0, sigma)
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = 1.5*float64(g.Pix[y*g.Stride+x]) - 0.5*float64(soft.Pix[y*soft.Stride+x])
		}
	}
	return floatToGray(out, w, h)
}

// canny detects edges with 3x3 Sobel gradients, L1 magnitude, non-maximum
// suppression and hysteresis between low and high. Edge pixels are 255.
func canny(g *image.Gray, low, high float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	at := func(x, y int) float64 {
		return float64(g.Pix[reflect101(y, h)*g.Stride+reflect101(x, w)])
	}
	dx := make([]float64, w*h)
	dy := make([]float64, w*h)
	mag := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) - (at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			gy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) - (at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			i := y*w + x
			dx[i], dy[i] = gx, gy
			mag[i] = math.Abs(gx) + math.Abs(gy)
		}
	}
	magAt := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	const (
		tan22 = 0.4142135623730950
		tan67 = 2.4142135623730950
	)
	// 0 none, 1 candidate, 2 strong
	state := make([]uint8, w*h)
	var stack []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}
			ax, ay := math.Abs(dx[i]), math.Abs(dy[i])
			var a, b float64
			switch {
			case ay < ax*tan22:
				a, b = magAt(x-1, y), magAt(x+1, y)
			case ay > ax*tan67:
				a, b = magAt(x, y-1), magAt(x, y+1)
			default:
				s := 1
				if (dx[i] < 0) != (dy[i] < 0) {
					s = -1
				}
				a, b = magAt(x-s, y-1), magAt(x+s, y+1)
			}
			if !(m > a && m >= b) {
				continue
			}
			if m > high {
				state[i] = 2
				stack = append(stack, i)
			} else {
				state[i] = 1
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Pix[(i/w)*out.Stride+i%w] = 255
		x, y := i%w, i/w
		for ny := y - 1; ny <= y+1; ny++ {
			for nx := x - 1; nx <= x+1; nx++ {
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == 1 {
					state[j] = 2
					stack = append(stack, j)
				}
			}
		}
	}
	return out
}

// dilate3x3 replaces every pixel with the maximum of its 3x3 neighbourhood.
func dilate3x3(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var m uint8
			for ny := max(y-1, 0); ny <= min(y+1, h-1); ny++ {
				for nx := max(x-1, 0); nx <= min(x+1, w-1); nx++ {
					if v := g.Pix[ny*g.Stride+nx]; v > m {
						m = v
					}
				}
			}
			out.Pix[y*out.Stride+x] = m
		}
	}
	return out
}
