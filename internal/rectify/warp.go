package rectify

import (
	"errors"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
)

type pointF struct{ X, Y float64 }

// orderCorners returns four points as top-left, top-right, bottom-right,
// bottom-left: the extremes of x+y and x-y.
func orderCorners(pts []image.Point) [4]pointF {
	tl, br, tr, bl := pts[0], pts[0], pts[0], pts[0]
	for _, p := range pts[1:] {
		if p.X+p.Y < tl.X+tl.Y {
			tl = p
		}
		if p.X+p.Y > br.X+br.Y {
			br = p
		}
		if p.X-p.Y > tr.X-tr.Y {
			tr = p
		}
		if p.X-p.Y < bl.X-bl.Y {
			bl = p
		}
	}
	f := func(p image.Point) pointF { return pointF{float64(p.X), float64(p.Y)} }
	return [4]pointF{f(tl), f(tr), f(br), f(bl)}
}

// targetSize is the output size of the rectified quad: the longer of each
// pair of opposite edges, truncated.
func targetSize(q [4]pointF) (w, h int) {
	d := func(a, b pointF) int { return int(math.Hypot(a.X-b.X, a.Y-b.Y)) }
	w = max(d(q[0], q[1]), d(q[3], q[2]))
	h = max(d(q[0], q[3]), d(q[1], q[2]))
	return w, h
}

var errSingular = errors.New("rectify: degenerate quadrilateral")

// homography solves the 3x3 projective transform mapping src[i] to dst[i].
func homography(src, dst [4]pointF) (*mat.Dense, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a.SetRow(i, []float64{x, y, 1, 0, 0, 0, -x * u, -y * u})
		a.SetRow(i+4, []float64{0, 0, 0, x, y, 1, -x * v, -y * v})
		b.SetVec(i, u)
		b.SetVec(i+4, v)
	}
	var coef mat.VecDense
	if err := coef.SolveVec(a, b); err != nil {
		// Ill-conditioned systems still yield a usable solution.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, errSingular
		}
	}
	h := mat.NewDense(3, 3, []float64{
		coef.AtVec(0), coef.AtVec(1), coef.AtVec(2),
		coef.AtVec(3), coef.AtVec(4), coef.AtVec(5),
		coef.AtVec(6), coef.AtVec(7), 1,
	})
	return h, nil
}

// warpQuad maps the quad q of src onto a w x h rectangle. Samples outside
// src are black.
func warpQuad(src *image.Gray, q [4]pointF, w, h int) (*image.Gray, error) {
	dst := [4]pointF{{0, 0}, {float64(w - 1), 0}, {float64(w - 1), float64(h - 1)}, {0, float64(h - 1)}}
	// Map output pixels back into the source.
	inv, err := homography(dst, q)
	if err != nil {
		return nil, err
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	at := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= sw || y >= sh {
			return 0
		}
		return float64(src.Pix[y*src.Stride+x])
	}
	h00, h01, h02 := inv.At(0, 0), inv.At(0, 1), inv.At(0, 2)
	h10, h11, h12 := inv.At(1, 0), inv.At(1, 1), inv.At(1, 2)
	h20, h21, h22 := inv.At(2, 0), inv.At(2, 1), inv.At(2, 2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx, fy := float64(x), float64(y)
			den := h20*fx + h21*fy + h22
			if den == 0 {
				continue
			}
			sx := (h00*fx + h01*fy + h02) / den
			sy := (h10*fx + h11*fy + h12) / den
			x0, y0 := int(math.Floor(sx)), int(math.Floor(sy))
			ax, ay := sx-float64(x0), sy-float64(y0)
			top := at(x0, y0)*(1-ax) + at(x0+1, y0)*ax
			bottom := at(x0, y0+1)*(1-ax) + at(x0+1, y0+1)*ax
			out.Pix[y*out.Stride+x] = saturate(top*(1-ay) + bottom*ay)
		}
	}
	return out, nil
}
