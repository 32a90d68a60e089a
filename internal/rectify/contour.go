package rectify

import (
	"image"
	"math"
)

// contour is a closed polygon through pixel centres.
type contour []image.Point

var moore = [8]image.Point{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

func mooreIndex(d image.Point) int {
	for i, m := range moore {
		if m == d {
			return i
		}
	}
	return 0
}

// externalContours returns the outer borders of the 8-connected foreground
// components of bin that are not enclosed by another component. Straight
// runs are compressed to their end points.
func externalContours(bin *image.Gray) []contour {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	fg := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && bin.Pix[y*bin.Stride+x] != 0
	}

	// Background reachable from outside the image through 4-connected steps.
	outside := make([]bool, w*h)
	var queue []int
	seed := func(x, y int) {
		if !fg(x, y) && !outside[y*w+x] {
			outside[y*w+x] = true
			queue = append(queue, y*w+x)
		}
	}
	for x := 0; x < w; x++ {
		seed(x, 0)
		seed(x, h-1)
	}
	for y := 0; y < h; y++ {
		seed(0, y)
		seed(w-1, y)
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		x, y := i%w, i/w
		for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d.X, y+d.Y
			if nx >= 0 && ny >= 0 && nx < w && ny < h {
				seed(nx, ny)
			}
		}
	}

	label := make([]int, w*h)
	var out []contour
	next := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !fg(x, y) || label[y*w+x] != 0 {
				continue
			}
			next++
			if external := floodLabel(bin, label, outside, x, y, next); !external {
				continue
			}
			out = append(out, compress(traceBorder(fg, image.Pt(x, y), 4*w*h+8)))
		}
	}
	return out
}

// floodLabel marks the 8-connected component containing (x,y) and reports
// whether it touches the image edge or outside background.
func floodLabel(bin *image.Gray, label []int, outside []bool, x, y, id int) bool {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	external := false
	stack := []int{y*w + x}
	label[y*w+x] = id
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cx, cy := i%w, i/w
		if cx == 0 || cy == 0 || cx == w-1 || cy == h-1 {
			external = true
		}
		for _, d := range moore {
			nx, ny := cx+d.X, cy+d.Y
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			j := ny*w + nx
			if bin.Pix[ny*bin.Stride+nx] == 0 {
				if d.X == 0 || d.Y == 0 {
					external = external || outside[j]
				}
				continue
			}
			if label[j] == 0 {
				label[j] = id
				stack = append(stack, j)
			}
		}
	}
	return external
}

// traceBorder follows the outer border clockwise from start, the first
// foreground pixel of its component in raster order. limit caps the walk.
func traceBorder(fg func(x, y int) bool, start image.Point, limit int) contour {
	pts := contour{start}
	cur := start
	back := 4 // arrived from the west
	var second image.Point
	for steps := 0; steps < limit; steps++ {
		found := -1
		for i := 1; i <= 8; i++ {
			d := (back + i) % 8
			n := cur.Add(moore[d])
			if fg(n.X, n.Y) {
				found = d
				break
			}
		}
		if found < 0 {
			return pts
		}
		n := cur.Add(moore[found])
		if steps == 0 {
			second = n
		} else if cur == start && n == second {
			return pts[:len(pts)-1]
		}
		prev := cur.Add(moore[(found+7)%8])
		back = mooreIndex(prev.Sub(n))
		cur = n
		pts = append(pts, n)
	}
	return pts
}

// compress drops points lying inside straight horizontal, vertical or diagonal runs.
func compress(c contour) contour {
	if len(c) < 3 {
		return c
	}
	out := make(contour, 0, len(c))
	n := len(c)
	for i := range c {
		prev, cur, nxt := c[(i-1+n)%n], c[i], c[(i+1)%n]
		if cur.Sub(prev) == nxt.Sub(cur) {
			continue
		}
		out = append(out, cur)
	}
	if len(out) == 0 {
		return contour{c[0]}
	}
	return out
}

// area is the absolute shoelace area of the polygon.
func (c contour) area() float64 {
	if len(c) < 3 {
		return 0
	}
	s := 0
	for i := range c {
		a, b := c[i], c[(i+1)%len(c)]
		s += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(float64(s)) / 2
}

// perimeter is the closed arc length.
func (c contour) perimeter() float64 {
	if len(c) < 2 {
		return 0
	}
	p := 0.0
	for i := range c {
		p += dist(c[i], c[(i+1)%len(c)])
	}
	return p
}

// boundingRect returns the inclusive pixel box of c as x, y, w, h.
func (c contour) boundingRect() (x, y, w, h int) {
	if len(c) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY, maxX, maxY := c[0].X, c[0].Y, c[0].X, c[0].Y
	for _, p := range c[1:] {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}
	return minX, minY, maxX - minX + 1, maxY - minY + 1
}

// approx simplifies the closed polygon with Douglas-Peucker at tolerance eps.
func (c contour) approx(eps float64) contour {
	n := len(c)
	if n <= 3 {
		return append(contour(nil), c...)
	}
	far, best := 0, -1.0
	for i, p := range c {
		if d := dist(c[0], p); d > best {
			far, best = i, d
		}
	}
	if far == 0 {
		return contour{c[0]}
	}

	first := douglasPeucker(c[:far+1], eps)
	ring := append(append(contour(nil), c[far:]...), c[0])
	second := douglasPeucker(ring, eps)

	out := append(contour(nil), first[:len(first)-1]...)
	out = append(out, second[:len(second)-1]...)
	return out
}

func douglasPeucker(pts contour, eps float64) contour {
	if len(pts) < 3 {
		return append(contour(nil), pts...)
	}
	a, b := pts[0], pts[len(pts)-1]
	idx, best := 0, -1.0
	for i := 1; i < len(pts)-1; i++ {
		if d := lineDist(pts[i], a, b); d > best {
			idx, best = i, d
		}
	}
	if best <= eps {
		return contour{a, b}
	}
	left := douglasPeucker(pts[:idx+1], eps)
	right := douglasPeucker(pts[idx:], eps)
	return append(left[:len(left)-1], right...)
}

func lineDist(p, a, b image.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	if dx == 0 && dy == 0 {
		return dist(p, a)
	}
	return math.Abs(dy*float64(p.X-a.X)-dx*float64(p.Y-a.Y)) / math.Hypot(dx, dy)
}

func dist(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
