package rectify

import (
	"image"
	"math"
)

// clahe applies contrast limited adaptive histogram equalization with a
// tiles x tiles grid. clipLimit is relative to the uniform bin height.
func clahe(g *image.Gray, clipLimit float64, tiles int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 {
		return image.NewGray(g.Rect)
	}
	tiles = max(tiles, 1)
	tileW := (w + min(tiles, w) - 1) / min(tiles, w)
	tileH := (h + min(tiles, h) - 1) / min(tiles, h)
	// rounding the tile size up can leave fewer tiles than requested
	tilesX := (w + tileW - 1) / tileW
	tilesY := (h + tileH - 1) / tileH

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, w), min(y0+tileH, h)
			luts[ty*tilesX+tx] = tileLUT(g, x0, y0, x1, y1, clipLimit)
		}
	}

	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		tyf := float64(y)/float64(tileH) - 0.5
		ty1 := int(math.Floor(tyf))
		ty2 := ty1 + 1
		ya := tyf - float64(ty1)
		ty1 = max(ty1, 0)
		ty2 = min(ty2, tilesY-1)
		for x := 0; x < w; x++ {
			txf := float64(x)/float64(tileW) - 0.5
			tx1 := int(math.Floor(txf))
			tx2 := tx1 + 1
			xa := txf - float64(tx1)
			tx1 = max(tx1, 0)
			tx2 = min(tx2, tilesX-1)

			v := g.Pix[y*g.Stride+x]
			top := float64(luts[ty1*tilesX+tx1][v])*(1-xa) + float64(luts[ty1*tilesX+tx2][v])*xa
			bottom := float64(luts[ty2*tilesX+tx1][v])*(1-xa) + float64(luts[ty2*tilesX+tx2][v])*xa
			out.Pix[y*out.Stride+x] = saturate(top*(1-ya) + bottom*ya)
		}
	}
	return out
}

func tileLUT(g *image.Gray, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	for y := y0; y < y1 && x0 < x1; y++ {
		row := g.Pix[y*g.Stride+x0 : y*g.Stride+x1]
		for _, v := range row {
			hist[v]++
		}
	}
	area := (x1 - x0) * (y1 - y0)
	if area <= 0 {
		var identity [256]uint8
		for i := range identity {
			identity[i] = uint8(i)
		}
		return identity
	}

	if clipLimit > 0 {
		clip := max(int(clipLimit*float64(area)/256), 1)
		excess := 0
		for i := range hist {
			if hist[i] > clip {
				excess += hist[i] - clip
				hist[i] = clip
			}
		}
		batch := excess / 256
		residual := excess - batch*256
		for i := range hist {
			hist[i] += batch
		}
		if residual > 0 {
			step := max(256/residual, 1)
			for i := 0; i < 256 && residual > 0; i += step {
				hist[i]++
				residual--
			}
		}
	}

	var lut [256]uint8
	scale := 255 / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = saturate(float64(sum) * scale)
	}
	return lut
}
