package rectify

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// OutputPath is where RectifyFile writes the binarized copy of path.
func OutputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_binarized.jpg"
}

// RectifyFile loads the image at path honouring EXIF orientation, rectifies
// it and writes a JPEG next to it. It returns the written path.
func (r *Rectifier) RectifyFile(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	out := OutputPath(path)
	if err := imaging.Save(r.Rectify(img), out, imaging.JPEGQuality(95)); err != nil {
		return "", fmt.Errorf("save binarized image: %w", err)
	}
	r.log.Info("rectify.file.ok", "input", path, "output", out)
	return out, nil
}
