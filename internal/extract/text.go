package extract

import (
	"bytes"
	"context"
	"os"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Text reads plain-text attachments as UTF-8.
type Text struct{}

func (Text) Extract(_ context.Context, path string) (Result, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	b = bytes.TrimPrefix(b, utf8BOM)
	s := strings.ToValidUTF8(string(b), "�")
	return Result{Text: strings.TrimSpace(s), Method: "text", Pages: 1}, nil
}
