package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	run   func(name string, args []string) ([]byte, []byte, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, args: args})
	f.mu.Unlock()
	return f.run(name, args)
}

func TestImageRunsTesseractWithLanguageAndPSM(t *testing.T) {
	fr := &fakeRunner{run: func(string, []string) ([]byte, []byte, error) {
		return []byte("Пахота  зяби\r\n-----\nОтд 12   45/1234\n\n\n\n"), nil, nil
	}}
	e := NewEngine(Config{PSM: 6, TessdataDir: "/td"}, nil, WithRunner(fr))

	res, err := e.Image(context.Background(), "/tmp/a.png")
	require.NoError(t, err)
	require.Len(t, fr.calls, 1)
	assert.Equal(t, "tesseract", fr.calls[0].name)
	assert.Equal(t, []string{"/tmp/a.png", "stdout", "-l", "rus", "--psm", "6", "--tessdata-dir", "/td"}, fr.calls[0].args)
	assert.Equal(t, "Пахота зяби\n\nОтд 12 45/1234", res.Text)
	assert.Equal(t, "image-ocr", res.Method)
	assert.Equal(t, 1, res.Pages)
}

func TestImageWrapsRunnerError(t *testing.T) {
	fr := &fakeRunner{run: func(string, []string) ([]byte, []byte, error) {
		return nil, []byte("Error opening data file"), errors.New("exit status 1")
	}}
	e := NewEngine(Config{}, nil, WithRunner(fr))

	res, err := e.Image(context.Background(), "x.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract")
	assert.Equal(t, []string{"Error opening data file"}, res.Warnings)
}

func TestPDFRasterizesAndJoinsPages(t *testing.T) {
	fr := &fakeRunner{}
	fr.run = func(name string, args []string) ([]byte, []byte, error) {
		if name == "pdftoppm" {
			prefix := args[len(args)-1]
			for _, n := range []string{"1", "2", "3"} {
				if err := os.WriteFile(prefix+"-"+n+".png", nil, 0o600); err != nil {
					return nil, nil, err
				}
			}
			return nil, nil, nil
		}
		return []byte("page " + filepath.Base(args[0])), nil, nil
	}
	e := NewEngine(Config{DPI: 200, MaxPages: 2}, nil, WithRunner(fr))

	res, err := e.PDF(context.Background(), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, []string{"-r", "200", "-png", "scan.pdf"}, fr.calls[0].args[:4])
	assert.Equal(t, "page page-1.png\n\f\npage page-2.png", res.Text)
	assert.Len(t, fr.calls, 3)
}

func TestPDFWithoutPagesFails(t *testing.T) {
	fr := &fakeRunner{run: func(string, []string) ([]byte, []byte, error) { return nil, nil, nil }}
	e := NewEngine(Config{}, nil, WithRunner(fr))

	_, err := e.PDF(context.Background(), "empty.pdf")
	require.Error(t, err)
}

func TestConvertReturnsOutputPath(t *testing.T) {
	dir := t.TempDir()
	fr := &fakeRunner{run: func(_ string, args []string) ([]byte, []byte, error) {
		return nil, nil, os.WriteFile(filepath.Join(dir, "report.html"), []byte("<p>x</p>"), 0o600)
	}}
	e := NewEngine(Config{Soffice: "lo"}, nil, WithRunner(fr))

	out, err := e.Convert(context.Background(), "/in/report.docx", "html:XHTML Writer File:UTF8", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.html"), out)
	assert.Equal(t, "lo", fr.calls[0].name)
	assert.Equal(t, "--headless", fr.calls[0].args[0])
}

func TestConvertMissingOutput(t *testing.T) {
	fr := &fakeRunner{run: func(string, []string) ([]byte, []byte, error) { return nil, nil, nil }}
	e := NewEngine(Config{}, nil, WithRunner(fr))

	_, err := e.Convert(context.Background(), "a.doc", "xlsx", t.TempDir())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no output"))
}

func TestNormalizeKeepsDigits(t *testing.T) {
	assert.Equal(t, "Дата 05.09\nОтд 07 прошло 01", Normalize("Дата 05.09\t\r\nОтд 07  прошло 01  "))
	assert.Equal(t, "", Normalize(""))
}

func TestHeuristicConfidence(t *testing.T) {
	low := heuristicConfidence("шум")
	high := heuristicConfidence("05.09 Пахота зяби Отд 12 45/1234 га " + strings.Repeat("x", 120))
	assert.InDelta(t, 0.2, low, 1e-6)
	assert.InDelta(t, 0.9, high, 1e-6)
}
