package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/LazarevaL/agro-llm-hack/internal/common"
)

func hasAttachment(m *tgbotapi.Message) bool {
	return m.Document != nil || len(m.Photo) > 0
}

// attachment returns the file id, a file name and the declared size. Photos
// resolve to their largest rendition.
func attachment(m *tgbotapi.Message) (string, string, int) {
	if m.Document != nil {
		name := m.Document.FileName
		if name == "" {
			name = "document"
		}
		return m.Document.FileID, name, m.Document.FileSize
	}
	best := m.Photo[len(m.Photo)-1]
	return best.FileID, "image.jpg", best.FileSize
}

// readAttachment downloads the file into the upload dir, extracts its text and
// removes the local copy.
func (h *Handler) readAttachment(ctx context.Context, fileID, name string) (string, error) {
	if !h.extractor.Supports(name) {
		return "", common.NewAppError(common.CodeAttachment, "unsupported file "+name, common.ErrUnsupported)
	}
	path, err := h.download(ctx, fileID, name)
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(path) }()

	res, err := h.extractor.Extract(ctx, path)
	if err != nil {
		return "", err
	}
	for _, w := range res.Warnings {
		h.logger.Debug("telegram.attachment.warning", "file", name, "warning", w)
	}
	return res.Text, nil
}

func (h *Handler) download(ctx context.Context, fileID, name string) (string, error) {
	url, err := h.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", common.NewAppError(common.CodeAttachment, "resolve file url", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return "", common.NewAppError(common.CodeAttachment, "download file", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", common.NewAppError(common.CodeAttachment, fmt.Sprintf("download file: status %d", resp.StatusCode), nil)
	}

	dir := h.cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, uuid.NewString()+"-"+filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	limit := h.maxBytes()
	n, err := io.Copy(f, io.LimitReader(resp.Body, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = common.NewAppError(common.CodeAttachment, "file exceeds size limit", common.ErrInvalidInput)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}
