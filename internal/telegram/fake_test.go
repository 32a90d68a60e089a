package telegram

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/LazarevaL/agro-llm-hack/internal/entity"
	"github.com/LazarevaL/agro-llm-hack/internal/extract"
)

type fakeSender struct {
	mu      sync.Mutex
	nextID  int
	sent    []tgbotapi.Chattable
	fileURL string
	sendErr func(c tgbotapi.Chattable) error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		if err := f.sendErr(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: 100 + f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetFileDirectURL(fileID string) (string, error) {
	return f.fileURL + "/" + fileID, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) edits() []tgbotapi.EditMessageTextConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.EditMessageTextConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) keyboardCleared() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.sent {
		if _, ok := c.(tgbotapi.EditMessageReplyMarkupConfig); ok {
			return true
		}
	}
	return false
}

type fakeGateway struct {
	mu      sync.Mutex
	queries []string
	result  entity.ExtractionResult
	err     error
}

func (f *fakeGateway) Submit(_ context.Context, text string) (entity.ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	return f.result, f.err
}

type fakeExtractor struct {
	text  string
	err   error
	paths []string
}

func (f *fakeExtractor) Supports(string) bool { return true }

func (f *fakeExtractor) Extract(_ context.Context, path string) (extract.Result, error) {
	f.paths = append(f.paths, path)
	return extract.Result{Text: f.text}, f.err
}

type fakeStore struct {
	mu   sync.Mutex
	rows []entity.StoredOperation
	err  error
}

func (f *fakeStore) Insert(_ context.Context, ops []entity.StoredOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, ops...)
	return nil
}
