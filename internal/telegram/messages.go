package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/LazarevaL/agro-llm-hack/internal/correction"
)

const (
	msgHelp = "Пришлите отчёт о полевых работах текстом, фото таблицы или файлом " +
		"(txt, docx, doc, pdf, xlsx, xls, jpg, png). Бот заполнит сводную таблицу " +
		"и уточнит значения, которые не удалось распознать.\n\n" +
		"/help - показать это сообщение\n/cancel - отменить уточнение отчёта"
	msgDisallowed      = "Извините, у вас нет доступа к этому боту."
	msgFileTooLarge    = "Загруженный файл слишком большой ⚠️ Модель не может его обработать."
	msgFileProcessing  = "Файл обрабатывается 🤖"
	msgBuildingReport  = "Формирую отчёт 📝"
	msgFileUnreadable  = "К сожалению, модель не может обработать данный файл 😢 Приложите отчёт в текстовом виде, пожалуйста."
	msgCancelled       = "Уточнение отчёта отменено."
	msgNothingToCancel = "Нет отчёта, ожидающего уточнения."
	msgCommitFailed    = "Не удалось записать отчёт в сводную таблицу ⚠️"
	msgPendingFormat   = "Сначала завершите уточнение предыдущего отчёта: ожидается значение для поля '%s'. Отправьте /cancel, чтобы отменить его."
)

func verdictKeyboard() tgbotapi.InlineKeyboardMarkup {
	yes := tgbotapi.NewInlineKeyboardButtonData(correction.AcceptLabel, correction.CallbackAccept)
	no := tgbotapi.NewInlineKeyboardButtonData(correction.RejectLabel, correction.CallbackReject)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(yes, no))
}

func emptyKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
}
