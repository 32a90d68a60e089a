package constants

import "strings"

// FileKind is the closed set of attachment variants.
type FileKind string

const (
	KindText        FileKind = "TEXT"
	KindOffice      FileKind = "OFFICE"
	KindImageTable  FileKind = "IMAGE_TABLE"
	KindSpreadsheet FileKind = "SPREADSHEET"
)

// FileKinds holds every attachment variant.
var FileKinds = []FileKind{KindText, KindOffice, KindImageTable, KindSpreadsheet}

// extensionKinds maps a normalized extension to its variant.
var extensionKinds = map[string]FileKind{
	"txt":  KindText,
	"md":   KindText,
	"csv":  KindText,
	"doc":  KindOffice,
	"docx": KindOffice,
	"odt":  KindOffice,
	"rtf":  KindOffice,
	"html": KindOffice,
	"htm":  KindOffice,
	"pdf":  KindOffice,
	"jpg":  KindImageTable,
	"jpeg": KindImageTable,
	"png":  KindImageTable,
	"webp": KindImageTable,
	"bmp":  KindImageTable,
	"tif":  KindImageTable,
	"tiff": KindImageTable,
	"xlsx": KindSpreadsheet,
	"xlsm": KindSpreadsheet,
	"xls":  KindSpreadsheet,
}

// MaxAttachmentBytes is the default upper bound for a downloaded attachment.
const MaxAttachmentBytes = 10_000_000

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// KindForExt returns the variant handling ext, or false when the extension is unsupported.
func KindForExt(ext string) (FileKind, bool) {
	k, ok := extensionKinds[NormalizeExt(ext)]
	return k, ok
}
