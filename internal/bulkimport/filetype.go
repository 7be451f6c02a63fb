package bulkimport

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var spreadsheetExts = map[string]bool{
	".xls": true, ".xlsx": true, ".xlsm": true, ".xlsb": true, ".ods": true,
}

var spreadsheetMIMEs = []string{
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.oasis.opendocument.spreadsheet",
	"application/x-ole-storage",
	"application/zip",
}

// CheckFileType accepts CSV and other text-like files. Spreadsheets are
// rejected by extension or by content with ErrExcelNotSupported.
func CheckFileType(fileName string, head []byte) error {
	if spreadsheetExts[strings.ToLower(filepath.Ext(fileName))] {
		return ErrExcelNotSupported
	}
	if len(head) == 0 {
		return nil
	}
	mt := mimetype.Detect(head)
	for _, m := range spreadsheetMIMEs {
		if mt.Is(m) {
			return ErrExcelNotSupported
		}
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	return fmt.Errorf("%w: detected %s", ErrUnsupportedFileType, mt.String())
}
