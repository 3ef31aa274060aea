package extract

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const contentTypeSheet = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SheetHandler extracts cell text from XLSX workbooks, one row per line.
type SheetHandler struct{}

func (h *SheetHandler) Name() string { return "xlsx" }

func (h *SheetHandler) CanHandle(info FileInfo, _ io.ReadSeeker) bool {
	return strings.ToLower(filepath.Ext(info.Filename)) == ".xlsx" ||
		info.ContentType == contentTypeSheet
}

func (h *SheetHandler) ReadText(info FileInfo, r io.ReadSeeker) (string, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	var lines []string
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			log.Printf("⚠️  [EXTRACT] Skipping sheet %q of %s: %v", sheet, info.Filename, err)
			continue
		}
		for _, row := range rows {
			var cells []string
			for _, cell := range row {
				if c := strings.TrimSpace(cell); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " "))
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}
