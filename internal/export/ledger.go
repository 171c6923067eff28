package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tallybook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Ledger"

// EntryLister returns every locally recorded entry, newest first.
type EntryLister interface {
	ListAll(ctx context.Context) ([]models.QueueEntry, error)
}

// LedgerExporter writes the local ledger to XLSX workbooks.
type LedgerExporter struct {
	entries EntryLister
	dir     string
	logger  *zerolog.Logger
}

func NewLedgerExporter(entries EntryLister, dir string, logger *zerolog.Logger) *LedgerExporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LedgerExporter{entries: entries, dir: dir, logger: logger}
}

var headers = []string{
	"Local ID", "Date", "Type", "Category", "Description", "Amount",
	"Owner", "Status", "Server ID", "Recorded", "Synced",
}

// Export writes all entries and returns the workbook path.
func (e *LedgerExporter) Export(ctx context.Context) (string, error) {
	entries, err := e.entries.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("list entries: %w", err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	pendingStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFEB9C"}, Pattern: 1},
	})

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle)

	for i := range entries {
		row := i + 2
		if err := writeRow(f, row, &entries[i]); err != nil {
			return "", err
		}
		if !entries[i].Synced {
			_ = f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row), pendingStyle)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "H", 14)
	_ = f.SetColWidth(sheetName, "I", "K", 22)

	fileName := fmt.Sprintf("ledger_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	e.logger.Info().Str("path", filePath).Int("entries", len(entries)).Msg("Ledger exported")
	return filePath, nil
}

func writeRow(f *excelize.File, row int, entry *models.QueueEntry) error {
	status := "pending"
	serverID := ""
	synced := ""
	if entry.Synced {
		status = "synced"
	}
	if entry.ServerID != nil {
		serverID = *entry.ServerID
	}
	if entry.SyncedAt != nil {
		synced = entry.SyncedAt.Format(time.RFC3339)
	}

	p := entry.Payload
	values := []interface{}{
		entry.LocalID,
		p.Date.Format("2006-01-02"),
		string(p.Type),
		p.Category,
		p.Description,
		p.SignedAmount().InexactFloat64(),
		p.OwnerID,
		status,
		serverID,
		entry.CreatedAt.Format(time.RFC3339),
		synced,
	}

	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
