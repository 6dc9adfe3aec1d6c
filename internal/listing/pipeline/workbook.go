package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/models"
)

// Workbook is the spreadsheet collaborator. Rows and columns are 0-based.
type Workbook interface {
	SelectSheet(name string) error
	Dimension() (rows, cols int)
	CellAt(row, col int) string
	Write(row, col int, value string) error
	SaveAs(path string) error
}

// Layout locates the header row and first data row of a template sheet.
type Layout struct {
	Sheet        string `json:"sheet"`
	HeaderRow    int    `json:"headerRow"`
	FirstDataRow int    `json:"firstDataRow"`
}

// DefaultLayout is a header on the first row followed by data.
func DefaultLayout(sheet string) Layout {
	return Layout{Sheet: sheet, HeaderRow: 0, FirstDataRow: 1}
}

// header reads the normalized column ids; empty headers map to "".
func header(wb Workbook, layout Layout) []models.FieldID {
	_, cols := wb.Dimension()
	out := make([]models.FieldID, cols)
	for c := 0; c < cols; c++ {
		out[c] = models.NormalizeFieldID(wb.CellAt(layout.HeaderRow, c))
	}
	return out
}

// LoadTemplate reads a source sheet into an integrity-checked template and
// returns its distinct column ids in sheet order.
func LoadTemplate(wb Workbook, layout Layout, scope models.Scope, aliases *models.AliasTable) (*models.Template, []models.FieldID, error) {
	if err := selectSheet(wb, layout); err != nil {
		return nil, nil, err
	}
	cols := header(wb, layout)
	rows, _ := wb.Dimension()

	var data []map[models.FieldID]string
	for r := layout.FirstDataRow; r < rows; r++ {
		row := make(map[models.FieldID]string)
		for c, id := range cols {
			if id == "" {
				continue
			}
			if v := strings.TrimSpace(wb.CellAt(r, c)); v != "" {
				row[id] = v
			}
		}
		if len(row) > 0 {
			data = append(data, row)
		}
	}

	tpl, err := models.NewTemplate(scope, aliases, data)
	if err != nil {
		return nil, nil, err
	}
	return tpl, distinct(cols), nil
}

// TargetFields returns the distinct column ids of a target sheet.
func TargetFields(wb Workbook, layout Layout) ([]models.FieldID, error) {
	if err := selectSheet(wb, layout); err != nil {
		return nil, err
	}
	return distinct(header(wb, layout)), nil
}

// selectSheet reports a missing sheet as a schema error, fatal for the run.
func selectSheet(wb Workbook, layout Layout) error {
	if err := wb.SelectSheet(layout.Sheet); err != nil {
		return apperrors.NewSchemaError("Missing sheet",
			fmt.Sprintf("sheet %q was not found in the workbook: %v", layout.Sheet, err)).
			WithMetadata("sheet", layout.Sheet)
	}
	return nil
}

func distinct(cols []models.FieldID) []models.FieldID {
	seen := make(map[models.FieldID]bool)
	var out []models.FieldID
	for _, id := range cols {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// WriteOutput writes one row per SKU under the sheet's existing header.
func WriteOutput(wb Workbook, layout Layout, skus []models.SKU, values models.ValueMap) error {
	if err := wb.SelectSheet(layout.Sheet); err != nil {
		return fmt.Errorf("select sheet %q: %w", layout.Sheet, err)
	}
	cols := header(wb, layout)
	for i, sku := range skus {
		row := layout.FirstDataRow + i
		for c, id := range cols {
			if id == "" {
				continue
			}
			if v := values.Get(sku, id); v != "" {
				if err := wb.Write(row, c, v); err != nil {
					return fmt.Errorf("write %s/%s: %w", sku, id, err)
				}
			}
		}
	}
	return nil
}

// ==========================
// In-memory workbook
// ==========================

// MemorySheet is a Workbook of named in-memory sheets.
type MemorySheet struct {
	mu      sync.RWMutex
	sheets  map[string][][]string
	current string
}

func NewMemorySheet() *MemorySheet {
	return &MemorySheet{sheets: make(map[string][][]string)}
}

// AddSheet stores a copy of rows under name.
func (m *MemorySheet) AddSheet(name string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([][]string, len(rows))
	for i, r := range rows {
		cp[i] = append([]string(nil), r...)
	}
	m.sheets[name] = cp
}

// Rows returns a copy of a sheet's cells.
func (m *MemorySheet) Rows(name string) [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.sheets[name]
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

func (m *MemorySheet) SelectSheet(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[name]; !ok {
		return fmt.Errorf("no sheet named %q", name)
	}
	m.current = name
	return nil
}

func (m *MemorySheet) Dimension() (rows, cols int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sheet := m.sheets[m.current]
	for _, r := range sheet {
		if len(r) > cols {
			cols = len(r)
		}
	}
	return len(sheet), cols
}

func (m *MemorySheet) CellAt(row, col int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sheet := m.sheets[m.current]
	if row < 0 || row >= len(sheet) || col < 0 || col >= len(sheet[row]) {
		return ""
	}
	return sheet[row][col]
}

func (m *MemorySheet) Write(row, col int, value string) error {
	if row < 0 || col < 0 {
		return fmt.Errorf("cell %d,%d out of range", row, col)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sheet := m.sheets[m.current]
	for len(sheet) <= row {
		sheet = append(sheet, nil)
	}
	for len(sheet[row]) <= col {
		sheet[row] = append(sheet[row], "")
	}
	sheet[row][col] = value
	m.sheets[m.current] = sheet
	return nil
}

// SaveAs writes the selected sheet as CSV.
func (m *MemorySheet) SaveAs(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m.mu.RLock()
	name := m.current
	m.mu.RUnlock()

	w := csv.NewWriter(f)
	if err := w.WriteAll(m.Rows(name)); err != nil {
		return err
	}
	return f.Close()
}
