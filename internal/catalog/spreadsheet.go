package catalog

import (
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrEmptySpreadsheet  = errors.New("spreadsheet has no data rows")
	ErrMissingCodeColumn = errors.New("spreadsheet has no product code column")
)

// headerAliases maps accepted column titles to import fields. Titles are
// compared lower-cased with spaces turned into underscores.
var headerAliases = map[string]string{
	"codigo_producto": "code",
	"codigo":          "code",
	"product_code":    "code",
	"code":            "code",
	"sku":             "code",
	"barcode":         "barcode",
	"codigo_barras":   "barcode",
	"descripcion":     "description",
	"description":     "description",
	"cantidad":        "quantity",
	"quantity":        "quantity",
	"stock":           "quantity",
	"unidad_medida":   "unit",
	"unit":            "unit",
	"area":            "area",
	"ubicacion":       "location",
	"location":        "location",
}

// ParseSpreadsheet reads the first sheet of an .xlsx workbook. The first row
// must name the columns; unknown columns are ignored.
func ParseSpreadsheet(r io.Reader) ([]ImportItem, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySpreadsheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, ErrEmptySpreadsheet
	}

	cols := map[string]int{}
	for i, title := range rows[0] {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "_")
		if field, ok := headerAliases[key]; ok {
			if _, seen := cols[field]; !seen {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["code"]; !ok {
		return nil, ErrMissingCodeColumn
	}

	items := make([]ImportItem, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cell := func(field string) string {
			i, ok := cols[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		optional := func(field string) *string {
			if v := cell(field); v != "" {
				return &v
			}
			return nil
		}

		if isBlankRow(row) {
			continue
		}
		items = append(items, ImportItem{
			ProductCode: cell("code"),
			Barcode:     optional("barcode"),
			Description: cell("description"),
			Quantity:    parseQuantity(cell("quantity")),
			Unit:        cell("unit"),
			Area:        optional("area"),
			Location:    optional("location"),
		})
	}
	if len(items) == 0 {
		return nil, ErrEmptySpreadsheet
	}
	return items, nil
}

// parseQuantity accepts integers and spreadsheet decimals ("12.0"). Anything
// else counts as zero stock.
func parseQuantity(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return int(math.Round(f))
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
