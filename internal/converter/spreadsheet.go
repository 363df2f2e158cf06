package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"file-conversion-service/internal/codec"
	"file-conversion-service/internal/entity"
)

// Spreadsheet pivots every conversion through the in-memory tabular model:
// parse first, then either re-render through the codec (tabular targets)
// or map the model structurally into markup or key/value form. Cells are
// never converted one by one without the model.
type Spreadsheet struct {
	codec codec.Provider
}

func NewSpreadsheet(p codec.Provider) *Spreadsheet {
	return &Spreadsheet{codec: p}
}

var tabularTargets = map[string]struct{}{
	"xlsx": {}, "xls": {}, "csv": {}, "ods": {}, "tsv": {},
}

func (c *Spreadsheet) Convert(ctx context.Context, inputPath, targetFormat string, opts entity.ConvertOptions) (Result, error) {
	table, err := c.codec.ParseTabular(ctx, inputPath)
	if err != nil {
		return Result{}, err
	}

	var data []byte
	if _, tabular := tabularTargets[targetFormat]; tabular {
		data, err = c.codec.RenderTabular(ctx, table, targetFormat)
		if err != nil {
			return Result{}, err
		}
	} else {
		data, err = exportStructural(table, targetFormat)
		if err != nil {
			return Result{}, err
		}
	}
	return writeOutput(outputPathFor(inputPath, targetFormat), data)
}

// exportStructural maps the tabular model into a non-tabular shape: JSON
// objects keyed by the header row, an HTML table, or tab-separated text.
func exportStructural(table codec.Table, target string) ([]byte, error) {
	switch target {
	case "json":
		return tableToJSON(table)
	case "html":
		return tableToHTML(table), nil
	case "txt":
		return []byte(tableToText(table)), nil
	case "pdf":
		return textToPDF(tableToText(table)), nil
	default:
		return nil, fmt.Errorf("no structural mapping for %q", target)
	}
}

func tableToJSON(table codec.Table) ([]byte, error) {
	if len(table) == 0 {
		return []byte("[]"), nil
	}

	header := table[0]
	rows := make([]map[string]string, 0, len(table)-1)
	for _, row := range table[1:] {
		obj := make(map[string]string, len(header))
		for i, key := range header {
			if key == "" {
				key = fmt.Sprintf("column_%d", i+1)
			}
			if i < len(row) {
				obj[key] = row[i]
			} else {
				obj[key] = ""
			}
		}
		rows = append(rows, obj)
	}
	return json.MarshalIndent(rows, "", "  ")
}

func tableToHTML(table codec.Table) []byte {
	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"></head>\n<body>\n<table>\n")
	for i, row := range table {
		tag := "td"
		if i == 0 {
			tag = "th"
		}
		b.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(&b, "<%s>%s</%s>", tag, html.EscapeString(cell), tag)
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</table>\n</body>\n</html>\n")
	return b.Bytes()
}

func tableToText(table codec.Table) string {
	lines := make([]string, len(table))
	for i, row := range table {
		lines[i] = strings.Join(row, "\t")
	}
	return strings.Join(lines, "\n")
}
