package spreadsheet

import (
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/staffimport/internal/core"
	"github.com/xuri/excelize/v2"
)

// TemplateSheet is the worksheet name of the upload template.
const TemplateSheet = "Сотрудники"

// TemplateFileName is the download name of the template.
const TemplateFileName = "employees-import-template.xlsx"

// templateRows is how far down drop-down lists reach.
const templateRows = 1000

// dropLists restricts coded columns to their accepted values.
var dropLists = map[string][]string{
	core.ColDocType:               {"в", "з"},
	core.ColDocGender:             {"м", "ж"},
	core.ColPermCanOrder:          {"да", "нет"},
	core.ColPermCanOrderForOthers: {"да", "нет"},
	core.ColPermCanViewFinReports: {"да", "нет"},
}

// WriteTemplate writes an .xlsx workbook with the title row, one example row
// and drop-down lists for coded columns.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), TemplateSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		return fmt.Errorf("create date style: %w", err)
	}

	for i, col := range core.Columns {
		title, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(TemplateSheet, title, col.Title); err != nil {
			return fmt.Errorf("write title %s: %w", col.Key, err)
		}

		example, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return err
		}
		if err := writeExample(f, example, col, dateStyle); err != nil {
			return fmt.Errorf("write example %s: %w", col.Key, err)
		}

		if values, ok := dropLists[col.Key]; ok {
			if err := addDropList(f, i+1, values); err != nil {
				return fmt.Errorf("add drop list %s: %w", col.Key, err)
			}
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(core.Columns))
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(TemplateSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style title row: %w", err)
	}
	if err := f.SetColWidth(TemplateSheet, "A", lastCol, 20); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetPanes(TemplateSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze title row: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeExample(f *excelize.File, cell string, col core.Column, dateStyle int) error {
	if col.Example == "" {
		return nil
	}
	if core.IsDateColumn(col.Key) {
		t, err := time.Parse(core.DateLayout, col.Example)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(TemplateSheet, cell, t); err != nil {
			return err
		}
		return f.SetCellStyle(TemplateSheet, cell, cell, dateStyle)
	}
	return f.SetCellStr(TemplateSheet, cell, col.Example)
}

func addDropList(f *excelize.File, col int, values []string) error {
	from, err := excelize.CoordinatesToCellName(col, 2)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(col, templateRows)
	if err != nil {
		return err
	}

	dv := excelize.NewDataValidation(true)
	dv.Sqref = from + ":" + to
	if err := dv.SetDropList(values); err != nil {
		return err
	}
	return f.AddDataValidation(TemplateSheet, dv)
}
