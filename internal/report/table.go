package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
)

type Format string

const (
	TableFormat Format = "table"
	CSVFormat   Format = "csv"
	TSVFormat   Format = "tsv"
)

var noStyle = table.Style{
	Name:   "StyleDefault",
	Box:    table.StyleBoxDefault,
	Color:  table.ColorOptionsDefault,
	Format: table.FormatOptionsDefault,
	HTML:   table.DefaultHTMLOptions,
	Options: table.Options{
		DrawBorder:      false,
		SeparateColumns: false,
		SeparateFooter:  false,
		SeparateHeader:  false,
		SeparateRows:    false,
	},
	Title: table.TitleOptionsDefault,
}

type Column[T any] struct {
	table.ColumnConfig
	Value func(T) string
}

// Output renders items as an aligned table, CSV or TSV.
func Output[T any](w io.Writer, columns []Column[T], format Format, items []T) error {
	headers := lo.Map(columns, func(c Column[T], _ int) string { return c.Name })
	rows := lo.Map(items, func(item T, _ int) []string {
		return lo.Map(columns, func(c Column[T], _ int) string { return c.Value(item) })
	})

	switch format {
	case TSVFormat:
		if _, err := fmt.Fprintln(w, strings.Join(headers, "\t")); err != nil {
			return err
		}
		for _, row := range rows {
			if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
				return err
			}
		}
		return nil
	case TableFormat, CSVFormat:
	default:
		return fmt.Errorf("invalid format %q", format)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	configs := lo.Map(columns, func(c Column[T], i int) table.ColumnConfig {
		config := c.ColumnConfig
		config.Number = i + 1
		return config
	})
	tw.SetColumnConfigs(configs)
	tw.AppendHeader(toRow(headers))
	for _, row := range rows {
		tw.AppendRow(toRow(row))
	}
	tw.SetStyle(noStyle)

	if format == CSVFormat {
		tw.RenderCSV()
	} else {
		tw.Render()
	}
	return nil
}

func toRow(values []string) table.Row {
	return lo.Map(values, func(v string, _ int) interface{} { return v })
}
