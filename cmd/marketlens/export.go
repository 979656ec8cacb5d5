package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/kalambet/marketlens/internal/config"
	"github.com/kalambet/marketlens/internal/storage"
)

// Excel rejects cells longer than this.
const maxCellLen = 32767

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the cached segments and personas to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.All()
		if err != nil {
			return fmt.Errorf("reading cache: %w", err)
		}
		if len(records) == 0 {
			printWarning("No cached personas. Run an analysis first.")
			return nil
		}

		if err := writeXLSX(output, records); err != nil {
			return err
		}
		printSuccess("Exported %d segments to %s", len(records), output)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "personas.xlsx", "output workbook path")
}

// writeXLSX writes records to a single "Personas" sheet with the cache
// columns as header row.
func writeXLSX(path string, records []storage.Record) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Personas")
	if err != nil {
		return fmt.Errorf("xlsx: add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, col := range storage.Columns {
		header.AddCell().SetString(col)
	}

	for _, rec := range records {
		row := sheet.AddRow()
		for _, v := range []string{
			rec.Timestamp,
			rec.QueryHash,
			rec.SegmentName,
			rec.SegmentKey,
			rec.DetailedAnalysis,
			rec.RevenueAnalysis,
			rec.Persona,
			rec.ValueProposition,
		} {
			if len(v) > maxCellLen {
				v = v[:maxCellLen]
			}
			row.AddCell().SetString(v)
		}
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", path, err)
	}
	return nil
}
