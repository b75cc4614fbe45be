package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/cardlens/scanner/internal/domain"
	"github.com/cardlens/scanner/internal/infrastructure/store"
)

var scanNoCSV bool

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Identify a single card photo",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanNoCSV, "no-csv", false, "do not append the result to the output CSV")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.identify.Identify(cmd.Context(), args[0])
	if err != nil {
		renderDiagnostics(result)
		return err
	}

	renderResult(result)

	if !scanNoCSV {
		out := a.outputPath()
		writer, err := store.NewCSVWriter(out)
		if err != nil {
			return err
		}
		if err := writer.WriteRow(*result.Card, *result.Price, args[0]); err != nil {
			return err
		}
		fmt.Printf("appended to %s\n", out)
	}
	return nil
}

// renderResult prints the identified card and its pricing as a table.
func renderResult(result *domain.IdentifyResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Field", "Value"})

	card := result.Card
	t.AppendRows([]table.Row{
		{"Card", fmt.Sprintf("%s (%s)", card.Name, card.CardID)},
		{"Set", fmt.Sprintf("%s [%s]", card.SetName, card.SetID)},
		{"Number", card.Number},
		{"Rarity", card.Rarity},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"TCGplayer market (USD)", orDash(result.Price.TCGPlayerMarketUSD)},
		{"Cardmarket trend (EUR)", orDash(result.Price.CardmarketTrendEUR)},
		{"Cardmarket 30d avg (EUR)", orDash(result.Price.CardmarketAvg30EUR)},
		{"Price sources", orDash(strings.Join(result.Price.PriceSources, ", "))},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Identified by", identifiedBy(result)},
		{"From cache", result.FromCache},
	})
	t.Render()

	renderDiagnostics(result)
}

// renderDiagnostics prints visual candidates when any were produced.
func renderDiagnostics(result *domain.IdentifyResult) {
	if result == nil || len(result.Candidates) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Card ID", "Distance", "Inliers", "Confidence"})
	for i, c := range result.Candidates {
		t.AppendRow(table.Row{i + 1, c.CardID,
			fmt.Sprintf("%.4f", c.Distance), c.Inliers, fmt.Sprintf("%.3f", c.Confidence)})
	}
	t.Render()
}

func identifiedBy(result *domain.IdentifyResult) string {
	if result.Visual {
		return "visual match"
	}
	return "OCR"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
