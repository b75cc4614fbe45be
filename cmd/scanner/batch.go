package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/cardlens/scanner/internal/infrastructure/store"
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Identify every card photo in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

func imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	files, err := imageFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", args[0])
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	out := a.outputPath()
	writer, err := store.NewCSVWriter(out)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Image", "Card", "Price (USD)", "Via", "Status"})

	resolved := 0
	for _, path := range files {
		result, err := a.identify.Identify(cmd.Context(), path)
		name := filepath.Base(path)
		if err != nil {
			t.AppendRow(table.Row{name, "-", "-", "-", err.Error()})
			continue
		}

		if err := writer.WriteRow(*result.Card, *result.Price, path); err != nil {
			log.Printf("CSV write failed for %s: %v", path, err)
		}
		resolved++
		t.AppendRow(table.Row{
			name,
			fmt.Sprintf("%s (%s)", result.Card.Name, result.Card.CardID),
			orDash(result.Price.TCGPlayerMarketUSD),
			identifiedBy(result),
			"ok",
		})
	}
	t.Render()

	fmt.Printf("%d/%d images resolved, output in %s\n", resolved, len(files), out)
	if resolved == 0 {
		return fmt.Errorf("no images could be identified")
	}
	return nil
}
