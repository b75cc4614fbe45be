package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/cardlens/scanner/config"
	"github.com/cardlens/scanner/internal/infrastructure/poketcg"
	"github.com/cardlens/scanner/internal/match"
	"github.com/cardlens/scanner/internal/vision"
)

var indexResolveMeta bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the reference embedding index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build <refs-dir>",
	Short: "Embed reference card images and build the index",
	Long:  "Builds the ANN index from a directory of reference images. Each file must\nbe named after its card ID, e.g. base1-4.jpg.",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexBuild,
}

var indexInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show reference index statistics",
	Args:  cobra.NoArgs,
	RunE:  runIndexInfo,
}

func init() {
	indexBuildCmd.Flags().BoolVar(&indexResolveMeta, "resolve", false,
		"fetch card names and set data from the API while building")
	indexCmd.AddCommand(indexBuildCmd, indexInfoCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	files, err := imageFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no reference images found in %s", args[0])
	}

	embedder, err := vision.NewEmbedder(cfg.Vision.ModelPath)
	if err != nil {
		return err
	}
	defer embedder.Close()

	var client *poketcg.Client
	if indexResolveMeta {
		limiter := rate.NewLimiter(rate.Limit(cfg.API.RatePerSec), 1)
		client = poketcg.NewClient(cfg.API.APIKey, cfg.API.BaseURL, limiter)
	}

	index := match.NewIndex(vision.EmbeddingDim, cfg.Index.EfSearch)

	added := 0
	for _, path := range files {
		cardID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		vec, err := embedder.EmbedFile(path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			continue
		}

		meta := match.ReferenceMeta{CardID: cardID, ImagePath: path}
		if client != nil {
			if card, err := client.GetCard(cmd.Context(), cardID); err != nil {
				log.Printf("could not resolve %s, indexing without metadata: %v", cardID, err)
			} else {
				meta.Name = card.Name
				meta.SetID = card.SetID
				meta.Number = card.Number
				meta.Rarity = card.Rarity
			}
		}

		if err := index.Add(vec, meta); err != nil {
			return fmt.Errorf("index %s: %w", cardID, err)
		}
		added++
		if added%100 == 0 {
			log.Printf("indexed %d/%d references", added, len(files))
		}
	}

	if added == 0 {
		return fmt.Errorf("no reference images could be embedded")
	}

	if err := index.Save(cfg.Index.Dir); err != nil {
		return err
	}
	fmt.Printf("indexed %d/%d references into %s\n", added, len(files), cfg.Index.Dir)
	return nil
}

func runIndexInfo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	index, err := match.LoadIndex(cfg.Index.Dir, cfg.Index.EfSearch)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Property", "Value"})
	t.AppendRows([]table.Row{
		{"Directory", cfg.Index.Dir},
		{"Embeddings", index.Len()},
		{"Dimension", index.Dim()},
		{"efSearch", cfg.Index.EfSearch},
	})
	if info, err := os.Stat(filepath.Join(cfg.Index.Dir, match.GraphFileName)); err == nil {
		t.AppendRow(table.Row{"Graph size", fmt.Sprintf("%.1f MiB", float64(info.Size())/(1<<20))})
	}
	t.Render()
	return nil
}
