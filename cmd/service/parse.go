package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kasuganosora/contentmcp/pkg/ingest"
)

// parseResult is one file's rows in the parse command output
type parseResult struct {
	File string        `json:"file"`
	Rows ingest.RowSet `json:"rows"`
}

func newParseCmd() *cobra.Command {
	var (
		fileType string
		sheet    string
		dataRoot string
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "parse <file>...",
		Short: "Parse spreadsheet files and print their rows as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind ingest.FileKind
			if fileType != "" {
				k, err := ingest.ParseFileKind(fileType)
				if err != nil {
					return err
				}
				kind = k
			}

			ingestor := ingest.NewIngestor(ingest.NewOSFileReader(dataRoot))
			results := make([]parseResult, len(args))

			g, ctx := errgroup.WithContext(cmd.Context())
			if workers > 0 {
				g.SetLimit(workers)
			}
			for i, path := range args {
				src := ingest.SourceFile{Path: path, Kind: kind, Sheet: sheet}
				if src.Kind == "" {
					src.Kind = ingest.DetectFileKind(path)
				}
				g.Go(func() error {
					rows, err := ingestor.Ingest(ctx, src)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					results[i] = parseResult{File: path, Rows: rows}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().StringVar(&fileType, "type", "", "file type: excel or csv (default: by extension)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "sheet name for workbooks")
	cmd.Flags().StringVar(&dataRoot, "data-root", "", "directory relative paths resolve against")
	cmd.Flags().IntVar(&workers, "workers", 4, "maximum files parsed concurrently")
	return cmd
}
