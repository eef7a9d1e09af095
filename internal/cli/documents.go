package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wikirag/internal/domain"
	"wikirag/internal/manifest"
)

var documentsJSON bool

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List the ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

func init() {
	documentsCmd.Flags().BoolVar(&documentsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(documentsCmd)
}

// runDocuments reads the fingerprint store only; no model or index is contacted.
func runDocuments(cmd *cobra.Command, _ []string) error {
	store, err := manifest.Open(cfg.Manifest.Driver, cfg.Manifest.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(context.Background())
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if documentsJSON {
		byPath := make(map[string]domain.FingerprintRecord, len(records))
		for _, r := range records {
			byPath[r.FilePath] = r
		}
		data, err := json.MarshalIndent(byPath, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}
	if len(records) == 0 {
		cmd.Println("No documents ingested yet.")
		return nil
	}
	for _, r := range records {
		cmd.Printf("%-16s %4d passages  %s  %s\n", r.Collection, r.ChunksCount, r.IngestedAt.Format(time.DateTime), r.FilePath)
	}
	return nil
}
