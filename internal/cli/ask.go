package cli

import (
	"encoding/json"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"wikirag/internal/service"
	"wikirag/internal/tui"
)

var (
	askMinScore   float64
	askCollection string
	askJSON       bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question, or open the interactive console without one",
	Args:  cobra.ArbitraryArgs,
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().Float64Var(&askMinScore, "min-score", -1, "minimum similarity score (default from config)")
	askCmd.Flags().StringVarP(&askCollection, "collection", "c", "", "collection to search (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer payload as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := build()
	if err != nil {
		return err
	}
	defer a.Close()

	minScore := askMinScore
	if minScore < 0 {
		minScore = a.Config.Query.MinScore
	}
	collection := askCollection
	if collection == "" {
		collection = a.Query.DefaultCollection()
	}

	if len(args) == 0 {
		_, err := tea.NewProgram(tui.New(a.Query, collection, minScore), tea.WithAltScreen()).Run()
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	ans := a.Query.Answer(ctx, strings.Join(args, " "), minScore, collection)
	if askJSON {
		data, err := json.MarshalIndent(ans, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
	} else {
		printAnswer(cmd, ans)
	}
	if ans.Error != "" {
		return errors.New(ans.Error)
	}
	return nil
}

func printAnswer(cmd *cobra.Command, ans service.Answer) {
	if ans.Error != "" {
		return
	}
	cmd.Println(ans.Answer)
	if len(ans.FilesUsed) == 0 {
		return
	}
	cmd.Println()
	cmd.Println("Sources:")
	for _, ev := range ans.FilesUsed {
		if ev.PageNumber > 0 {
			cmd.Printf("  %s (p.%d, %s) score=%.3f\n", ev.FilePath, ev.PageNumber, ev.FileDate, ev.Score)
		} else {
			cmd.Printf("  %s (%s) score=%.3f\n", ev.FilePath, ev.FileDate, ev.Score)
		}
	}
}
