package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <root-dir>",
	Short: "List batch files under an SDK root directory",
	Long: `Inspect walks an SDK root directory and prints every feature's
consent partitions with their batch counts, sizes and ages.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := collectBatchRows(args[0], time.Now())
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			cmd.Println("no batch files found")
			return nil
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Feature", "Partition", "Batches", "Size", "Oldest", "Newest"})
		table.SetBorder(false)
		for _, r := range rows {
			table.Append(r)
		}
		table.Render()
		return nil
	},
}

// collectBatchRows aggregates one table row per non-empty consent
// partition.
func collectBatchRows(root string, now time.Time) ([][]string, error) {
	features, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read root directory: %w", err)
	}

	var rows [][]string
	for _, feat := range features {
		if !feat.IsDir() {
			continue
		}
		for _, partition := range []string{"granted", "pending", "unauthorized"} {
			dir := filepath.Join(root, feat.Name(), "v2", partition)
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}

			var count int
			var total int64
			var oldest, newest time.Time
			for _, e := range entries {
				millis, err := strconv.ParseInt(e.Name(), 10, 64)
				if err != nil {
					continue
				}
				info, err := e.Info()
				if err != nil {
					continue
				}
				created := time.UnixMilli(millis)
				count++
				total += info.Size()
				if oldest.IsZero() || created.Before(oldest) {
					oldest = created
				}
				if created.After(newest) {
					newest = created
				}
			}
			if count == 0 {
				continue
			}
			rows = append(rows, []string{
				feat.Name(),
				partition,
				strconv.Itoa(count),
				fmt.Sprintf("%dB", total),
				now.Sub(oldest).Truncate(time.Second).String(),
				now.Sub(newest).Truncate(time.Second).String(),
			})
		}
	}
	return rows, nil
}
