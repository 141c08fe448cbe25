package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Izanyoi/dictadoc-web/internal/archive"
	"github.com/Izanyoi/dictadoc-web/internal/audio"
	"github.com/Izanyoi/dictadoc-web/internal/command"
	"github.com/Izanyoi/dictadoc-web/internal/transcript"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newInspectCommand() *cobra.Command {
	var showEntries bool

	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Summarize a transcript archive without starting a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read archive: %w", err)
			}
			doc, err := archive.Decode(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderArchiveSummary(doc, len(data)))
			if showEntries && len(doc.Entries) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderArchiveEntries(doc.Entries))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showEntries, "entries", "e", false, "List every transcript entry")
	return cmd
}

func renderArchiveSummary(doc *archive.Document, archiveBytes int) string {
	length := "unknown"
	if d, err := audio.Duration(doc.Audio); err == nil {
		length = transcript.FormatTimestamp(d.Milliseconds())
	}
	rows := [][]string{
		{"Title", doc.Title},
		{"Created", doc.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST")},
		{"Tags", strings.Join(doc.Tags, ", ")},
		{"Entries", strconv.Itoa(len(doc.Entries))},
		{"Audio", humanize.IBytes(uint64(len(doc.Audio)))},
		{"Length", length},
		{"Archive", humanize.IBytes(uint64(archiveBytes))},
	}
	return command.RenderTable([]string{"Field", "Value"}, rows, nil)
}

func renderArchiveEntries(entries []transcript.Entry) string {
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			transcript.FormatTimestamp(e.Timing),
			e.Speaker,
			e.Content,
		})
	}
	return command.RenderTable(
		[]string{"#", "At", "Speaker", "Content"},
		rows,
		[]command.ColumnAlignment{command.AlignRight, command.AlignRight},
	)
}
