package main

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/ghemawat/stream"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
)

// sortedLines streams path through ghemawat/stream's Sort/Uniq
// filters, normalizing a mutation dump's row order so two recovery
// runs that replayed the same mutations in different merge order
// still diff as equal.
func sortedLines(path string) ([]string, error) {
	var buf bytes.Buffer
	if err := stream.Run(
		stream.ReadLines(path),
		stream.Sort(),
		stream.Uniq(),
		stream.WriteLines(&buf),
	); err != nil {
		return nil, errors.Wrapf(err, "recoverctl: reading mutation dump %q", path)
	}
	var lines []string
	for _, l := range bytes.Split(buf.Bytes(), []byte("\n")) {
		if len(l) == 0 {
			continue
		}
		lines = append(lines, string(l))
	}
	return lines, nil
}

func diffMutationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff-mutations <dump1> <dump2>",
		Short: "Line-diff two mutation dumps from separate recovery runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := sortedLines(args[0])
			if err != nil {
				return err
			}
			b, err := sortedLines(args[1])
			if err != nil {
				return err
			}
			diff := difflib.UnifiedDiff{
				A:        a,
				B:        b,
				FromFile: args[0],
				ToFile:   args[1],
				Context:  3,
			}
			text, err := difflib.GetUnifiedDiffString(diff)
			if err != nil {
				return err
			}
			if text == "" {
				fmt.Println("mutation dumps are identical (after row-order normalization)")
				return nil
			}
			fmt.Print(text)
			return nil
		},
	}
	return cmd
}
