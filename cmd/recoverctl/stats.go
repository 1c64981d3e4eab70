package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/devlibx/logrecovery/jobqueue"
	"github.com/devlibx/logrecovery/logfile"
)

// parseJobLine parses "group priority nfiles" into a synthetic
// compaction job, for feeding a queue from a plain-text fixture.
func parseJobLine(line string) (jobqueue.CompactionJob, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return jobqueue.CompactionJob{}, errors.Newf("recoverctl: malformed job line %q", line)
	}
	priority, err := strconv.Atoi(fields[1])
	if err != nil {
		return jobqueue.CompactionJob{}, errors.Newf("recoverctl: bad priority in %q", line)
	}
	nfiles, err := strconv.Atoi(fields[2])
	if err != nil {
		return jobqueue.CompactionJob{}, errors.Newf("recoverctl: bad file count in %q", line)
	}
	files := make([]string, nfiles)
	for i := range files {
		files[i] = fmt.Sprintf("f%d", i)
	}
	return jobqueue.CompactionJob{Group: fields[0], Priority: priority, Files: files, Kind: "minor"}, nil
}

func statsCommand() *cobra.Command {
	var input string
	var graph bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Load a synthetic job listing into a queue set and report its depth per group",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := os.Stdin
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			qs := jobqueue.New(queueMaxWeight)
			extent := logfile.Extent{TableID: jobqueue.MetadataTableID + 1}

			var depthTrace []float64
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				j, err := parseJobLine(line)
				if err != nil {
					return err
				}
				qs.Add(extent, j)
				total := 0
				for _, g := range qs.GroupIDs() {
					total += qs.GetQueuedJobCount(g)
				}
				depthTrace = append(depthTrace, float64(total))
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			for _, g := range qs.GroupIDs() {
				fmt.Printf("group=%s queued=%d rejected=%d\n", g, qs.GetQueuedJobCount(g), qs.RejectedJobCount(g))
			}
			fmt.Printf("groups=%d\n", qs.GetQueueCount())

			if graph && len(depthTrace) > 0 {
				fmt.Println(asciigraph.Plot(depthTrace, asciigraph.Height(10), asciigraph.Caption("queue depth over time")))
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&input, "input", "-", "job listing to read: \"group priority nfiles\" per line (default: stdin)")
	flags.BoolVar(&graph, "graph", false, "render an ASCII sparkline of queue depth as jobs are added")
	return cmd
}
