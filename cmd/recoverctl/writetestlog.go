package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/spf13/cobra"

	"github.com/devlibx/logrecovery/logfile"
	"github.com/devlibx/logrecovery/logreader"
	"github.com/devlibx/logrecovery/logreader/testlog"
)

// parseTestlogLine parses "EVENT tabletId seq [extra]" into a
// synthetic log entry, the same line shape recoveryiter's
// datadriven tests use, so a hand-written fixture can be reused
// across the test suite and this CLI.
func parseTestlogLine(line string) (testlog.Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return testlog.Entry{}, errors.Newf("recoverctl: malformed testlog line %q", line)
	}
	tabletID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return testlog.Entry{}, errors.Newf("recoverctl: bad tabletId in %q", line)
	}
	seq, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return testlog.Entry{}, errors.Newf("recoverctl: bad seq in %q", line)
	}
	k := logfile.Key{TabletID: tabletID, Seq: seq}
	var v logfile.Value
	switch fields[0] {
	case "OPEN":
		k.Event = logfile.Open
	case "DEFINE_TABLET":
		k.Event = logfile.DefineTablet
	case "COMPACTION_START":
		k.Event = logfile.CompactionStart
		if len(fields) > 3 {
			k.Filename = fields[3]
		}
	case "COMPACTION_FINISH":
		k.Event = logfile.CompactionFinish
	case "MUTATION":
		k.Event = logfile.Mutation
		if len(fields) > 3 {
			v.Mutations = []logfile.Mutation{{Row: []byte(fields[3])}}
		}
	case "MANY_MUTATIONS":
		k.Event = logfile.ManyMutations
		if len(fields) > 3 {
			v.Mutations = []logfile.Mutation{{Row: []byte(fields[3])}}
		}
	default:
		return testlog.Entry{}, errors.Newf("recoverctl: unknown event kind %q", fields[0])
	}
	return testlog.Entry{Key: k, Val: v}, nil
}

func parseChecksum(s string) (logreader.ChecksumType, error) {
	switch s {
	case "crc32", "":
		return logreader.ChecksumCRC32, nil
	case "xxhash64":
		return logreader.ChecksumXXHash64, nil
	default:
		return 0, errors.Newf("recoverctl: unknown --checksum %q", s)
	}
}

func parseCompression(s string) (logreader.Compression, error) {
	switch s {
	case "none", "":
		return logreader.NoCompression, nil
	case "snappy":
		return logreader.SnappyCompression, nil
	case "zstd":
		return logreader.ZstdCompression, nil
	default:
		return 0, errors.Newf("recoverctl: unknown --compression %q", s)
	}
}

func writeTestlogCommand() *cobra.Command {
	var path, input, checksum, compression string

	cmd := &cobra.Command{
		Use:   "write-testlog",
		Short: "Build a synthetic recovery log file from a plain-text entry listing",
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

			typ, err := parseChecksum(checksum)
			if err != nil {
				return err
			}
			comp, err := parseCompression(compression)
			if err != nil {
				return err
			}

			var entries []testlog.Entry
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				e, err := parseTestlogLine(line)
				if err != nil {
					return err
				}
				entries = append(entries, e)
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			if err := testlog.WriteFile(vfs.Default, path, typ, comp, entries); err != nil {
				return errors.Wrapf(err, "recoverctl: writing %q", path)
			}
			fmt.Printf("wrote %d entries to %s\n", len(entries), path)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&path, "path", "", "destination log file path")
	flags.StringVar(&input, "input", "-", "entry listing to read (default: stdin)")
	flags.StringVar(&checksum, "checksum", "crc32", "checksum algorithm: crc32 or xxhash64")
	flags.StringVar(&compression, "compression", "none", "block compression: none, snappy, or zstd")
	if err := cmd.MarkFlagRequired("path"); err != nil {
		panic(err)
	}
	return cmd
}
