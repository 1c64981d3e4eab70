package recoveryiter_test

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/devlibx/logrecovery/logfile"
	"github.com/devlibx/logrecovery/logreader"
	"github.com/devlibx/logrecovery/logreader/testlog"
	"github.com/devlibx/logrecovery/recoveryiter"
)

// parseEntry parses one line of the form "EVENT tabletId seq [extra]"
// into a synthetic log entry, for the merge/build datadriven commands.
func parseEntry(t *testing.T, line string) testlog.Entry {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		t.Fatalf("malformed entry line %q", line)
	}
	tabletID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		t.Fatalf("bad tabletId in %q: %v", line, err)
	}
	seq, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		t.Fatalf("bad seq in %q: %v", line, err)
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
		t.Fatalf("unknown event kind %q", fields[0])
	}
	return testlog.Entry{Key: k, Val: v}
}

func formatEntry(k logfile.Key, v logfile.Value) string {
	var extra string
	switch k.Event {
	case logfile.CompactionStart:
		extra = " " + k.Filename
	case logfile.Mutation, logfile.ManyMutations:
		if len(v.Mutations) > 0 {
			extra = " " + string(v.Mutations[0].Row)
		}
	}
	return fmt.Sprintf("%s %d %d%s", k.Event, k.TabletID, k.Seq, extra)
}

func TestDataDriven(t *testing.T) {
	fs := vfs.NewMem()
	datadriven.RunTest(t, "testdata/merge", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "build":
			var dir, file string
			d.ScanArgs(t, "dir", &dir)
			d.ScanArgs(t, "file", &file)
			var entries []testlog.Entry
			for _, line := range strings.Split(strings.TrimSpace(d.Input), "\n") {
				if line == "" {
					continue
				}
				entries = append(entries, parseEntry(t, line))
			}
			if err := testlog.WriteFile(fs, dir+"/"+file, logreader.ChecksumCRC32, logreader.NoCompression, entries); err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return "ok"

		case "merge":
			var dir string
			d.ScanArgs(t, "dir", &dir)
			validate := d.HasArg("validateFirstKey")

			rd, err := logreader.OpenDir(fs, dir)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			it, err := recoveryiter.New([]logreader.ResolvedSortedLog{rd}, recoveryiter.Options{
				ValidateFirstKey: validate,
				ReaderOptions:    logreader.OpenOptions{FS: fs},
			})
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			defer it.Close()

			var sb strings.Builder
			for {
				k, v, ok, err := it.Next()
				if err != nil {
					fmt.Fprintf(&sb, "error: %v\n", err)
					break
				}
				if !ok {
					break
				}
				sb.WriteString(formatEntry(k, v))
				sb.WriteString("\n")
			}
			return sb.String()

		default:
			t.Fatalf("unknown command %q", d.Cmd)
			return ""
		}
	})
}

