package logreader

import (
	"sort"

	"github.com/cockroachdb/pebble/vfs"
)

// ResolvedSortedLog is a directory containing an ordered set of sorted
// recovery-log files that together form one WAL, per spec §3. File
// boundaries within a directory are a physical concern only; the
// logical total order spans every file in Children.
type ResolvedSortedLog struct {
	Path     string
	Children []string
}

// Dir returns the directory's identity, used in diagnostics and in
// the validateFirstKey CorruptLogError.
func (d ResolvedSortedLog) Dir() string { return d.Path }

// OpenDir resolves a ResolvedSortedLog by listing fs's directory at
// path and sorting its entries, mirroring the order the sorter writes
// numbered output files in.
func OpenDir(fs vfs.FS, path string) (ResolvedSortedLog, error) {
	names, err := fs.List(path)
	if err != nil {
		return ResolvedSortedLog{}, ioErrorf("logreader: listing %s: %v", path, err)
	}
	sort.Strings(names)
	return ResolvedSortedLog{Path: path, Children: names}, nil
}
