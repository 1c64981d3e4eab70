// Package jobqueue implements CompactionJobQueueSet: bounded,
// weight-based priority queues, one per resource group, with
// asynchronous getAsync dequeue and generation-based staleness
// eviction, per spec §4.5.
package jobqueue

import "github.com/devlibx/logrecovery/logfile"

// DataLevel is the tier of the metadata hierarchy a tablet belongs to.
type DataLevel int

const (
	LevelRoot DataLevel = iota
	LevelMetadata
	LevelUser

	numLevels
)

func (l DataLevel) String() string {
	switch l {
	case LevelRoot:
		return "root"
	case LevelMetadata:
		return "metadata"
	case LevelUser:
		return "user"
	default:
		return "unknown"
	}
}

// MetadataTableID is the well-known table id of the metadata table,
// the second tier of the hierarchy below the root tablet.
const MetadataTableID uint64 = 1

// LevelOf returns the data level a tablet belonging to tableID sits
// at, per the glossary's root/metadata/user hierarchy.
func LevelOf(tableID uint64) DataLevel {
	switch tableID {
	case logfile.RootTableID:
		return LevelRoot
	case MetadataTableID:
		return LevelMetadata
	default:
		return LevelUser
	}
}

// CompactionJob is an immutable description of a compaction unit, per
// spec §3.
type CompactionJob struct {
	Extent   logfile.Extent
	Group    string
	Priority int
	Files    []string
	Kind     string
}

// Weigher assigns a non-negative cost to a queued job, for bounding a
// group queue's total size.
type Weigher func(CompactionJob) int64

// DefaultWeigher costs a job by its file count, plus one so an empty
// file set still consumes queue budget.
func DefaultWeigher(j CompactionJob) int64 { return int64(len(j.Files)) + 1 }
