package jobqueue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devlibx/logrecovery/jobqueue"
	"github.com/devlibx/logrecovery/logfile"
)

var userExtent = logfile.Extent{TableID: 100, EndRow: []byte("z")}

func job(group string, priority int, files ...string) jobqueue.CompactionJob {
	return jobqueue.CompactionJob{Group: group, Priority: priority, Files: files, Kind: "minor"}
}

func TestPollOrdersByPriorityThenFIFO(t *testing.T) {
	s := jobqueue.New(1000)
	s.Add(userExtent, job("g1", 1, "a"), job("g1", 5, "b"), job("g1", 5, "c"), job("g1", 2, "d"))

	var got []string
	for {
		j, ok := s.Poll("g1")
		if !ok {
			break
		}
		got = append(got, j.Files[0])
	}
	require.Equal(t, []string{"b", "c", "d", "a"}, got)
}

func TestGroupsAreIndependent(t *testing.T) {
	s := jobqueue.New(1000)
	s.Add(userExtent, job("g1", 1, "a"))
	require.Equal(t, 0, s.GetQueuedJobCount("g2"))
	require.Equal(t, 1, s.GetQueuedJobCount("g1"))
	require.Equal(t, 2, s.GetQueueCount())
}

func TestWeightBoundRejectsOverflow(t *testing.T) {
	// Each job costs len(Files)+1; bound of 3 fits exactly one 2-file job.
	s := jobqueue.New(3)
	s.Add(userExtent, job("g1", 1, "a", "b"))
	require.Equal(t, int64(0), s.RejectedJobCount("g1"))

	s.Add(userExtent, job("g1", 1, "c", "d"))
	require.Equal(t, int64(1), s.RejectedJobCount("g1"))
	require.Equal(t, 1, s.GetQueuedJobCount("g1"))
}

func TestEndFullScanEvictsStaleGenerationOnly(t *testing.T) {
	s := jobqueue.New(1000)
	s.BeginFullScan(jobqueue.LevelUser)
	s.Add(userExtent, job("g1", 1, "stale"))

	s.BeginFullScan(jobqueue.LevelUser)
	s.Add(userExtent, job("g1", 1, "fresh"))

	s.EndFullScan(jobqueue.LevelUser)
	require.Equal(t, 1, s.GetQueuedJobCount("g1"))
	j, ok := s.Poll("g1")
	require.True(t, ok)
	require.Equal(t, "fresh", j.Files[0])
}

func TestEndFullScanLeavesOtherLevelsAlone(t *testing.T) {
	s := jobqueue.New(1000)
	s.BeginFullScan(jobqueue.LevelUser)
	s.Add(userExtent, job("g1", 1, "user-job"))

	metaExtent := logfile.Extent{TableID: jobqueue.MetadataTableID}
	s.BeginFullScan(jobqueue.LevelMetadata)
	s.Add(metaExtent, job("g1", 1, "meta-job"))

	s.EndFullScan(jobqueue.LevelUser)
	require.Equal(t, 2, s.GetQueuedJobCount("g1"))
}

func TestGetAsyncWakesWaiterDirectly(t *testing.T) {
	s := jobqueue.New(1000)
	done := make(chan jobqueue.CompactionJob, 1)
	go func() {
		j, err := s.GetAsync(context.Background(), "g1")
		require.NoError(t, err)
		done <- j
	}()

	// Give the goroutine a chance to register as a waiter.
	time.Sleep(10 * time.Millisecond)
	s.Add(userExtent, job("g1", 1, "woken"))

	select {
	case j := <-done:
		require.Equal(t, "woken", j.Files[0])
	case <-time.After(time.Second):
		t.Fatal("getAsync never woke")
	}
	require.Equal(t, 0, s.GetQueuedJobCount("g1"))
}

func TestGetAsyncReturnsQueuedJobImmediately(t *testing.T) {
	s := jobqueue.New(1000)
	s.Add(userExtent, job("g1", 1, "already-here"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j, err := s.GetAsync(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, "already-here", j.Files[0])
}

func TestGetAsyncAbandonOnCancelDoesNotLeakWaiter(t *testing.T) {
	s := jobqueue.New(1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.GetAsync(ctx, "g1")
	require.Error(t, err)

	// The group must not carry a stale waiter: a subsequent Add queues
	// rather than trying to deliver to the abandoned waiter.
	s.Add(userExtent, job("g1", 1, "later"))
	require.Equal(t, 1, s.GetQueuedJobCount("g1"))
}

func TestResetMaxSizeAppliesToExistingGroups(t *testing.T) {
	s := jobqueue.New(1000)
	s.Add(userExtent, job("g1", 1, "a"))
	s.ResetMaxSize(1)
	s.Add(userExtent, job("g1", 1, "b"))
	require.Equal(t, int64(1), s.RejectedJobCount("g1"))
}

func TestConcurrentAddAndPollRespectsWeightBound(t *testing.T) {
	s := jobqueue.New(50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(userExtent, job("g1", i%5, "f"))
		}(i)
	}
	wg.Wait()

	count := 0
	for {
		if _, ok := s.Poll("g1"); !ok {
			break
		}
		count++
	}
	require.LessOrEqual(t, int64(count*2), int64(50))
}
