package recoverylog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ledger, err := Open(path)
	require.NoError(t, err)
	defer ledger.Close()

	started := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.Record(RunRecord{
		StartedAt: started, FinishedAt: started.Add(time.Second),
		SealedCount: 3, OpenTailDelta: 1, GraphsProcessed: 1,
	}))
	require.NoError(t, ledger.Record(RunRecord{
		StartedAt: started.Add(time.Hour), FinishedAt: started.Add(time.Hour + time.Second),
		SealedCount: 0, OpenTailDelta: 0, GraphsProcessed: 1, Aborted: true,
	}))

	recent, err := ledger.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Aborted)
	assert.Equal(t, 3, recent[1].SealedCount)
}
