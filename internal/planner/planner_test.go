package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clariah/quadsync/internal/catalog"
)

func files(names ...string) []*catalog.InputFile {
	out := make([]*catalog.InputFile, len(names))
	for i, n := range names {
		out[i] = &catalog.InputFile{Name: n, Path: "/src/" + n}
	}
	return out
}

func TestPlanZeroFilesReturnsEmptyOpenTail(t *testing.T) {
	sealed, tail, err := Plan(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, sealed)
	require.NotNil(t, tail)
	assert.Equal(t, OpenTail, tail.Kind)
	assert.Empty(t, tail.Files)
}

func TestPlanOneFileIsHeldBackEntirely(t *testing.T) {
	sealed, tail, err := Plan(files("a"), 10)
	require.NoError(t, err)
	assert.Empty(t, sealed)
	assert.Empty(t, tail.Files)
}

func TestPlanExactlyMaxBatchSizePlusOneSealsOneBatch(t *testing.T) {
	// maxBatchSize=2, 3 files: hold back the last, 2 eligible, exactly one
	// full sealed window, empty tail.
	sealed, tail, err := Plan(files("a", "b", "c"), 2)
	require.NoError(t, err)
	require.Len(t, sealed, 1)
	assert.Equal(t, []string{"a", "b"}, namesOf(sealed[0].Files))
	assert.Empty(t, tail.Files)
}

func TestPlanExactlyMaxBatchSizePlusTwoLeavesOneInTail(t *testing.T) {
	sealed, tail, err := Plan(files("a", "b", "c", "d"), 2)
	require.NoError(t, err)
	require.Len(t, sealed, 1)
	assert.Equal(t, []string{"a", "b"}, namesOf(sealed[0].Files))
	assert.Equal(t, []string{"c"}, namesOf(tail.Files))
}

func TestPlanMultipleSealedBatches(t *testing.T) {
	// 7 files, batch size 2: "g" is held back entirely (not eligible at
	// all this run), leaving 6 eligible files split into three full
	// sealed windows with nothing left over for the tail.
	sealed, tail, err := Plan(files("a", "b", "c", "d", "e", "f", "g"), 2)
	require.NoError(t, err)
	require.Len(t, sealed, 3)
	assert.Equal(t, []string{"a", "b"}, namesOf(sealed[0].Files))
	assert.Equal(t, []string{"c", "d"}, namesOf(sealed[1].Files))
	assert.Equal(t, []string{"e", "f"}, namesOf(sealed[2].Files))
	assert.Empty(t, tail.Files)
}

func TestPlanIsDeterministic(t *testing.T) {
	in := files("a", "b", "c", "d", "e")
	sealed1, tail1, err := Plan(in, 2)
	require.NoError(t, err)
	sealed2, tail2, err := Plan(in, 2)
	require.NoError(t, err)

	require.Len(t, sealed1, len(sealed2))
	for i := range sealed1 {
		assert.Equal(t, namesOf(sealed1[i].Files), namesOf(sealed2[i].Files))
	}
	assert.Equal(t, namesOf(tail1.Files), namesOf(tail2.Files))
}

func TestPlanRejectsOutOfRangeMaxBatchSize(t *testing.T) {
	_, _, err := Plan(files("a"), 0)
	assert.Error(t, err)

	_, _, err = Plan(files("a"), MaxBatchSizeLimit+1)
	assert.Error(t, err)
}

func TestBatchURISet(t *testing.T) {
	b := &Batch{Files: files("a", "b")}
	set := b.URISet()
	assert.Len(t, set, 2)
	_, ok := set["a"]
	assert.True(t, ok)
}

func namesOf(in []*catalog.InputFile) []string {
	out := make([]string, len(in))
	for i, f := range in {
		out[i] = f.Name
	}
	return out
}
