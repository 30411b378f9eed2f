package rsxml

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileThenReadFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "resource-dump.xml")

	doc := NewResourceDump("https://example.org/capability-list.xml", "2020-01-01T00:00:00Z")
	doc.Add("https://example.org/part_def_00000.zip", "2020-01-01T00:00:00Z", "deadbeef", 1024, "")
	doc.Touch("2020-01-02T00:00:00Z")
	require.NoError(t, doc.Save(path))

	loaded, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded.URLs, 1)
	assert.Equal(t, "https://example.org/part_def_00000.zip", loaded.URLs[0].Loc)
	assert.Equal(t, "2020-01-02T00:00:00Z", loaded.MD.Completed)
	assert.Equal(t, "2020-01-01T00:00:00Z", loaded.MD.At)
}

func TestMarshalProducesXMLHeader(t *testing.T) {
	doc := NewSourceDescription()
	out, err := Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), `<?xml version="1.0"`)
	assert.Contains(t, string(out), `<urlset`)
}

func TestResourceDumpAddAndRemove(t *testing.T) {
	rd := NewResourceDump("https://example.org/capability-list.xml", "2020-01-01T00:00:00Z")
	rd.Add("https://example.org/a.zip", "2020-01-01T00:00:00Z", "aaaa", 1, "")
	rd.Add("https://example.org/b.zip", "2020-01-01T00:00:00Z", "bbbb", 2, "")
	require.Len(t, rd.Entries(), 2)

	removed := rd.Remove("https://example.org/a.zip")
	assert.True(t, removed)
	require.Len(t, rd.Entries(), 1)
	assert.Equal(t, "https://example.org/b.zip", rd.Entries()[0].Loc)

	assert.False(t, rd.Remove("https://example.org/not-present.zip"))
}

func TestAddCapabilityListIsIdempotent(t *testing.T) {
	doc := NewSourceDescription()
	assert.True(t, AddCapabilityList(doc, "https://example.org/a/capability-list.xml"))
	assert.False(t, AddCapabilityList(doc, "https://example.org/a/capability-list.xml"))
	assert.Len(t, doc.URLs, 1)
}

func TestParseResourceListExtractsBasenames(t *testing.T) {
	doc := NewResourceList([]ManifestEntry{
		{Loc: "/source/rdfpatch-20200101000000", LastMod: "2020-01-01T00:00:00Z", MD5: "x", Length: 1},
	})
	set := ParseResourceList(doc)
	_, ok := set["rdfpatch-20200101000000"]
	assert.True(t, ok)
}
