// Package metadatagraph maintains the Source Description -> Capability
// List -> Resource Dump hierarchy across one or more sink subdirectories
// ("graphs") sharing a single Source Description.
package metadatagraph

import (
	"path/filepath"

	"github.com/clariah/quadsync/internal/archive"
	"github.com/clariah/quadsync/internal/pathutil"
	"github.com/clariah/quadsync/internal/rsxml"
)

const (
	resourceDumpFile    = "resource-dump.xml"
	capabilityListFile  = "capability-list.xml"
	wellKnownDir        = ".well-known"
	sourceDescriptionFN = "resourcesync"
)

// Graph identifies one independently-published collection: its sink
// subdirectory and the public URL prefix it is served under.
type Graph struct {
	SinkDir   string
	PublicURL string // ends with "/"
}

func (g Graph) resourceDumpPath() string   { return filepath.Join(g.SinkDir, resourceDumpFile) }
func (g Graph) capabilityListPath() string { return filepath.Join(g.SinkDir, capabilityListFile) }

// ResourceDumpURL returns the public URL of this graph's resource-dump.xml.
func (g Graph) ResourceDumpURL() string { return g.PublicURL + resourceDumpFile }

// CapabilityListURL returns the public URL of this graph's capability-list.xml.
func (g Graph) CapabilityListURL() string { return g.PublicURL + capabilityListFile }

// Update rewrites a graph's resource-dump.xml (creating capability-list.xml
// the first time) per spec.md §4.7: on first creation, set md_at; on every
// update, set md_completed; remove the superseded open-tail URI if
// supplied; add every new archive, preserving insertion order.
func Update(g Graph, sourceDescriptionURL string, newArchives []*archive.Record, supersededURI string, now string) error {
	path := g.resourceDumpPath()

	var rd *rsxml.ResourceDump
	if pathutil.FileExists(path) {
		loaded, err := rsxml.LoadResourceDump(path)
		if err != nil {
			return err
		}
		rd = loaded
	} else {
		rd = rsxml.NewResourceDump(g.CapabilityListURL(), now)
	}

	if supersededURI != "" {
		rd.Remove(supersededURI)
	}

	for _, rec := range newArchives {
		rd.Add(rec.PublicURI, rec.LastModified, rec.MD5, rec.Length, rec.ContentLinkHref)
	}

	rd.Touch(now)
	if err := rd.Save(path); err != nil {
		return err
	}

	return ensureCapabilityList(g, sourceDescriptionURL)
}

// ensureCapabilityList creates capability-list.xml once, idempotently.
func ensureCapabilityList(g Graph, sourceDescriptionURL string) error {
	path := g.capabilityListPath()
	if pathutil.FileExists(path) {
		return nil
	}
	doc := rsxml.NewCapabilityList(sourceDescriptionURL, g.ResourceDumpURL())
	return rsxml.WriteFile(path, doc)
}

// RemoveSuperseded strips supersededURI from a graph's resource-dump.xml
// without adding anything new. The error-recovery sweep uses
// RemoveByURIPrefix instead; nothing in the engine calls this function.
func RemoveSuperseded(g Graph, supersededURI string) error {
	path := g.resourceDumpPath()
	if !pathutil.FileExists(path) {
		return nil
	}
	rd, err := rsxml.LoadResourceDump(path)
	if err != nil {
		return err
	}
	rd.Remove(supersededURI)
	return rd.Save(path)
}

// RemoveByURIPrefix drops every resource-dump.xml entry whose URI starts
// with prefix, used by the error-recovery sweep (which may need to clean
// up more than one stale open-tail entry if crashes stacked up).
func RemoveByURIPrefix(g Graph, prefix string) error {
	path := g.resourceDumpPath()
	if !pathutil.FileExists(path) {
		return nil
	}
	rd, err := rsxml.LoadResourceDump(path)
	if err != nil {
		return err
	}
	var stale []string
	for _, entry := range rd.Entries() {
		if len(entry.Loc) >= len(prefix) && entry.Loc[:len(prefix)] == prefix {
			stale = append(stale, entry.Loc)
		}
	}
	for _, loc := range stale {
		rd.Remove(loc)
	}
	return rd.Save(path)
}

// SourceDescriptionPath is the path of the root-level Source Description,
// shared across every graph under sinkRoot.
func SourceDescriptionPath(sinkRoot string) string {
	return filepath.Join(sinkRoot, wellKnownDir, sourceDescriptionFN)
}

// SourceDescriptionURL is the public URL of the root-level Source
// Description.
func SourceDescriptionURL(publicRoot string) string {
	return publicRoot + wellKnownDir + "/" + sourceDescriptionFN
}

// LoadOrCreateSourceDescription loads the existing root document, or
// creates a fresh empty one if none exists yet. Returns the document and
// whether it is new.
func LoadOrCreateSourceDescription(sinkRoot string) (*rsxml.URLSet, bool, error) {
	path := SourceDescriptionPath(sinkRoot)
	if pathutil.FileExists(path) {
		doc, err := rsxml.ReadFile(path)
		if err != nil {
			return nil, false, err
		}
		return doc, false, nil
	}
	return rsxml.NewSourceDescription(), true, nil
}

// AddCapabilityList lists capabilityListURL in the root Source Description
// if it is not already there. Returns true if the document changed.
func AddCapabilityList(doc *rsxml.URLSet, capabilityListURL string) bool {
	return rsxml.AddCapabilityList(doc, capabilityListURL)
}

// SaveSourceDescription writes the root Source Description.
func SaveSourceDescription(sinkRoot string, doc *rsxml.URLSet) error {
	return rsxml.WriteFile(SourceDescriptionPath(sinkRoot), doc)
}
