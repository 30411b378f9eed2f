package rsxml

// NewSourceDescription builds an empty Source Description document, the
// root of .well-known/resourcesync.
func NewSourceDescription() *URLSet {
	doc := newURLSet()
	doc.MD = &Metadata{Capability: "description"}
	return doc
}

// AddCapabilityList appends a Capability List URL to a Source Description
// if it is not already present. Returns true if the document changed.
func AddCapabilityList(doc *URLSet, capabilityListURL string) bool {
	for _, u := range doc.URLs {
		if u.Loc == capabilityListURL {
			return false
		}
	}
	doc.URLs = append(doc.URLs, URL{
		Loc: capabilityListURL,
		MD:  &Metadata{Capability: "capabilitylist"},
	})
	return true
}

// NewCapabilityList builds a Capability List document linking up to the
// Source Description and listing one Resource Dump capability.
func NewCapabilityList(sourceDescriptionURL, resourceDumpURL string) *URLSet {
	doc := newURLSet()
	doc.MD = &Metadata{Capability: "capabilitylist"}
	doc.Link = &Link{Rel: "up", Href: sourceDescriptionURL}
	doc.URLs = []URL{{
		Loc: resourceDumpURL,
		MD:  &Metadata{Capability: "resourcedump"},
	}}
	return doc
}

// ResourceDump wraps the <urlset> document for a graph's resource-dump.xml,
// preserving the md_at / md_completed attributes explicitly across
// read-then-rewrite cycles (a generic XML library loses these, per
// SPEC_FULL.md's design notes).
type ResourceDump struct {
	doc *URLSet
}

// NewResourceDump creates an empty Resource Dump, setting md_at since this
// is the first time it is published for its graph.
func NewResourceDump(capabilityListURL, at string) *ResourceDump {
	doc := newURLSet()
	doc.MD = &Metadata{Capability: "resourcedump", At: at}
	doc.Link = &Link{Rel: "up", Href: capabilityListURL}
	return &ResourceDump{doc: doc}
}

// LoadResourceDump parses an existing resource-dump.xml.
func LoadResourceDump(path string) (*ResourceDump, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if doc.MD == nil {
		doc.MD = &Metadata{Capability: "resourcedump"}
	}
	return &ResourceDump{doc: doc}, nil
}

// Entries returns the archive URLs currently listed, in document order.
func (rd *ResourceDump) Entries() []URL {
	return rd.doc.URLs
}

// Remove deletes the entry for loc, if present. Returns true if found.
func (rd *ResourceDump) Remove(loc string) bool {
	for i, u := range rd.doc.URLs {
		if u.Loc == loc {
			rd.doc.URLs = append(rd.doc.URLs[:i], rd.doc.URLs[i+1:]...)
			return true
		}
	}
	return false
}

// Add appends a new archive entry, preserving insertion order so consumers
// see sealed archives in creation order followed by the open-tail.
func (rd *ResourceDump) Add(loc, lastMod, hash string, length int64, contentLinkHref string) {
	entry := URL{
		Loc:     loc,
		LastMod: lastMod,
		MD:      &Metadata{Hash: "md5:" + hash, Length: length, Type: "application/zip"},
	}
	if contentLinkHref != "" {
		entry.Link = &Link{Rel: "content", Href: contentLinkHref}
	}
	rd.doc.URLs = append(rd.doc.URLs, entry)
}

// Touch sets md_completed, called on every write.
func (rd *ResourceDump) Touch(completed string) {
	rd.doc.MD.Completed = completed
}

// Save writes resource-dump.xml to path.
func (rd *ResourceDump) Save(path string) error {
	return WriteFile(path, rd.doc)
}

// NewResourceDumpManifest builds the in-zip manifest.xml enumerating a
// batch's member files by their public archive-relative location.
func NewResourceDumpManifest(entries []ManifestEntry) *URLSet {
	doc := newURLSet()
	doc.MD = &Metadata{Capability: "resourcedump-manifest"}
	for _, e := range entries {
		doc.URLs = append(doc.URLs, URL{
			Loc:     e.Loc,
			LastMod: e.LastMod,
			MD:      &Metadata{Hash: "md5:" + e.MD5, Length: e.Length},
		})
	}
	return doc
}

// ManifestEntry describes one member file of a batch for manifest/resourcelist purposes.
type ManifestEntry struct {
	Loc     string // public URI (manifest) or local source path (sidecar resourcelist)
	LastMod string
	MD5     string
	Length  int64
}

// NewResourceList builds the open-tail sidecar document, which carries
// *local* source paths rather than public URIs so the next run can detect
// whether the open-tail's member set has changed.
func NewResourceList(entries []ManifestEntry) *URLSet {
	doc := newURLSet()
	doc.MD = &Metadata{Capability: "resourcelist"}
	for _, e := range entries {
		doc.URLs = append(doc.URLs, URL{
			Loc:     e.Loc,
			LastMod: e.LastMod,
			MD:      &Metadata{Hash: "md5:" + e.MD5, Length: e.Length},
		})
	}
	return doc
}

// ParseResourceList extracts the set of local paths (basenames) listed in
// an open-tail sidecar document.
func ParseResourceList(doc *URLSet) map[string]struct{} {
	set := make(map[string]struct{}, len(doc.URLs))
	for _, u := range doc.URLs {
		set[baseName(u.Loc)] = struct{}{}
	}
	return set
}

func baseName(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	return path[i+1:]
}
