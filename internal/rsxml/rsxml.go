// Package rsxml models the ResourceSync v1.0 documents the engine must
// produce (Source Description, Capability List, Resource Dump, in-zip
// Resource Dump Manifest) and the local-path resourcelist sidecar used to
// detect open-tail changes across runs. Spec.md treats XML serialization
// as an external collaborator's concern; this package is the thin,
// in-repo model + serializer that collaborator would be handed.
package rsxml

import (
	"encoding/xml"
	"os"
	"path/filepath"

	"github.com/clariah/quadsync/internal/pathutil"
	"github.com/clariah/quadsync/internal/syncerr"
)

const (
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	rsNS      = "http://www.openarchives.org/rs/terms/"
)

// Link is an <rs:ln> element, used for rel="up" and rel="content" links.
type Link struct {
	XMLName xml.Name `xml:"rs:ln"`
	Rel     string   `xml:"rel,attr"`
	Href    string   `xml:"href,attr"`
}

// Metadata is an <rs:md> element. Fields are emitted only when non-empty.
type Metadata struct {
	XMLName    xml.Name `xml:"rs:md"`
	Capability string   `xml:"capability,attr,omitempty"`
	At         string   `xml:"at,attr,omitempty"`
	Completed  string   `xml:"completed,attr,omitempty"`
	Hash       string   `xml:"hash,attr,omitempty"`
	Length     int64    `xml:"length,attr,omitempty"`
	Type       string   `xml:"type,attr,omitempty"`
}

// URL is one <url> entry: a resource's location plus its metadata and
// optional content link.
type URL struct {
	XMLName xml.Name `xml:"url"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
	MD      *Metadata `xml:"rs:md,omitempty"`
	Link    *Link     `xml:"rs:ln,omitempty"`
}

// URLSet is the root <urlset> element common to every ResourceSync document.
type URLSet struct {
	XMLName xml.Name  `xml:"urlset"`
	Xmlns   string    `xml:"xmlns,attr"`
	XmlnsRS string    `xml:"xmlns:rs,attr"`
	MD      *Metadata `xml:"rs:md"`
	Link    *Link     `xml:"rs:ln,omitempty"`
	URLs    []URL     `xml:"url"`
}

func newURLSet() *URLSet {
	return &URLSet{Xmlns: sitemapNS, XmlnsRS: rsNS}
}

// WriteFile serializes doc as an XML document with the standard header and
// writes it to path.
func WriteFile(path string, doc *URLSet) error {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return syncerr.New(syncerr.IOError, "marshal "+path, err)
	}
	body := append([]byte(xml.Header), out...)
	body = append(body, '\n')
	if err := pathutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return syncerr.New(syncerr.IOError, "write "+path, err)
	}
	return nil
}

// Marshal serializes doc as an XML document with the standard header,
// suitable for embedding in a zip entry or other non-file writer.
func Marshal(doc *URLSet) ([]byte, error) {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, syncerr.New(syncerr.IOError, "marshal resourcesync document", err)
	}
	body := append([]byte(xml.Header), out...)
	return append(body, '\n'), nil
}

// ReadFile parses an existing ResourceSync XML document from path.
func ReadFile(path string) (*URLSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, syncerr.New(syncerr.IOError, "open "+path, err)
	}
	defer f.Close() // scoped acquisition: closed on every exit path, including decode errors

	var doc URLSet
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, syncerr.New(syncerr.IOError, "parse "+path, err)
	}
	return &doc, nil
}
