// Package rowsink loads, merges and writes the CSV artifacts shared by the
// discovery and harvest stages.
package rowsink

import "strings"

// Column names with meaning to the crawler itself. Metadata columns are
// plain field names and carried through untouched.
const (
	ColIdentifier  = "identifier"
	ColCollection  = "aaa"
	ColBucket      = "bbbb"
	ColSubBucket   = "cccc"
	ColSequence    = "dddd"
	ColCardURL     = "card_url"
	ColImageURL    = "image_url"
	ColManifestURL = "manifest_url"
	ColViewerURL   = "viewer_url"
	ColImagePath   = "image_path"
)

// MetadataColumns is the canonical metadata field set in output order.
var MetadataColumns = []string{
	"title",
	"creator",
	"subjects",
	"description",
	"publisher",
	"contributor",
	"date",
	"resource_type",
	"format",
	"language",
	"source",
	"relation",
	"coverage",
	"rights",
}

// DiscoveryColumns is the fixed column order of the discovery CSV.
var DiscoveryColumns = concat(
	[]string{ColIdentifier, ColCollection, ColBucket, ColSubBucket, ColSequence},
	MetadataColumns,
	[]string{ColCardURL, ColImageURL},
)

// HarvestColumns extends the discovery columns with media links and the
// local image path.
var HarvestColumns = concat(
	DiscoveryColumns,
	[]string{ColManifestURL, ColViewerURL, ColImagePath},
)

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Row is one CSV record keyed by column name.
type Row map[string]string

// Identifier returns the trimmed identifier column.
func (r Row) Identifier() string {
	return strings.TrimSpace(r[ColIdentifier])
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
