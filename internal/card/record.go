package card

import (
	"fmt"
	"strconv"

	"github.com/yokai-gen/nichicrawl/internal/ident"
	"github.com/yokai-gen/nichicrawl/internal/rowsink"
)

// Record is everything learned about one catalog card.
type Record struct {
	Identifier string
	// Parts is set when Identifier is canonical.
	Parts *ident.Parts
	Meta  map[Field]string

	CardURL     string
	ImageURL    string
	ManifestURL string
	ViewerURL   string
	// ImagePath is the local file the image was saved to, if any.
	ImagePath string
}

// Probe is the outcome of one existence check.
type Probe struct {
	Exists bool
	// Record is populated only when Exists is true.
	Record Record
}

// Get returns the value of f, or "" when the card does not carry it.
func (r Record) Get(f Field) string { return r.Meta[f] }

// Row renders the record with every discovery and harvest column present.
func (r Record) Row() rowsink.Row {
	row := rowsink.Row{
		rowsink.ColIdentifier:  r.Identifier,
		rowsink.ColCollection:  "",
		rowsink.ColBucket:      "",
		rowsink.ColSubBucket:   "",
		rowsink.ColSequence:    "",
		rowsink.ColCardURL:     r.CardURL,
		rowsink.ColImageURL:    r.ImageURL,
		rowsink.ColManifestURL: r.ManifestURL,
		rowsink.ColViewerURL:   r.ViewerURL,
		rowsink.ColImagePath:   r.ImagePath,
	}
	if r.Parts != nil {
		row[rowsink.ColCollection] = strconv.Itoa(r.Parts.Collection)
		row[rowsink.ColBucket] = fmt.Sprintf("%04d", r.Parts.Bucket)
		row[rowsink.ColSubBucket] = fmt.Sprintf("%04d", r.Parts.SubBucket)
		row[rowsink.ColSequence] = fmt.Sprintf("%04d", r.Parts.Sequence)
	}
	for _, f := range Fields {
		row[string(f)] = r.Meta[f]
	}
	return row
}

func newRecord(id string) Record {
	r := Record{Identifier: id, Meta: map[Field]string{}}
	if p, err := ident.Decode(id); err == nil {
		r.Parts = &p
	}
	return r
}
