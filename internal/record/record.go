// Package record defines the normalized bibliographic item that flows from
// ingestion through the index to the search API.
package record

import (
	"strconv"
	"strings"
)

// Field names accepted by Text when composing the indexed text.
const (
	FieldTitle   = "title"
	FieldAuthors = "authors"
	FieldVenue   = "venue"
	FieldYear    = "year"
)

// DefaultTextFields indexes titles only.
var DefaultTextFields = []string{FieldTitle}

// Record is an immutable conference paper entry. Construct it with New;
// the zero value is a valid (empty) record.
type Record struct {
	title   string
	authors []string
	year    int
	venue   string
	url     string
}

// New builds a Record, copying authors and lowercasing the venue code.
func New(title string, authors []string, year int, venue string, url string) Record {
	a := make([]string, len(authors))
	copy(a, authors)
	return Record{
		title:   title,
		authors: a,
		year:    year,
		venue:   strings.ToLower(strings.TrimSpace(venue)),
		url:     url,
	}
}

func (r Record) Title() string { return r.title }
func (r Record) Year() int     { return r.year }
func (r Record) Venue() string { return r.venue }
func (r Record) URL() string   { return r.url }

// Authors returns a copy of the author list in source order.
func (r Record) Authors() []string {
	a := make([]string, len(r.authors))
	copy(a, r.authors)
	return a
}

// NumAuthors avoids the copy made by Authors.
func (r Record) NumAuthors() int { return len(r.authors) }

// Author returns the i-th author.
func (r Record) Author(i int) string { return r.authors[i] }

// Text concatenates the given fields with single spaces. Unknown field
// names are ignored.
func (r Record) Text(fields []string) string {
	if len(fields) == 0 {
		fields = DefaultTextFields
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case FieldTitle:
			parts = append(parts, r.title)
		case FieldAuthors:
			parts = append(parts, strings.Join(r.authors, " "))
		case FieldVenue:
			parts = append(parts, r.venue)
		case FieldYear:
			if r.year > 0 {
				parts = append(parts, strconv.Itoa(r.year))
			}
		}
	}
	return strings.Join(parts, " ")
}

// Equal reports whether two records carry identical fields.
func (r Record) Equal(o Record) bool {
	if r.title != o.title || r.year != o.year || r.venue != o.venue || r.url != o.url {
		return false
	}
	if len(r.authors) != len(o.authors) {
		return false
	}
	for i := range r.authors {
		if r.authors[i] != o.authors[i] {
			return false
		}
	}
	return true
}

// Fields is the exported wire form of a Record.
type Fields struct {
	Title   string   `json:"title" cbor:"1,keyasint"`
	Authors []string `json:"authors" cbor:"2,keyasint"`
	Year    int      `json:"year" cbor:"3,keyasint"`
	Venue   string   `json:"venue" cbor:"4,keyasint"`
	URL     string   `json:"url" cbor:"5,keyasint"`
}

// Fields returns the wire form of r.
func (r Record) Fields() Fields {
	return Fields{
		Title:   r.title,
		Authors: r.Authors(),
		Year:    r.year,
		Venue:   r.venue,
		URL:     r.url,
	}
}

// FromFields builds a Record from its wire form.
func FromFields(f Fields) Record {
	return New(f.Title, f.Authors, f.Year, f.Venue, f.URL)
}
