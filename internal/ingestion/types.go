// Package ingestion turns DBLP-style JSON lines into records and defines the
// request, response and event types of the ingestion service.
package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
)

// requiredKeys must all appear, quoted, in a line for it to be considered.
var requiredKeys = []string{"title", "author", "year", "ee", "url"}

// venuePattern matches DBLP keys such as db/conf/acl or db/journals/jmlr.
var venuePattern = regexp.MustCompile(`db/\w*/\w*`)

// RawPaper is one line of a DBLP dump converted to JSON: every element is a
// list of the texts of the XML children with that tag.
type RawPaper struct {
	Title  []string  `json:"title"`
	Author []string  `json:"author"`
	Year   []YearNum `json:"year"`
	EE     []string  `json:"ee"`
	URL    []string  `json:"url"`
}

// YearNum accepts a JSON number or a numeric string.
type YearNum int

func (y *YearNum) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("year %q is not an integer", s)
		}
		*y = YearNum(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("year %s is not an integer", data)
	}
	*y = YearNum(n)
	return nil
}

// ParseVenue returns the last segment of the first db/<kind>/<venue> key in
// text, or "" when there is none.
func ParseVenue(text string) string {
	m := venuePattern.FindString(text)
	if m == "" {
		return ""
	}
	return m[strings.LastIndexByte(m, '/')+1:]
}

// CheckValidLine is a cheap pre-check run on the raw line before decoding.
// It requires every mandatory key and, when venues is non-empty, a venue
// in the allow-list.
func CheckValidLine(line string, venues map[string]struct{}) bool {
	for _, k := range requiredKeys {
		if !strings.Contains(line, `"`+k+`"`) {
			return false
		}
	}
	if len(venues) > 0 {
		_, ok := venues[ParseVenue(line)]
		return ok
	}
	return true
}

// VenueSet lowercases a venue list into a lookup set. An empty list yields
// nil, which CheckValidLine treats as "no filter".
func VenueSet(venues []string) map[string]struct{} {
	if len(venues) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(venues))
	for _, v := range venues {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// ToRecord takes the first title, every author, the first year, the venue
// parsed from the first DBLP url and the first electronic edition link.
// Call Validate first; ToRecord assumes the lists are populated.
func (p *RawPaper) ToRecord() record.Record {
	return record.New(
		p.Title[0],
		p.Author,
		int(p.Year[0]),
		ParseVenue(p.URL[0]),
		p.EE[0],
	)
}

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint.
type IngestRequest struct {
	Papers []record.Fields `json:"papers"`
}

// IngestResponse reports how many papers were stored.
type IngestResponse struct {
	Accepted int    `json:"accepted"`
	Total    int64  `json:"total"`
	Status   string `json:"status"`
}

// CorpusEvent is published after papers are persisted so indexers know to
// rebuild.
type CorpusEvent struct {
	Type       string    `json:"type"`
	Accepted   int       `json:"accepted"`
	Total      int64     `json:"total"`
	IngestedAt time.Time `json:"ingested_at"`
}

// EventCorpusUpdated is the CorpusEvent type discriminator.
const EventCorpusUpdated = "corpus_updated"

// Validate checks that every list ToRecord reads from is populated.
func (p *RawPaper) Validate() error {
	var c validator.Collector
	if len(p.Title) == 0 || strings.TrimSpace(p.Title[0]) == "" {
		c.Add("title", "title is required")
	}
	if len(p.Author) == 0 {
		c.Add("author", "at least one author is required")
	}
	if len(p.Year) == 0 {
		c.Add("year", "year is required")
	}
	if len(p.EE) == 0 || p.EE[0] == "" {
		c.Add("ee", "electronic edition link is required")
	}
	if len(p.URL) == 0 || p.URL[0] == "" {
		c.Add("url", "dblp url is required")
	}
	return c.Err()
}
