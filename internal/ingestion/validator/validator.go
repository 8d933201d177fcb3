// Package validator checks paper fields before they are stored or indexed
// and reports per-field failures.
package validator

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/errors"
)

const (
	maxTitleLength = 1024
	maxAuthors     = 512
	maxVenueLength = 64
	maxURLLength   = 2048
	minYear        = 1000
	maxYear        = 9999
)

// ValidationError holds per-field validation failure messages. It matches
// apperrors.ErrMalformedRecord under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%s", k, e.Fields[k])
	}
	return "malformed record: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return apperrors.ErrMalformedRecord }

// Collector accumulates field errors; Err returns nil when none were added.
type Collector struct {
	fields map[string]string
}

// Add records msg for field unless the field already has a message.
func (c *Collector) Add(field, msg string) {
	if c.fields == nil {
		c.fields = make(map[string]string)
	}
	if _, ok := c.fields[field]; !ok {
		c.fields[field] = msg
	}
}

func (c *Collector) Err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: c.fields}
}

// ValidateFields checks a normalized paper submitted over the API.
func ValidateFields(f *record.Fields) error {
	var c Collector

	title := strings.TrimSpace(f.Title)
	if title == "" {
		c.Add("title", "title is required")
	} else if len(title) > maxTitleLength {
		c.Add("title", fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}

	if len(f.Authors) == 0 {
		c.Add("authors", "at least one author is required")
	} else if len(f.Authors) > maxAuthors {
		c.Add("authors", fmt.Sprintf("at most %d authors are allowed", maxAuthors))
	}
	for _, a := range f.Authors {
		if strings.TrimSpace(a) == "" {
			c.Add("authors", "author names must not be blank")
			break
		}
	}

	CheckYear(&c, "year", f.Year)

	venue := strings.TrimSpace(f.Venue)
	if venue == "" {
		c.Add("venue", "venue is required")
	} else if len(venue) > maxVenueLength || strings.ContainsAny(venue, " \t\n") {
		c.Add("venue", "venue must be a short code without spaces")
	}

	CheckURL(&c, "url", f.URL)
	return c.Err()
}

// CheckYear adds an error for years outside four digits.
func CheckYear(c *Collector, field string, year int) {
	if year < minYear || year > maxYear {
		c.Add(field, fmt.Sprintf("year %d must have four digits", year))
	}
}

// CheckURL adds an error unless raw is an absolute http(s) URL.
func CheckURL(c *Collector, field, raw string) {
	if raw == "" {
		c.Add(field, field+" is required")
		return
	}
	if len(raw) > maxURLLength {
		c.Add(field, fmt.Sprintf("%s must be at most %d characters", field, maxURLLength))
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		c.Add(field, field+" must be an absolute http(s) URL")
	}
}
