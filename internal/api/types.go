package api

import (
	"strings"
	"time"
)

// Metadata describes a remote file or folder
type Metadata struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
	IsFolder     bool   `json:"is_folder"`
	Checksum     string `json:"checksum"`
}

// ModTime parses the metadata timestamp. Egnyte returns ISO-style
// timestamps, sometimes Z-suffixed; a zero time means unparseable.
func (m Metadata) ModTime() time.Time {
	return ParseModifiedTime(m.ModifiedTime)
}

// ParseModifiedTime parses an ISO-ish timestamp with optional Z suffix
func ParseModifiedTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if trimmed := strings.TrimSuffix(s, "Z"); trimmed != s {
		if t, err := time.Parse("2006-01-02T15:04:05", trimmed); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

type listResponse struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Size     int64      `json:"size"`
	Modified string     `json:"modified_time"`
	IsFolder bool       `json:"is_folder"`
	Checksum string     `json:"checksum"`
	Folders  []Metadata `json:"folders"`
	Files    []Metadata `json:"files"`
}

type searchResponse struct {
	Results []Metadata `json:"results"`
}
