package core

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ItemNameHeader is the marker column that identifies the header row and
// must be non-blank for a data row to become an item.
const ItemNameHeader = "Item-name"

// CategoryField is the item key used for category grouping.
const CategoryField = "category"

// Uncategorized is the label for items with no category value.
const Uncategorized = "UNCATEGORIZED"

// NoteCategories are the first-cell labels that mark a special note row.
var NoteCategories = []string{"Vegetables", "Fish", "Others"}

// Metadata records where a report came from.
type Metadata struct {
	FileName      string    `json:"fileName"`
	DateProcessed time.Time `json:"dateProcessed"`
}

// SpecialNote is a free-text annotation taken from a labeled row above the
// price table.
type SpecialNote struct {
	Category string `json:"category"`
	Note     string `json:"note"`
}

// Item is one price row keyed by header name. Headers are data-driven, so
// an item only carries the columns its source row actually had.
type Item map[string]string

// StructuredReport is the parsed form of one uploaded price sheet.
// It is never modified after parsing.
type StructuredReport struct {
	Metadata     Metadata      `json:"metadata"`
	SpecialNotes []SpecialNote `json:"specialNotes"`
	Headers      []string      `json:"headers"`
	Items        []Item        `json:"items"`
}

// StoredRecord is a report as held by the remote store.
// FileName is empty for records created from a bare byte blob; callers fall
// back to the metadata inside the report.
type StoredRecord struct {
	ID         int64     `json:"id"`
	FileName   string    `json:"file_name,omitempty"`
	UploadDate time.Time `json:"uploaddate"`
	Report     ByteArray `json:"report"`
}

// DisplayName returns the record's file name, falling back to the name
// recorded in the report metadata.
func (r StoredRecord) DisplayName() string {
	if r.FileName != "" {
		return r.FileName
	}
	rep, err := Deserialize(r.Report)
	if err != nil {
		return ""
	}
	return rep.Metadata.FileName
}

// ByteArray is a byte payload that travels as a JSON array of numbers
// rather than base64, so the store sees bytes and not a nested JSON body.
//
// On input it also accepts a JSON string holding either base64 (what a
// Jackson byte[] field produces) or the report text itself.
type ByteArray []byte

// MarshalJSON encodes the bytes as [n,n,...].
func (b ByteArray) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	buf := make([]byte, 0, len(b)*4+2)
	buf = append(buf, '[')
	for i, c := range b {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(c), 10)
	}
	buf = append(buf, ']')
	return buf, nil
}

// UnmarshalJSON accepts a numeric array, a base64 string, or a plain string.
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}

	switch data[0] {
	case '[':
		var nums []int
		if err := json.Unmarshal(data, &nums); err != nil {
			return fmt.Errorf("byte array: %w", err)
		}
		out := make([]byte, len(nums))
		for i, n := range nums {
			// Java bytes are signed; accept -128..255
			if n < -128 || n > 255 {
				return fmt.Errorf("byte array: value %d at index %d out of range", n, i)
			}
			out[i] = byte(n)
		}
		*b = out
		return nil

	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("byte array: %w", err)
		}
		if decoded, err := base64.StdEncoding.DecodeString(s); err == nil && looksLikeJSON(decoded) {
			*b = decoded
			return nil
		}
		*b = []byte(s)
		return nil
	}

	return fmt.Errorf("byte array: unexpected JSON token %q", data[0])
}

func looksLikeJSON(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && (data[0] == '{' || data[0] == '[')
}
