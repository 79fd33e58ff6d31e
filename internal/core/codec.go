package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Serialize encodes a report as UTF-8 JSON.
// Item keys are written in sorted order, so equal reports encode equally.
// DateProcessed is written in UTC and nil lists as empty arrays, so a
// report decodes back to that normalized form.
func Serialize(report StructuredReport) ([]byte, error) {
	report.Metadata.DateProcessed = report.Metadata.DateProcessed.UTC()
	if report.SpecialNotes == nil {
		report.SpecialNotes = []SpecialNote{}
	}
	if report.Headers == nil {
		report.Headers = []string{}
	}
	if report.Items == nil {
		report.Items = []Item{}
	}

	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("serialize report: %w", err)
	}
	return data, nil
}

// DeserializeString decodes a report from JSON text.
func DeserializeString(s string) (StructuredReport, error) {
	return Deserialize([]byte(s))
}

// Deserialize decodes a report from bytes that hold either the JSON object
// itself, a JSON numeric byte array of it, or a JSON string wrapping either.
// A payload without a headers or items array fails with a StoreCorrupt
// StoreError naming the missing field.
func Deserialize(data []byte) (StructuredReport, error) {
	text, err := unwrapPayload(data)
	if err != nil {
		return StructuredReport{}, corrupt("", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(text, &fields); err != nil {
		return StructuredReport{}, corrupt("", err)
	}
	for _, name := range []string{"headers", "items"} {
		if !isJSONArray(fields[name]) {
			return StructuredReport{}, corrupt(name, nil)
		}
	}

	var report StructuredReport
	if err := json.Unmarshal(text, &report); err != nil {
		return StructuredReport{}, corrupt("", err)
	}
	if report.SpecialNotes == nil {
		report.SpecialNotes = []SpecialNote{}
	}
	return report, nil
}

// unwrapPayload peels numeric-array and string encodings until the report
// object text remains.
func unwrapPayload(data []byte) ([]byte, error) {
	for depth := 0; depth < 3; depth++ {
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			return nil, fmt.Errorf("empty payload")
		}
		if data[0] == '{' {
			if !utf8.Valid(data) {
				return nil, fmt.Errorf("encoding error: payload is not valid UTF-8")
			}
			return data, nil
		}
		if data[0] != '[' && data[0] != '"' {
			return nil, fmt.Errorf("unexpected payload start %q", data[0])
		}

		var inner ByteArray
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, err
		}
		data = inner
	}
	return nil, fmt.Errorf("payload nested too deeply")
}

func isJSONArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func corrupt(field string, err error) error {
	return &StoreError{Kind: StoreCorrupt, Op: "deserialize", Field: field, Err: err}
}
