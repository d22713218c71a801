// Package glossary is an offline source of annotation tuples: a JSON file of
// terms with explanations, matched against page text.
package glossary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Entry is one glossary term.
type Entry struct {
	Term        string   `json:"term"`
	Readings    []string `json:"readings,omitempty"`
	Short       string   `json:"short"`
	Long        string   `json:"long"`
	Translation string   `json:"translation,omitempty"`
}

// Load reads a glossary file, either an object { "entries": [...] } or a bare array.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses glossary JSON in either accepted shape.
func Decode(data []byte) ([]Entry, error) {
	var wrapper struct {
		Entries []Entry `json:"entries"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Entries) > 0 {
		return wrapper.Entries, nil
	}

	var entries []Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to parse glossary as object or array: %w", err)
	}
	return entries, nil
}
