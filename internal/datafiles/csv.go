// SPDX-License-Identifier: AGPL-3.0-only

// Package datafiles reads the files exposed to the model from the data
// directory.
package datafiles

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jolks/mcp-toolchat/internal/errors"
)

// CSVSummary describes the shape of a CSV file.
type CSVSummary struct {
	Filename string   `json:"filename"`
	Rows     int      `json:"rows"` // data rows, header excluded
	Columns  int      `json:"columns"`
	Headers  []string `json:"headers"`
}

// String renders the summary as one sentence.
func (s CSVSummary) String() string {
	return fmt.Sprintf("CSV file '%s' has %d rows and %d columns. Columns: %s.",
		s.Filename, s.Rows, s.Columns, strings.Join(s.Headers, ", "))
}

// Dir is a data directory.
type Dir struct {
	root string
}

// NewDir returns the data directory rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Resolve maps filename to a path inside the directory, rejecting anything
// that would escape it.
func (d *Dir) Resolve(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return "", errors.InvalidInput("filename is required")
	}
	if filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.InvalidInput(fmt.Sprintf("filename %q must name a file in the data directory", filename))
	}
	return filepath.Join(d.root, name), nil
}

// SummariseCSV counts the rows and columns of a CSV file in the directory.
func (d *Dir) SummariseCSV(filename string) (*CSVSummary, error) {
	path, err := d.Resolve(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("file", filename)
		}
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	summary := &CSVSummary{Filename: filepath.Base(path)}
	header, err := r.Read()
	if err == io.EOF {
		return summary, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", filename, err)
	}
	summary.Headers = header
	summary.Columns = len(header)

	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filename, err)
		}
		summary.Rows++
	}
	return summary, nil
}
