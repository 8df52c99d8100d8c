package idstrategy

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadCSVMapping reads the CSV mapping file (§6): UTF-8 with a header row,
// exactly two named columns sourceColumn/targetColumn. A leading BOM is
// tolerated. Empty target cells are omitted from the returned table so the
// caller can apply its own missing-ID fallback.
func LoadCSVMapping(path, sourceColumn, targetColumn string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open CSV mapping file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	if bom, err := reader.Peek(3); err == nil && string(bom) == "﻿" {
		reader.Discard(3)
	}

	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read CSV header: %w", err)
	}

	sourceIdx, targetIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case sourceColumn:
			sourceIdx = i
		case targetColumn:
			targetIdx = i
		}
	}
	if sourceIdx < 0 || targetIdx < 0 {
		return nil, fmt.Errorf("CSV mapping file missing column %q or %q", sourceColumn, targetColumn)
	}

	table := make(map[string]string)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read CSV row: %w", err)
		}
		if sourceIdx >= len(row) {
			continue
		}
		src := strings.TrimSpace(row[sourceIdx])
		if src == "" {
			continue
		}
		dst := ""
		if targetIdx < len(row) {
			dst = strings.TrimSpace(row[targetIdx])
		}
		if dst != "" {
			table[src] = dst
		}
	}

	return table, nil
}
