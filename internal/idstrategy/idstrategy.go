// Package idstrategy builds the total function (originalPatientID, filePath)
// → anonymizedID used by the anonymization engine, under one of five
// strategies: none, folder, csv, deterministic, sequential.
package idstrategy

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Mapping is one (original, anonymized) pair, as produced by IterMappings.
type Mapping struct {
	Original   string
	Anonymized string
}

// Strategy is the sum type every ID strategy implements. Map is a total
// function; IterMappings exposes whatever mapping table the strategy holds
// (empty for the purely computed strategies).
type Strategy interface {
	Map(originalID, relPath string) string
	IterMappings() []Mapping
}

// None is the identity strategy.
type None struct{}

func (None) Map(originalID, _ string) string   { return originalID }
func (None) IterMappings() []Mapping           { return nil }

// idFromPattern formats number into pattern's run of "X" placeholders,
// zero-padded to the run's width. A pattern with no "X" run is returned
// unchanged.
func idFromPattern(pattern string, number int) string {
	start := strings.Index(pattern, "X")
	if start < 0 {
		return pattern
	}
	end := start
	for end < len(pattern) && pattern[end] == 'X' {
		end++
	}
	width := end - start
	digits := strconv.Itoa(number)
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}
	return pattern[:start] + digits + pattern[end:]
}

// placeholderWidth returns the width of pattern's "X" run, or 4 if there is
// none (mirrors the fallback used when a pattern has no placeholder).
func placeholderWidth(pattern string) int {
	start := strings.Index(pattern, "X")
	if start < 0 {
		return 4
	}
	end := start
	for end < len(pattern) && pattern[end] == 'X' {
		end++
	}
	return end - start
}

// blakeMod returns blake2b-32(key) reduced mod 10^width, as the
// deterministic and folder-hash-fallback strategies do.
func blakeMod(key string, width int) int {
	h, _ := blake2b.New(4, nil)
	h.Write([]byte(key))
	sum := h.Sum(nil)
	value := binary.BigEndian.Uint32(sum)
	mod := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(width)), nil)
	return int(new(big.Int).Mod(new(big.Int).SetUint64(uint64(value)), mod).Int64())
}

// Deterministic maps every original ID through a salted hash, reduced
// mod 10^width and formatted into pattern.
type Deterministic struct {
	Pattern string
	Salt    string
}

func (d Deterministic) Map(originalID, _ string) string {
	width := placeholderWidth(d.Pattern)
	n := blakeMod(fmt.Sprintf("%s|%s", d.Salt, originalID), width)
	return idFromPattern(d.Pattern, n)
}

func (Deterministic) IterMappings() []Mapping { return nil }

// Folder extracts a token from the DepthAfterRoot-th path segment (1-based,
// relative to the cohort source root) via Regex, then either treats a
// numeric token as an index into Pattern, substitutes it into Pattern's
// placeholder run, or — if Pattern has no placeholder — hashes it.
type Folder struct {
	DepthAfterRoot int
	Regex          *regexp.Regexp
	Pattern        string
}

func (f Folder) Map(originalID, relPath string) string {
	parts := strings.Split(filepathToSlash(relPath), "/")
	index := f.DepthAfterRoot - 1
	if index < 0 || index >= len(parts) {
		return originalID
	}
	segment := parts[index]

	var token string
	if f.Regex != nil {
		if m := f.Regex.FindStringSubmatch(segment); m != nil {
			if len(m) > 1 {
				token = m[1]
			} else {
				token = m[0]
			}
		} else {
			token = segment
		}
	} else {
		token = segment
	}

	if n, err := strconv.Atoi(token); err == nil {
		return idFromPattern(f.Pattern, n)
	}

	width := placeholderWidth(f.Pattern)
	placeholder := strings.Repeat("X", width)
	if width > 0 && strings.Contains(f.Pattern, placeholder) {
		return strings.Replace(f.Pattern, placeholder, token, 1)
	}
	if width == 0 && f.Pattern != "" {
		return f.Pattern + token
	}
	if width == 0 {
		return token
	}

	return idFromPattern(f.Pattern, blakeMod(token, width))
}

func (Folder) IterMappings() []Mapping { return nil }

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// CSV maps through a fixed lookup table populated by the discovery pass
// (one entry per original ID seen, including any fallback-assigned IDs).
// Unknown originals pass through unchanged.
type CSV struct {
	Table map[string]string
}

func (c CSV) Map(originalID, _ string) string {
	if v, ok := c.Table[originalID]; ok {
		return v
	}
	return originalID
}

func (c CSV) IterMappings() []Mapping {
	out := make([]Mapping, 0, len(c.Table))
	for k, v := range c.Table {
		out = append(out, Mapping{Original: k, Anonymized: v})
	}
	return out
}

// CSVWithHashFallback looks up Table first; IDs absent from Table fall back
// to a Deterministic mapping, never mutating Table.
type CSVWithHashFallback struct {
	Table    map[string]string
	Fallback Deterministic
}

func (c CSVWithHashFallback) Map(originalID, relPath string) string {
	if v, ok := c.Table[originalID]; ok && v != "" {
		return v
	}
	return c.Fallback.Map(originalID, relPath)
}

func (c CSVWithHashFallback) IterMappings() []Mapping {
	out := make([]Mapping, 0, len(c.Table))
	for k, v := range c.Table {
		out = append(out, Mapping{Original: k, Anonymized: v})
	}
	return out
}

// Sequential maps through a fixed table built once at discovery time by
// BuildSequentialMapping.
type Sequential struct {
	Table map[string]string
}

func (s Sequential) Map(originalID, _ string) string {
	if v, ok := s.Table[originalID]; ok {
		return v
	}
	return originalID
}

func (s Sequential) IterMappings() []Mapping {
	out := make([]Mapping, 0, len(s.Table))
	for k, v := range s.Table {
		out = append(out, Mapping{Original: k, Anonymized: v})
	}
	return out
}

// BuildSequentialMapping assigns consecutive integers, starting at start,
// to discovered in order, formatting each through pattern.
func BuildSequentialMapping(discovered []string, pattern string, start int) map[string]string {
	table := make(map[string]string, len(discovered))
	for i, pid := range discovered {
		table[pid] = idFromPattern(pattern, start+i)
	}
	return table
}

// FillCSVSequentialFallback extends table in place with a sequentially
// formatted ID for every discovered original not already mapped to a
// non-empty value, continuing the counter from start. Used by the CSV
// strategy's per-top-folder sequential fallback (as opposed to the HASH
// fallback, which instead wraps a Deterministic strategy).
func FillCSVSequentialFallback(table map[string]string, discovered []string, pattern string, start int) {
	counter := start
	for _, pid := range Dedupe(discovered) {
		if v, ok := table[pid]; ok && v != "" {
			continue
		}
		table[pid] = idFromPattern(pattern, counter)
		counter++
	}
}

// Dedupe returns items with duplicates removed, preserving first-seen order.
func Dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
