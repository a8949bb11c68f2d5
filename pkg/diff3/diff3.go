// Package diff3 implements a line-level three-way merge over a Myers edit
// script, producing conflict-marked output and per-hunk detail.
package diff3

import (
	"bytes"
	"strings"
)

// HunkType classifies a hunk in a three-way merge result.
type HunkType int

const (
	HunkClean    HunkType = iota // hunk was merged cleanly
	HunkConflict                 // hunk requires manual resolution
)

// Hunk represents a contiguous section of the merge output.
type Hunk struct {
	Type                       HunkType
	Base, Ours, Theirs, Merged []byte
}

// Result holds the outcome of a three-way merge.
type Result struct {
	Merged       []byte // full merged content, default-labelled markers on conflict
	HasConflicts bool   // true if any hunk is a conflict
	Hunks        []Hunk // individual hunks in document order
}

// Default conflict-marker labels.
const (
	DefaultOursLabel   = "ours"
	DefaultTheirsLabel = "theirs"
)

// Merge performs a three-way merge of base, ours, and theirs.
//
// Algorithm:
//  1. Split base, ours, theirs into lines.
//  2. Compute diff(base, ours) and diff(base, theirs).
//  3. Convert each diff into a sequence of "chunks" — contiguous runs of
//     unchanged or changed regions relative to the base.
//  4. Walk through base lines, consulting both chunk sequences to decide
//     how each base region is handled.
//  5. When both sides change the same base region differently, emit a conflict.
func Merge(base, ours, theirs []byte) Result {
	baseLines := splitLines(string(base))
	oursLines := splitLines(string(ours))
	theirsLines := splitLines(string(theirs))

	oursChunks := buildChunks(baseLines, oursLines)
	theirsChunks := buildChunks(baseLines, theirsLines)

	return mergeChunks(baseLines, oursChunks, theirsChunks)
}

// Format re-renders a merge result from its hunks with the given conflict
// labels, so callers can write markers naming the commits being merged.
func Format(res Result, oursLabel, theirsLabel string) []byte {
	var buf bytes.Buffer
	for _, h := range res.Hunks {
		if h.Type == HunkClean {
			buf.Write(h.Merged)
			continue
		}
		buf.WriteString("<<<<<<< " + oursLabel + "\n")
		buf.Write(h.Ours)
		buf.WriteString("=======\n")
		buf.Write(h.Theirs)
		buf.WriteString(">>>>>>> " + theirsLabel + "\n")
	}
	return buf.Bytes()
}

// splitLines splits s into lines. A trailing newline does not produce an
// extra empty element.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// chunk represents a contiguous region relative to the base.
type chunk struct {
	baseStart, baseEnd int      // range [baseStart, baseEnd) in base
	lines              []string // replacement lines for this region
	changed            bool     // true if this region differs from base
}

// buildChunks converts a two-way diff (base → side) into a list of chunks.
// Each chunk covers a contiguous range of base lines and carries the
// corresponding replacement lines from the side.
func buildChunks(base, side []string) []chunk {
	ops := diffLines(base, side)

	var chunks []chunk
	baseIdx := 0

	i := 0
	for i < len(ops) {
		op := ops[i]

		if op.typ == opEqual {
			// One equal line → unchanged chunk.
			chunks = append(chunks, chunk{
				baseStart: baseIdx,
				baseEnd:   baseIdx + 1,
				lines:     []string{op.line},
				changed:   false,
			})
			baseIdx++
			i++
			continue
		}

		// Accumulate a contiguous changed region (deletes and/or inserts).
		chunkStart := baseIdx
		var sideLines []string

		for i < len(ops) && ops[i].typ != opEqual {
			if ops[i].typ == opDelete {
				baseIdx++
			} else {
				sideLines = append(sideLines, ops[i].line)
			}
			i++
		}

		chunks = append(chunks, chunk{
			baseStart: chunkStart,
			baseEnd:   baseIdx,
			lines:     sideLines,
			changed:   true,
		})
	}

	return chunks
}

// mergeChunks walks two chunk sequences (ours and theirs) in parallel,
// aligned by base-line positions, to produce the merge result.
func mergeChunks(baseLines []string, oursChunks, theirsChunks []chunk) Result {
	var merged bytes.Buffer
	var hunks []Hunk
	hasConflicts := false

	oi := 0
	ti := 0

	for oi < len(oursChunks) || ti < len(theirsChunks) {
		var oc, tc *chunk
		if oi < len(oursChunks) {
			oc = &oursChunks[oi]
		}
		if ti < len(theirsChunks) {
			tc = &theirsChunks[ti]
		}

		if oc == nil {
			// Only theirs left.
			writeChunk(&merged, tc)
			hunks = append(hunks, makeCleanHunk(baseLines, tc))
			ti++
			continue
		}
		if tc == nil {
			// Only ours left.
			writeChunk(&merged, oc)
			hunks = append(hunks, makeCleanHunk(baseLines, oc))
			oi++
			continue
		}

		// Both chunks available. They should cover the same base region
		// since they are derived from the same base.
		if oc.baseStart == tc.baseStart && oc.baseEnd == tc.baseEnd {
			if !oc.changed && !tc.changed {
				// Both unchanged → take base.
				writeChunk(&merged, oc)
				hunks = append(hunks, makeCleanHunk(baseLines, oc))
			} else if oc.changed && !tc.changed {
				writeChunk(&merged, oc)
				hunks = append(hunks, makeCleanHunk(baseLines, oc))
			} else if !oc.changed && tc.changed {
				writeChunk(&merged, tc)
				hunks = append(hunks, makeCleanHunk(baseLines, tc))
			} else {
				// Both changed.
				if linesEqual(oc.lines, tc.lines) {
					// Identical change → take either, clean.
					writeChunk(&merged, oc)
					hunks = append(hunks, makeCleanHunk(baseLines, oc))
				} else {
					hasConflicts = true
					writeConflict(&merged, oc.lines, tc.lines)
					hunks = append(hunks, makeConflictHunk(baseLines, oc, tc))
				}
			}
			oi++
			ti++
			continue
		}

		// Chunks are misaligned: one side has a change spanning multiple
		// base-aligned chunks on the other side. Collect every overlapping
		// chunk from both sides into one region.
		regionStart := min(oc.baseStart, tc.baseStart)
		regionEnd := max(oc.baseEnd, tc.baseEnd)

		var oursRegion []chunk
		for oi < len(oursChunks) && oursChunks[oi].baseStart < regionEnd {
			oursRegion = append(oursRegion, oursChunks[oi])
			if oursChunks[oi].baseEnd > regionEnd {
				regionEnd = oursChunks[oi].baseEnd
			}
			oi++
		}

		var theirsRegion []chunk
		for ti < len(theirsChunks) && theirsChunks[ti].baseStart < regionEnd {
			theirsRegion = append(theirsRegion, theirsChunks[ti])
			if theirsChunks[ti].baseEnd > regionEnd {
				regionEnd = theirsChunks[ti].baseEnd
			}
			ti++
		}

		oursOut := assembleRegion(oursRegion)
		theirsOut := assembleRegion(theirsRegion)
		anyOursChanged := anyChanged(oursRegion)
		anyTheirsChanged := anyChanged(theirsRegion)

		baseRegion := baseLines[regionStart:regionEnd]

		switch {
		case !anyOursChanged && !anyTheirsChanged:
			writeLines(&merged, baseRegion)
			hunks = append(hunks, Hunk{
				Type:   HunkClean,
				Base:   joinLines(baseRegion),
				Merged: joinLines(baseRegion),
			})
		case anyOursChanged && !anyTheirsChanged:
			writeLines(&merged, oursOut)
			hunks = append(hunks, Hunk{
				Type:   HunkClean,
				Base:   joinLines(baseRegion),
				Ours:   joinLines(oursOut),
				Merged: joinLines(oursOut),
			})
		case !anyOursChanged && anyTheirsChanged:
			writeLines(&merged, theirsOut)
			hunks = append(hunks, Hunk{
				Type:   HunkClean,
				Base:   joinLines(baseRegion),
				Theirs: joinLines(theirsOut),
				Merged: joinLines(theirsOut),
			})
		default:
			if linesEqual(oursOut, theirsOut) {
				writeLines(&merged, oursOut)
				hunks = append(hunks, Hunk{
					Type:   HunkClean,
					Base:   joinLines(baseRegion),
					Ours:   joinLines(oursOut),
					Merged: joinLines(oursOut),
				})
			} else {
				hasConflicts = true
				writeConflict(&merged, oursOut, theirsOut)
				hunks = append(hunks, Hunk{
					Type:   HunkConflict,
					Base:   joinLines(baseRegion),
					Ours:   joinLines(oursOut),
					Theirs: joinLines(theirsOut),
				})
			}
		}
	}

	return Result{
		Merged:       merged.Bytes(),
		HasConflicts: hasConflicts,
		Hunks:        hunks,
	}
}

func writeChunk(buf *bytes.Buffer, c *chunk) {
	writeLines(buf, c.lines)
}

func writeLines(buf *bytes.Buffer, lines []string) {
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
}

func writeConflict(buf *bytes.Buffer, oursLines, theirsLines []string) {
	buf.WriteString("<<<<<<< " + DefaultOursLabel + "\n")
	writeLines(buf, oursLines)
	buf.WriteString("=======\n")
	writeLines(buf, theirsLines)
	buf.WriteString(">>>>>>> " + DefaultTheirsLabel + "\n")
}

func makeCleanHunk(baseLines []string, c *chunk) Hunk {
	h := Hunk{
		Type:   HunkClean,
		Merged: joinLines(c.lines),
	}
	if c.baseStart < c.baseEnd {
		h.Base = joinLines(baseLines[c.baseStart:c.baseEnd])
	}
	if c.changed {
		h.Ours = joinLines(c.lines)
	}
	return h
}

func makeConflictHunk(baseLines []string, oc, tc *chunk) Hunk {
	h := Hunk{
		Type:   HunkConflict,
		Ours:   joinLines(oc.lines),
		Theirs: joinLines(tc.lines),
	}
	if oc.baseStart < oc.baseEnd {
		h.Base = joinLines(baseLines[oc.baseStart:oc.baseEnd])
	}
	return h
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	var buf bytes.Buffer
	writeLines(&buf, lines)
	return buf.Bytes()
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func assembleRegion(chunks []chunk) []string {
	var lines []string
	for _, c := range chunks {
		lines = append(lines, c.lines...)
	}
	return lines
}

func anyChanged(chunks []chunk) bool {
	for _, c := range chunks {
		if c.changed {
			return true
		}
	}
	return false
}
