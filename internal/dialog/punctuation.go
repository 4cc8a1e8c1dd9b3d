package dialog

import (
	"strings"
	"unicode/utf8"
)

// Pair couples a punctuation-bounded clean-text segment with the raw
// (tag-bearing) slice of script it was cut from, so downstream consumers
// that want to show the original text can still align it to what's being
// spoken.
type Pair struct {
	Text string
	Raw  string
}

// SplitByPunctuation cuts clean text at sentence-ending delimiters
// (！!?？。) and, independently, pulls runs of ellipsis markers out as
// their own segments — "あ……い" becomes ["あ……", "い"], and a leading run
// of ellipsis becomes a segment by itself.
func SplitByPunctuation(src string) []string {
	t := delimsRe.ReplaceAllString(src, "$0\x00")
	var result []string
	for _, text := range strings.Split(t, "\x00") {
		if text == "" {
			continue
		}
		for _, seg := range splitKeepingDelimiters(text, ellipsisRe) {
			if seg != "" {
				result = append(result, seg)
			}
		}
	}
	return result
}

func splitKeepingDelimiters(text string, re interface {
	FindAllStringIndex(string, int) [][]int
}) []string {
	var result []string
	lastEnd := 0
	for _, m := range re.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		if start > lastEnd {
			result = append(result, text[lastEnd:end])
		} else {
			result = append(result, text[start:end])
		}
		lastEnd = end
	}
	if lastEnd < len(text) {
		result = append(result, text[lastEnd:])
	}
	return result
}

// SplitByPunctuationWithRaw splits clean text the same way SplitByPunctuation
// does, and aligns each resulting segment back to the slice of raw
// (tag-bearing) text it came from by walking both strings together: sakura
// tags in raw are skipped without consuming a clean character, and a
// mismatched character triggers a forward scan through the rest of raw
// (skipping tags) for that character. If the scan does not find it, the
// character exists only in clean (e.g. a 。 inserted by SplitDialog) and
// raw does not advance.
func SplitByPunctuationWithRaw(clean, raw string) []Pair {
	cleanSegments := SplitByPunctuation(clean)
	if len(cleanSegments) <= 1 {
		text := ""
		if len(cleanSegments) > 0 {
			text = cleanSegments[0]
		}
		return []Pair{{Text: text, Raw: raw}}
	}

	tagRanges := sakuraScriptRe.FindAllStringIndex(raw, -1)
	rawPos := 0
	tagIdx := 0
	result := make([]Pair, 0, len(cleanSegments))

	for _, cleanSeg := range cleanSegments {
		rawStart := rawPos
		for _, c := range cleanSeg {
			for tagIdx < len(tagRanges) && tagRanges[tagIdx][0] == rawPos {
				rawPos = tagRanges[tagIdx][1]
				tagIdx++
			}
			if rawPos >= len(raw) {
				continue
			}
			r, size := utf8.DecodeRuneInString(raw[rawPos:])
			if r == c {
				rawPos += size
				continue
			}
			// Forward scan past the mismatch looking for c, skipping tags
			// along the way; if never found, c is artificial (exists only
			// in the clean stream) and rawPos is left where it was.
			scanPos := rawPos
			scanTagIdx := tagIdx
			for scanPos < len(raw) {
				for scanTagIdx < len(tagRanges) && tagRanges[scanTagIdx][0] == scanPos {
					scanPos = tagRanges[scanTagIdx][1]
					scanTagIdx++
				}
				if scanPos >= len(raw) {
					break
				}
				sr, ssize := utf8.DecodeRuneInString(raw[scanPos:])
				if sr == c {
					rawPos = scanPos + ssize
					tagIdx = scanTagIdx
					break
				}
				scanPos += ssize
			}
		}
		for tagIdx < len(tagRanges) && tagRanges[tagIdx][0] == rawPos {
			rawPos = tagRanges[tagIdx][1]
			tagIdx++
		}
		result = append(result, Pair{Text: cleanSeg, Raw: raw[rawStart:rawPos]})
	}

	if rawPos < len(raw) && len(result) > 0 {
		result[len(result)-1].Raw += raw[rawPos:]
	}
	return result
}

// ResplitPairsByRawEllipsis re-cuts a quick-section's pairs when the clean
// text hides an ellipsis that only shows up once tags are stripped from
// the raw text — quick sections keep their content in Raw but drop it from
// Text, so an ellipsis written inside one is invisible to Text alone.
func ResplitPairsByRawEllipsis(pairs []Pair) []Pair {
	var result []Pair
	for _, p := range pairs {
		rawClean := clearTags(p.Raw)
		if p.Text != "" && !ellipsisRe.MatchString(p.Text) && ellipsisRe.MatchString(rawClean) {
			result = append(result, SplitByPunctuationWithRaw(rawClean, p.Raw)...)
		} else {
			result = append(result, p)
		}
	}
	return result
}
