// Package dialog turns host dialogue script — sakura-script tags mixed
// with plain text — into the clean, scope-tagged, punctuation-bounded
// segments the rest of the worker speaks one at a time.
//
// Every function here is pure: no I/O, no shared state. The package
// mirrors the teacher's own text-processing style (internal/tts's
// sanitizeTextForPiper, internal/bridge's extractCompleteSentences) —
// regexp-driven passes plus a manual rune/byte-offset walk where a regex
// alone can't express the alignment needed.
package dialog

import "regexp"

var (
	linesRe         = regexp.MustCompile(`(\\n(\[[^\]]+\])?)+`)
	delimsRe        = regexp.MustCompile(`[！!?？。]`)
	ellipsisRe      = regexp.MustCompile(`[…]+|・{2,}|\.{2,}`)
	ellipsisFullRe  = regexp.MustCompile(`^(?:[…]+|・{2,}|\.{2,})$`)
	changeScopeRe   = regexp.MustCompile(`\\([0h1u])|\\p\[([0-9]+)\]`)
	sakuraScriptRe  = regexp.MustCompile(`\\_{0,2}(w[1-9]|[a-zA-Z0-9*!&\-+](\[("(?:[^"]|\\")+?"|(?:[^\]]|\\\])+?)+?\])?)`)
	quickSectionRe  = regexp.MustCompile(`(\\_q|\\!\[quicksection,(?:0|1|true|false)\])`)
)

// IsEllipsisSegment reports whether text is composed entirely of ellipsis
// markers ("…", two-or-more "・", or two-or-more ".") and nothing else.
// Such segments carry a pause, not speakable content.
func IsEllipsisSegment(text string) bool {
	if text == "" {
		return false
	}
	return ellipsisFullRe.MatchString(text)
}

// scopeToTag renders a scope number back into its canonical sakura-script
// tag, used when re-attaching an accumulated scope-change prefix to the
// next non-empty dialog.
func scopeToTag(scope int) string {
	switch scope {
	case 0:
		return `\0`
	case 1:
		return `\1`
	default:
		return `\p[` + itoa(scope) + `]`
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// clearTags strips every sakura-script control tag from src, leaving only
// the speakable text.
func clearTags(src string) string {
	return sakuraScriptRe.ReplaceAllString(src, "")
}

// deleteQuickSection removes every \_q ... \_q (or \![quicksection,1] ...
// \![quicksection,0]) block, tags and enclosed text alike. Quick sections
// are balloon-display-only asides that are never spoken.
func deleteQuickSection(src string) string {
	openTags := []string{`\![quicksection,1]`, `\![quicksection,true]`, `\_q`}
	closeTags := []string{`\![quicksection,0]`, `\![quicksection,false]`, `\_q`}

	findEarliest := func(s string, tags []string) (idx, tagLen int, found bool) {
		best := -1
		bestLen := 0
		for _, tag := range tags {
			if i := indexOf(s, tag); i >= 0 && (best == -1 || i < best) {
				best = i
				bestLen = len(tag)
			}
		}
		if best == -1 {
			return 0, 0, false
		}
		return best, bestLen, true
	}

	var result []byte
	s := src
	inSection := false
	for {
		if !inSection {
			idx, tagLen, found := findEarliest(s, openTags)
			if !found {
				result = append(result, s...)
				break
			}
			result = append(result, s[:idx]...)
			s = s[idx+tagLen:]
			inSection = true
		} else {
			idx, tagLen, found := findEarliest(s, closeTags)
			if !found {
				break
			}
			s = s[idx+tagLen:]
			inSection = false
		}
	}
	return string(result)
}

// stripQuickSectionTagsOnly removes only the \_q / \![quicksection,...]
// tags themselves, keeping the text between them — used to build raw_text,
// which must preserve quick-section content for the host's use even though
// it is never spoken.
func stripQuickSectionTagsOnly(src string) string {
	return quickSectionRe.ReplaceAllString(src, "")
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
