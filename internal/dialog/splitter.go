package dialog

import "strings"

// Dialog is one scope-tagged span of script: the cleaned, speakable text
// and the original (tag-bearing) text it came from, both attributed to the
// sakura-script scope that was active when they were written.
type Dialog struct {
	Text    string
	RawText string
	Scope   int
}

// SplitDialog breaks a full line of host script into per-scope dialog
// spans. Quick sections (balloon-only asides) are dropped from Text but
// their content is preserved in RawText; \0 bytes inside a span (left by
// an embedded scope change that produced no visible prefix) split it into
// multiple Dialogs sharing the same RawText.
//
// When devideByLines is set, newline tags are treated as sentence
// terminators: each is followed by an inserted "。" before tag clearing,
// matching how hosts that never send punctuation still get per-line
// segmentation.
func SplitDialog(src string, devideByLines bool) []Dialog {
	// raw_text uses the pre-"。"-insertion text with only the quick-section
	// tags (not their content) removed.
	rawDialogs := splitDialogLocal(stripQuickSectionTagsOnly(src))

	s := deleteQuickSection(src)
	if devideByLines {
		s = linesRe.ReplaceAllString(s, "$0。")
	}

	raws := splitDialogLocal(s)
	for i := range raws {
		if i < len(rawDialogs) {
			raws[i].RawText = rawDialogs[i].RawText
		}
		raws[i].Text = clearTags(raws[i].Text)
	}

	var result []Dialog
	accumulatedPrefix := ""
	for _, r := range raws {
		if r.Text == "" {
			// Scope tag plus raw text carries no speakable content on its
			// own; fold it into the prefix of whatever comes next.
			accumulatedPrefix += scopeToTag(r.Scope) + r.RawText
			continue
		}
		rawText := r.RawText
		if accumulatedPrefix != "" {
			rawText = accumulatedPrefix + scopeToTag(r.Scope) + r.RawText
			accumulatedPrefix = ""
		}
		for _, text := range strings.Split(r.Text, "\x00") {
			if text == "" {
				continue
			}
			result = append(result, Dialog{Text: text, RawText: rawText, Scope: r.Scope})
		}
	}
	return result
}

// splitDialogLocal splits src on every scope-change tag (\0 \h \1 \u
// \p[N]), prefixing src with an implicit \0 so text before the first
// explicit tag is attributed to scope 0.
func splitDialogLocal(src string) []Dialog {
	if src == "" {
		return nil
	}
	s := "\\0" + src

	matches := changeScopeRe.FindAllStringSubmatchIndex(s, -1)
	result := make([]Dialog, 0, len(matches))
	for i, m := range matches {
		// m = [fullStart, fullEnd, g1Start, g1End, g2Start, g2End]
		scope := 0
		if m[2] != -1 {
			switch s[m[2]:m[3]] {
			case "0", "h":
				scope = 0
			case "1", "u":
				scope = 1
			}
		} else if m[4] != -1 {
			scope = parseUint(s[m[4]:m[5]])
		}

		textStart := m[1]
		textEnd := len(s)
		if i+1 < len(matches) {
			textEnd = matches[i+1][0]
		}
		text := s[textStart:textEnd]
		result = append(result, Dialog{Text: text, RawText: text, Scope: scope})
	}
	return result
}

func parseUint(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
