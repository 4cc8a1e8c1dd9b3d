package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitByPunctuation(t *testing.T) {
	segs := SplitByPunctuation("やあ。元気？うん！")
	assert.Equal(t, []string{"やあ。", "元気？", "うん！"}, segs)
}

func TestSplitByPunctuation_LeadingEllipsis(t *testing.T) {
	segs := SplitByPunctuation("……い")
	assert.Equal(t, []string{"……", "い"}, segs)
}

func TestSplitByPunctuation_EmbeddedEllipsis(t *testing.T) {
	segs := SplitByPunctuation("あ……い")
	assert.Equal(t, []string{"あ……", "い"}, segs)
}

func TestSplitByPunctuationWithRaw_NoTags(t *testing.T) {
	pairs := SplitByPunctuationWithRaw("やあ。元気？", "やあ。元気？")
	require.Len(t, pairs, 2)
	assert.Equal(t, "やあ。", pairs[0].Text)
	assert.Equal(t, "やあ。", pairs[0].Raw)
	assert.Equal(t, "元気？", pairs[1].Text)
	assert.Equal(t, "元気？", pairs[1].Raw)
}

func TestSplitByPunctuationWithRaw_TagsCarryIntoSegment(t *testing.T) {
	pairs := SplitByPunctuationWithRaw(`やあ。元気？`, `\s[0]やあ。元気？`)
	require.Len(t, pairs, 2)
	assert.Equal(t, `\s[0]やあ。`, pairs[0].Raw)
	assert.Equal(t, "元気？", pairs[1].Raw)
}

func TestSplitByPunctuationWithRaw_SingleSegmentKeepsWholeRaw(t *testing.T) {
	pairs := SplitByPunctuationWithRaw("やあ", `\s[1]やあ`)
	require.Len(t, pairs, 1)
	assert.Equal(t, `\s[1]やあ`, pairs[0].Raw)
}

func TestResplitPairsByRawEllipsis(t *testing.T) {
	pairs := []Pair{{Text: "やあ", Raw: `やあ\_q……\_q`}}
	resplit := ResplitPairsByRawEllipsis(pairs)
	require.Len(t, resplit, 2)
	assert.Equal(t, "やあ", resplit[0].Text)
	assert.True(t, IsEllipsisSegment(resplit[1].Text))
}

func TestResplitPairsByRawEllipsis_LeavesNonMatchingPairsAlone(t *testing.T) {
	pairs := []Pair{{Text: "やあ", Raw: "やあ"}}
	resplit := ResplitPairsByRawEllipsis(pairs)
	require.Len(t, resplit, 1)
	assert.Equal(t, pairs[0], resplit[0])
}
