package search

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// matchResult is the outcome of matching one pattern against one field value.
type matchResult struct {
	isMatch bool
	score   float64
	indices [][2]int
}

// pattern is a lowercased query prepared for Bitap matching.
type pattern struct {
	text     string
	runes    []rune
	alphabet map[rune]uint32
	long     *regexp.Regexp
}

// wordSize is the number of pattern runes one Bitap state word can track.
const wordSize = 32

var tokenSeparator = regexp.MustCompile(` +`)

func newPattern(query string, maxLen int) *pattern {
	if maxLen <= 0 || maxLen > wordSize {
		maxLen = wordSize
	}
	lowered := strings.ToLower(query)
	p := &pattern{
		text:  lowered,
		runes: []rune(lowered),
	}

	if len(p.runes) > maxLen {
		tokens := tokenSeparator.Split(lowered, -1)
		quoted := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if tok == "" {
				continue
			}
			quoted = append(quoted, regexp.QuoteMeta(tok))
		}
		p.long = regexp.MustCompile(strings.Join(quoted, "|"))
		return p
	}

	p.alphabet = make(map[rune]uint32, len(p.runes))
	n := len(p.runes)
	for i, r := range p.runes {
		p.alphabet[r] |= 1 << uint(n-i-1)
	}
	return p
}

// match scores the pattern against a lowercased value. A score of 0 is an exact match,
// 1 is a complete mismatch.
func (p *pattern) match(value string, text []rune, o Options) matchResult {
	if p.text == value {
		return matchResult{isMatch: true, score: 0, indices: [][2]int{{0, len(text) - 1}}}
	}
	if p.long != nil {
		return p.tokenMatch(value)
	}
	return bitap(text, p.runes, p.alphabet, o)
}

// tokenMatch handles patterns longer than the Bitap word size: any space-separated
// token found as a substring counts as a match with a flat score. Every occurrence
// is reported in rune offsets.
func (p *pattern) tokenMatch(value string) matchResult {
	locs := p.long.FindAllStringIndex(value, -1)
	if locs == nil {
		return matchResult{score: 1}
	}
	indices := make([][2]int, 0, len(locs))
	for _, loc := range locs {
		start := utf8.RuneCountInString(value[:loc[0]])
		end := start + utf8.RuneCountInString(value[loc[0]:loc[1]]) - 1
		indices = append(indices, [2]int{start, end})
	}
	return matchResult{isMatch: true, score: 0.5, indices: indices}
}

// bitap runs the fuzzy Bitap search. The search considers every position of the text and
// penalizes matches by their edit count and their distance from o.Location.
func bitap(text, pat []rune, alphabet map[rune]uint32, o Options) matchResult {
	expected := o.Location
	textLen := len(text)
	patternLen := len(pat)
	threshold := o.Threshold
	matchMask := make([]bool, textLen)

	// An exact occurrence tightens the threshold before the fuzzy pass.
	bestLocation := indexRunes(text, pat, expected)
	if bestLocation != -1 {
		threshold = math.Min(score(patternLen, 0, bestLocation, expected, o.Distance), threshold)

		bestLocation = lastIndexRunes(text, pat, expected+patternLen)
		if bestLocation != -1 {
			threshold = math.Min(score(patternLen, 0, bestLocation, expected, o.Distance), threshold)
		}
	}

	bestLocation = -1
	finalScore := 1.0
	binMax := patternLen + textLen

	mask := uint32(1) << uint(patternLen-1)

	var lastBitArr []uint32
	for i := 0; i < patternLen; i++ {
		// Binary search for how far from the expected location a match with i errors may be.
		binMin, binMid := 0, binMax
		for binMin < binMid {
			if score(patternLen, i, expected+binMid, expected, o.Distance) <= threshold {
				binMin = binMid
			} else {
				binMax = binMid
			}
			binMid = (binMax-binMin)/2 + binMin
		}
		binMax = binMid

		start := max(1, expected-binMid+1)
		finish := textLen

		bitArr := make([]uint32, finish+2)
		bitArr[finish+1] = (uint32(1) << uint(i)) - 1

		for j := finish; j >= start; j-- {
			current := j - 1

			var charMatch uint32
			if current < textLen {
				charMatch = alphabet[text[current]]
			}
			if charMatch != 0 {
				matchMask[current] = true
			}

			bitArr[j] = ((bitArr[j+1] << 1) | 1) & charMatch
			if i != 0 {
				bitArr[j] |= ((at(lastBitArr, j+1) | at(lastBitArr, j)) << 1) | 1 | at(lastBitArr, j+1)
			}

			if bitArr[j]&mask != 0 {
				finalScore = score(patternLen, i, current, expected, o.Distance)
				if finalScore <= threshold {
					threshold = finalScore
					bestLocation = current
					if bestLocation <= expected {
						break
					}
					start = max(1, 2*expected-bestLocation)
				}
			}
		}

		// No match with one more error can beat the current threshold.
		if score(patternLen, i+1, expected, expected, o.Distance) > threshold {
			break
		}
		lastBitArr = bitArr
	}

	if finalScore == 0 {
		finalScore = 0.001
	}

	return matchResult{
		isMatch: bestLocation >= 0,
		score:   finalScore,
		indices: matchedIndices(matchMask, o.MinMatchCharLength),
	}
}

// score combines the error ratio with the distance penalty.
func score(patternLen, errors, current, expected, distance int) float64 {
	accuracy := float64(errors) / float64(patternLen)
	proximity := current - expected
	if proximity < 0 {
		proximity = -proximity
	}
	if distance == 0 {
		if proximity != 0 {
			return 1
		}
		return accuracy
	}
	return accuracy + float64(proximity)/float64(distance)
}

// matchedIndices collapses the per-rune match mask into [start, end] runs of at least minLen.
func matchedIndices(mask []bool, minLen int) [][2]int {
	indices := [][2]int{}
	start := -1
	for i, m := range mask {
		switch {
		case m && start == -1:
			start = i
		case !m && start != -1:
			if i-start >= minLen {
				indices = append(indices, [2]int{start, i - 1})
			}
			start = -1
		}
	}
	if start != -1 && len(mask)-start >= minLen {
		indices = append(indices, [2]int{start, len(mask) - 1})
	}
	return indices
}

func at(arr []uint32, i int) uint32 {
	if i < 0 || i >= len(arr) {
		return 0
	}
	return arr[i]
}

func indexRunes(text, pat []rune, from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i+len(pat) <= len(text); i++ {
		if equalRunes(text[i:i+len(pat)], pat) {
			return i
		}
	}
	return -1
}

func lastIndexRunes(text, pat []rune, from int) int {
	last := len(text) - len(pat)
	if from < last {
		last = from
	}
	for i := last; i >= 0; i-- {
		if equalRunes(text[i:i+len(pat)], pat) {
			return i
		}
	}
	return -1
}

func equalRunes(a, b []rune) bool {
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
