package compression

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Extract keeps the best sentences of content that fit in maxLength
// characters, in their original order. Markdown headings are kept first.
func Extract(content string, maxLength int) string {
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return clip(content, maxLength)
	}
	scores := scoreSentences(sentences)

	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	chosen := make([]bool, len(sentences))
	used := 0
	for _, idx := range order {
		n := len([]rune(sentences[idx])) + 1
		if used+n > maxLength {
			continue
		}
		chosen[idx] = true
		used += n
	}

	var b strings.Builder
	for i, ok := range chosen {
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(sentences[i])
	}
	if b.Len() == 0 {
		return clip(sentences[order[0]], maxLength)
	}
	return b.String()
}

// splitSentences splits on line breaks and sentence punctuation.
func splitSentences(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		cur.WriteRune(r)
		switch r {
		case '.', '!', '?', '。', '！', '？':
			if len([]rune(strings.TrimSpace(cur.String()))) > 10 {
				flush()
			}
		}
	}
	flush()
	return out
}

func scoreSentences(sentences []string) []float64 {
	freq := make(map[string]int)
	for _, s := range sentences {
		for _, w := range words(s) {
			if len([]rune(w)) > 2 {
				freq[w]++
			}
		}
	}

	scores := make([]float64, len(sentences))
	for i, s := range sentences {
		if strings.HasPrefix(s, "#") {
			scores[i] = 2
			continue
		}
		score := 0.3 / float64(i+1)

		ws := words(s)
		length := math.Min(float64(len(ws))/20, 1)
		if len(ws) > 20 {
			length = math.Max(1-(float64(len(ws))-20)/50, 0.1)
		}
		score += length * 0.4

		var rare float64
		for _, w := range ws {
			if f := freq[w]; f > 1 {
				rare += 1 / float64(f)
			}
		}
		if len(ws) > 0 {
			rare /= float64(len(ws))
		}
		scores[i] = score + rare*0.3
	}
	return scores
}

func words(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		w := strings.ToLower(strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		}))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
