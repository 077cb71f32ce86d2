package features

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	hashtagPattern  = regexp.MustCompile(`#\w+`)
	mentionPattern  = regexp.MustCompile(`@\w+`)
	cashtagPattern  = regexp.MustCompile(`\$[A-Za-z][A-Za-z0-9]{0,9}\b`)
	sentencePattern = regexp.MustCompile(`[.!?]+`)
)

// emojiRanges are the code point ranges counted as emoji.
var emojiRanges = [][2]rune{
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F300, 0x1F5FF}, // symbols & pictographs
	{0x1F680, 0x1F6FF}, // transport & map
	{0x1F1E0, 0x1F1FF}, // flags
	{0x2600, 0x26FF},   // misc symbols
	{0x2700, 0x27BF},   // dingbats
	{0x1F900, 0x1F9FF}, // supplemental symbols & pictographs
}

func isEmoji(r rune) bool {
	for _, rng := range emojiRanges {
		if r >= rng[0] && r <= rng[1] {
			return true
		}
	}
	return false
}

// CountEmoji counts runes inside the emoji ranges.
func CountEmoji(text string) int {
	n := 0
	for _, r := range text {
		if isEmoji(r) {
			n++
		}
	}
	return n
}

// HashtagCount counts #tags in text.
func HashtagCount(text string) int { return len(hashtagPattern.FindAllString(text, -1)) }

// MentionCount counts @mentions in text.
func MentionCount(text string) int { return len(mentionPattern.FindAllString(text, -1)) }

// Hashtags returns the lowercased #tags in text.
func Hashtags(text string) []string {
	tags := hashtagPattern.FindAllString(text, -1)
	for i, tag := range tags {
		tags[i] = strings.ToLower(tag)
	}
	return tags
}

func textFeatures(text string, imageCount int) *Vector {
	v := NewVector()
	words := strings.Fields(text)

	var letters, upper, wordRunes int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	for _, w := range words {
		wordRunes += len([]rune(w))
	}

	sentences := 0
	for _, part := range sentencePattern.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			sentences++
		}
	}

	v.Set("char_count", float64(len([]rune(text))))
	v.Set("word_count", float64(len(words)))
	v.Set("sentence_count", float64(sentences))
	v.Set("avg_word_length", ratio(float64(wordRunes), float64(len(words))))
	v.Set("question_count", float64(strings.Count(text, "?")))
	v.Set("exclamation_count", float64(strings.Count(text, "!")))
	v.Set("uppercase_ratio", ratio(float64(upper), float64(letters)))
	v.Set("emoji_count", float64(CountEmoji(text)))
	v.Set("url_count", float64(len(urlPattern.FindAllString(text, -1))))
	v.Set("hashtag_count", float64(HashtagCount(text)))
	v.Set("mention_count", float64(MentionCount(text)))
	v.Set("cashtag_count", float64(len(cashtagPattern.FindAllString(text, -1))))
	v.SetBool("has_image", imageCount > 0)
	v.Set("image_count", float64(imageCount))
	return v
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
