package memory

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var wordRe = regexp.MustCompile(`[а-яёa-z]+`)

// stopWords is a fixed set; changing it changes which memories are
// considered relevant, so additions need care.
var stopWords = map[string]struct{}{
	"я": {}, "ты": {}, "он": {}, "она": {}, "мы": {}, "вы": {}, "они": {},
	"это": {}, "что": {}, "как": {}, "так": {}, "но": {}, "и": {}, "или": {},
	"не": {}, "да": {}, "нет": {}, "мне": {}, "меня": {}, "тебе": {},
	"его": {}, "её": {}, "их": {}, "нас": {}, "вас": {}, "быть": {},
	"был": {}, "была": {}, "было": {}, "будет": {}, "есть": {}, "для": {},
	"на": {}, "по": {}, "от": {}, "до": {}, "при": {}, "после": {},
	"уже": {}, "ещё": {}, "тоже": {}, "очень": {}, "просто": {}, "вот": {},
	"там": {}, "тут": {}, "сегодня": {}, "вчера": {}, "завтра": {},
	"когда": {}, "если": {}, "чтобы": {}, "потому": {},
}

const maxKeywords = 10

// ExtractKeywords pulls search terms out of a message: lowercase
// cyrillic/latin words longer than two letters, stop words removed,
// capped at ten.
func ExtractKeywords(text string) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)

	var keywords []string
	for _, w := range words {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
