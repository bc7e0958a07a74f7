package salesflow

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize prepares free text for keyword matching: NFC composition,
// Unicode-aware lower casing, and whitespace collapsed to single spaces.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	// cases.Caser keeps state, so a fresh one per call keeps Normalize
	// safe for concurrent use.
	s = cases.Lower(language.Und).String(s)
	return strings.Join(strings.Fields(s), " ")
}

// KeywordSet is an ordered list of normalized keywords or short phrases.
// A keyword matches when it occurs in the text on word boundaries, so "hi"
// matches "hi there" but not "this".
type KeywordSet []string

// NewKeywordSet normalizes and de-duplicates words, keeping their order.
func NewKeywordSet(words ...string) KeywordSet {
	seen := make(map[string]struct{}, len(words))
	out := make(KeywordSet, 0, len(words))
	for _, w := range words {
		w = Normalize(w)
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Match reports whether any keyword occurs in the normalized text.
func (k KeywordSet) Match(text string) bool {
	for _, w := range k {
		if containsWord(text, w) {
			return true
		}
	}
	return false
}

// Count returns how many distinct keywords occur in the normalized text.
func (k KeywordSet) Count(text string) int {
	n := 0
	for _, w := range k {
		if containsWord(text, w) {
			n++
		}
	}
	return n
}

// Contains reports whether w is one of the keywords.
func (k KeywordSet) Contains(w string) bool {
	w = Normalize(w)
	for _, kw := range k {
		if kw == w {
			return true
		}
	}
	return false
}

// HasPrefix reports whether the normalized text starts with a keyword
// followed by a word boundary.
func (k KeywordSet) HasPrefix(text string) bool {
	for _, w := range k {
		if strings.HasPrefix(text, w) && boundaryAfter(text, len(w)) {
			return true
		}
	}
	return false
}

// containsWord finds w in text with non-word runes (or the text edges) on
// both sides.
func containsWord(text, w string) bool {
	if w == "" {
		return false
	}
	from := 0
	for from <= len(text)-len(w) {
		i := strings.Index(text[from:], w)
		if i < 0 {
			return false
		}
		i += from
		if boundaryBefore(text, i) && boundaryAfter(text, i+len(w)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		from = i + size
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ----------------------------------------------------------------------------
// Default keyword tables (Russian and English)

var (
	greetingKeywords = NewKeywordSet(
		"привет", "приветствую", "здравствуй", "здравствуйте", "добрый день", "добрый вечер",
		"доброе утро", "начать",
		"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
	)
	needsKeywords = NewKeywordSet(
		"нужно", "нужен", "нужна", "хочу", "хотим", "интересно", "проблема", "проблемы",
		"задача", "задачи", "помощь", "помогите", "автоматизация", "автоматизировать",
		"need", "want", "problem", "task", "help", "automate", "automation",
	)
	presentationKeywords = NewKeywordSet(
		"расскажи", "расскажите", "что", "как", "услуги", "решения", "возможности",
		"tell me", "what", "how", "services", "solutions", "capabilities",
	)
	objectionKeywords = NewKeywordSet(
		"дорого", "не нужно", "не интересно", "позже", "думаю", "подумаю", "сомневаюсь",
		"expensive", "not needed", "not interested", "later", "not sure", "doubt",
	)
	consultationKeywords = NewKeywordSet(
		"консультация", "консультацию", "встреча", "встречу", "обсудить", "поговорить",
		"созвон", "созвониться", "узнать больше",
		"consultation", "meeting", "discuss", "talk", "call", "learn more",
	)
	schedulingKeywords = NewKeywordSet(
		"когда", "время", "договориться", "записаться", "встретиться",
		"when", "schedule", "time slot", "book", "calendar",
	)
)

var (
	salesKeywords = NewKeywordSet(
		"бот", "чат-бот", "ai", "искусственный интеллект", "ии", "автоматизация", "автоматизировать",
		"ml", "machine learning", "машинное обучение", "ocr", "speech-to-text", "распознавание",
		"nlp", "компьютерное зрение", "computer vision", "проект", "разработка", "разработать",
		"внедрение", "внедрить", "система", "платформа", "api", "интеграция", "интегрировать",
		"модель", "нейросеть", "llm", "чат", "ассистент", "помощник", "решение", "технология",
		"алгоритм", "анализ данных", "data science", "deep learning", "обработка текста",
		"обработка изображений", "обработка речи", "классификация",
		"bot", "chatbot", "automation", "project", "integration", "assistant", "model",
	)
	salesImportant = NewKeywordSet(
		"ai", "искусственный интеллект", "ии", "автоматизация", "бот", "чат-бот",
		"разработка", "проект", "ocr", "speech-to-text", "chatbot", "automation",
	)
	realEstateKeywords = NewKeywordSet(
		"недвижимость", "пхукет", "phuket", "вилла", "виллу", "кондо", "квартира", "квартиру",
		"дом", "земля", "участок", "лаян", "layan", "найтон", "nai thon", "bang tao", "банг-тао",
		"чанот", "chanote", "квота", "quota", "покупка", "купить", "продажа", "аренда", "арендовать",
		"снять", "инвестиция", "инвестиции", "инвестировать", "thb", "бат", "baht", "цена", "стоимость",
		"объект", "показ", "посмотреть", "район", "море", "sea", "пляж", "beach", "вид", "view",
		"спальни", "bedroom", "bedrooms", "villa", "condo", "real estate", "property", "rent", "buy",
	)
	realEstateImportant = NewKeywordSet(
		"недвижимость", "пхукет", "phuket", "вилла", "кондо", "лаян", "найтон", "чанот",
		"квота", "инвестиция", "покупка", "аренда", "real estate", "villa", "condo",
	)
	smallTalkKeywords = NewKeywordSet(
		"привет", "здравствуй", "как дела", "спасибо", "пожалуйста", "погода", "как жизнь",
		"что нового", "отлично", "хорошо", "плохо",
		"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "thanks",
		"thank you", "how are you", "what's up",
	)
)

var (
	priceKeywords = NewKeywordSet(
		"дорого", "дорогой", "дорогая", "дорогие", "бюджет", "стоимость", "цена", "стоит",
		"дешевле", "дешево", "не по карману",
		"expensive", "cost", "price", "budget", "too much", "afford",
	)
	timingKeywords = NewKeywordSet(
		"позже", "не сейчас", "не время", "некогда", "потом", "в другой раз", "сейчас не готов",
		"later", "not now", "not ready", "timing", "too early", "too late",
	)
	needKeywords = NewKeywordSet(
		"не нужно", "не нужен", "не нужна", "не нужны", "не интересно", "не требуется", "не актуально",
		"don't need", "not needed", "not interested", "not relevant", "not necessary",
	)
	trustKeywords = NewKeywordSet(
		"сомневаюсь", "не уверен", "не уверена", "не доверяю", "не знаю", "риск", "опасно", "ненадежно",
		"doubt", "not sure", "don't trust", "risk", "unsure", "uncertain",
	)
	competitorKeywords = NewKeywordSet(
		"конкурент", "конкуренты", "другая компания", "уже есть", "используем другое",
		"competitor", "other company", "already have", "using something else",
	)
)
