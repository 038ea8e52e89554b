package keywords

import (
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

// Extractor pulls ranked keywords from document text. Results are used to
// enrich chunk metadata so indexed documents carry searchable topic tags.
type Extractor struct {
	// Common stop words to filter out
	stopWords map[string]bool
	// Minimum keyword length
	minLength int
}

// New creates a keyword extractor
func New() *Extractor {
	stopWords := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
		"be": true, "been": true, "have": true, "has": true, "had": true, "do": true,
		"does": true, "did": true, "will": true, "would": true, "could": true, "should": true,
		"this": true, "that": true, "these": true, "those": true, "i": true, "you": true,
		"he": true, "she": true, "it": true, "we": true, "they": true, "my": true,
		"your": true, "his": true, "her": true, "its": true, "our": true, "their": true,
	}

	return &Extractor{
		stopWords: stopWords,
		minLength: 2,
	}
}

// Keyword represents a keyword with its frequency and importance
type Keyword struct {
	Word      string  `json:"word"`
	Frequency int     `json:"frequency"`
	Score     float64 `json:"score"`
	PosTag    string  `json:"pos_tag"`
}

// Extract tokenizes text, filters noise words and ranks the remainder by a
// POS-weighted frequency score
func (e *Extractor) Extract(text string) ([]Keyword, error) {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, err
	}

	wordFreq := make(map[string]*Keyword)

	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)

		if e.shouldSkipWord(word, tok.Tag) {
			continue
		}

		score := e.calculateScore(tok.Tag)

		if existing, exists := wordFreq[word]; exists {
			existing.Frequency++
			existing.Score += score
		} else {
			wordFreq[word] = &Keyword{
				Word:      word,
				Frequency: 1,
				Score:     score,
				PosTag:    tok.Tag,
			}
		}
	}

	// Named entities get a score boost
	for _, ent := range doc.Entities() {
		word := strings.ToLower(ent.Text)
		if len(word) >= e.minLength && !e.stopWords[word] {
			if existing, exists := wordFreq[word]; exists {
				existing.Score += 2.0
			} else {
				wordFreq[word] = &Keyword{
					Word:      word,
					Frequency: 1,
					Score:     2.0,
					PosTag:    "NE_" + ent.Label,
				}
			}
		}
	}

	var keywords []Keyword
	for _, result := range wordFreq {
		result.Score = result.Score * float64(result.Frequency)
		keywords = append(keywords, *result)
	}

	sort.Slice(keywords, func(i, j int) bool {
		return keywords[i].Score > keywords[j].Score
	})

	return keywords, nil
}

// ExtractTop returns the top N keywords
func (e *Extractor) ExtractTop(text string, limit int) ([]Keyword, error) {
	keywords, err := e.Extract(text)
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(keywords) > limit {
		return keywords[:limit], nil
	}

	return keywords, nil
}

// ExtractStrings returns just the keyword strings
func (e *Extractor) ExtractStrings(text string, limit int) ([]string, error) {
	keywords, err := e.ExtractTop(text, limit)
	if err != nil {
		return nil, err
	}

	result := make([]string, len(keywords))
	for i, kw := range keywords {
		result[i] = kw.Word
	}

	return result, nil
}

// shouldSkipWord determines if a word should be filtered out
func (e *Extractor) shouldSkipWord(word, posTag string) bool {
	if len(word) < e.minLength {
		return true
	}

	if e.stopWords[word] {
		return true
	}

	if e.isPureNumber(word) || e.isPunctuation(word) {
		return true
	}

	skipTags := map[string]bool{
		"DT":   true, // determiner
		"IN":   true, // preposition
		"TO":   true, // to
		"CC":   true, // coordinating conjunction
		"PRP":  true, // personal pronoun
		"PRP$": true, // possessive pronoun
		"WP":   true, // wh-pronoun
		"WDT":  true, // wh-determiner
	}

	return skipTags[posTag]
}

// calculateScore assigns importance based on POS tag
func (e *Extractor) calculateScore(posTag string) float64 {
	scores := map[string]float64{
		"NN":   1.5, // noun
		"NNS":  1.5, // plural noun
		"NNP":  2.0, // proper noun
		"NNPS": 2.0, // plural proper noun
		"VB":   1.2, // verb
		"VBD":  1.2, // past tense verb
		"VBG":  1.2, // gerund/present participle
		"VBN":  1.2, // past participle
		"VBP":  1.2, // present tense verb
		"VBZ":  1.2, // 3rd person singular present verb
		"JJ":   1.3, // adjective
		"JJR":  1.3, // comparative adjective
		"JJS":  1.3, // superlative adjective
		"RB":   0.8, // adverb
		"RBR":  0.8, // comparative adverb
		"RBS":  0.8, // superlative adverb
	}

	if score, exists := scores[posTag]; exists {
		return score
	}
	return 1.0
}

func (e *Extractor) isPureNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

func (e *Extractor) isPunctuation(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return len(s) > 0
}
