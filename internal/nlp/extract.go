package nlp

import (
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/model"
)

// ErrInsufficientText marks pages whose testimonial content is too thin
// to extract meaningful features from.
var ErrInsufficientText = eris.New("nlp: insufficient testimonial text")

// Extractor maps testimonial fragments to ICP features using a fixed
// lexicon. It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	lex       *Lexicon
	minTokens int
	posWords  map[string]struct{}
	negWords  map[string]struct{}
}

// NewExtractor builds an extractor. Fragments whose combined token
// count falls below minTokens are rejected with ErrInsufficientText.
func NewExtractor(lex *Lexicon, minTokens int) *Extractor {
	e := &Extractor{
		lex:       lex,
		minTokens: minTokens,
		posWords:  make(map[string]struct{}, len(lex.Sentiment.Positive)),
		negWords:  make(map[string]struct{}, len(lex.Sentiment.Negative)),
	}
	for _, w := range lex.Sentiment.Positive {
		e.posWords[w] = struct{}{}
	}
	for _, w := range lex.Sentiment.Negative {
		e.negWords[w] = struct{}{}
	}
	return e
}

// Extract derives features from raw testimonial texts. Identical input
// always yields identical output: category matching is substring-based
// over normalized text, and every output list has a total order.
func (e *Extractor) Extract(texts []string) (*model.Features, error) {
	normed := make([]string, 0, len(texts))
	total := 0
	for _, t := range texts {
		n := model.NormalizeTerm(t)
		if n == "" {
			continue
		}
		normed = append(normed, n)
		total += len(strings.Fields(n))
	}
	if len(normed) == 0 || total < e.minTokens {
		zap.L().Debug("testimonial text below extraction threshold",
			zap.Int("fragments", len(normed)),
			zap.Int("tokens", total),
			zap.Int("min_tokens", e.minTokens))
		return nil, eris.Wrapf(ErrInsufficientText, "%d tokens across %d fragments", total, len(normed))
	}

	f := &model.Features{
		AudienceTerms:      e.matchSet(e.lex.Audience, normed),
		IndustryTerms:      e.matchSet(e.lex.Industry, normed),
		CompanySizeSignals: e.matchSet(e.lex.CompanySize, normed),
		GeographyTerms:     e.matchSet(e.lex.Geography, normed),
		PainPoints:         rankedTermNames(e.matchRanked(e.lex.PainPoints, normed)),
		ValueProps:         rankedTermNames(e.matchRanked(e.lex.ValueProps, normed)),
		SentimentScore:     e.sentiment(normed),
		TestimonialCount:   len(normed),
	}
	return f, nil
}

// matchSet returns the canonical terms whose phrases appear in any
// fragment, sorted lexicographically.
func (e *Extractor) matchSet(cat Category, normed []string) []string {
	var out []string
	for _, term := range cat.terms() {
		if fragmentsMentioning(cat[term], normed) > 0 {
			out = append(out, term)
		}
	}
	return out
}

// matchRanked counts, per canonical term, the number of fragments that
// mention it, and orders the result by count descending with ties
// broken lexicographically.
func (e *Extractor) matchRanked(cat Category, normed []string) []model.RankedTerm {
	var out []model.RankedTerm
	for _, term := range cat.terms() {
		if n := fragmentsMentioning(cat[term], normed); n > 0 {
			out = append(out, model.RankedTerm{Term: term, Count: n})
		}
	}
	SortRanked(out)
	return out
}

// SortRanked orders terms by count descending, then term ascending.
func SortRanked(terms []model.RankedTerm) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
}

func rankedTermNames(terms []model.RankedTerm) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.Term
	}
	return out
}

func fragmentsMentioning(phrases []string, normed []string) int {
	n := 0
	for _, frag := range normed {
		for _, p := range phrases {
			if p != "" && strings.Contains(frag, p) {
				n++
				break
			}
		}
	}
	return n
}

// sentiment averages per-fragment polarity. A fragment's polarity is
// (pos-neg)/(pos+neg) over lexicon word hits; fragments with no hits
// count as neutral. The result stays in [-1, 1].
func (e *Extractor) sentiment(normed []string) float64 {
	if len(normed) == 0 {
		return 0
	}
	var sum float64
	for _, frag := range normed {
		pos, neg := 0, 0
		for _, w := range tokenize(frag) {
			if _, ok := e.posWords[w]; ok {
				pos++
			} else if _, ok := e.negWords[w]; ok {
				neg++
			}
		}
		if pos+neg > 0 {
			sum += float64(pos-neg) / float64(pos+neg)
		}
	}
	return sum / float64(len(normed))
}

// tokenize splits normalized text into words, keeping apostrophes so
// contractions like "couldn't" survive intact.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}
