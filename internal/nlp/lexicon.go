// Package nlp turns scraped testimonial fragments into structured ICP
// features. Extraction is purely lexical: a curated keyword lexicon is
// matched against normalized sentence text, so the same input always
// produces the same output.
package nlp

import (
	_ "embed"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/icp-analyzer/internal/model"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Category is a keyed group of canonical terms, each matched by one or
// more surface phrases.
type Category map[string][]string

// Lexicon holds the full keyword inventory used by the extractor.
type Lexicon struct {
	Audience    Category `yaml:"audience"`
	Industry    Category `yaml:"industry"`
	CompanySize Category `yaml:"company_size"`
	Geography   Category `yaml:"geography"`
	PainPoints  Category `yaml:"pain_points"`
	ValueProps  Category `yaml:"value_propositions"`
	Sentiment   struct {
		Positive []string `yaml:"positive"`
		Negative []string `yaml:"negative"`
	} `yaml:"sentiment"`
}

// DefaultLexicon parses the embedded lexicon. The embedded file is
// validated at build time by the package tests, so failure here means
// a broken binary rather than bad user input.
func DefaultLexicon() (*Lexicon, error) {
	return ParseLexicon(defaultLexiconYAML)
}

// ParseLexicon loads a lexicon from YAML, normalizing every phrase so
// matching is case- and width-insensitive.
func ParseLexicon(raw []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(raw, &lex); err != nil {
		return nil, eris.Wrap(err, "nlp: parsing lexicon")
	}
	for _, cat := range []Category{
		lex.Audience, lex.Industry, lex.CompanySize,
		lex.Geography, lex.PainPoints, lex.ValueProps,
	} {
		if len(cat) == 0 {
			return nil, eris.New("nlp: lexicon has an empty category")
		}
		for term, phrases := range cat {
			for i, p := range phrases {
				phrases[i] = model.NormalizeTerm(p)
			}
			cat[term] = phrases
		}
	}
	for i, w := range lex.Sentiment.Positive {
		lex.Sentiment.Positive[i] = model.NormalizeTerm(w)
	}
	for i, w := range lex.Sentiment.Negative {
		lex.Sentiment.Negative[i] = model.NormalizeTerm(w)
	}
	return &lex, nil
}

// terms returns the canonical terms of a category in sorted order, for
// deterministic iteration.
func (c Category) terms() []string {
	out := make([]string, 0, len(c))
	for t := range c {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
