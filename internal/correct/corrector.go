// Package correct implements the deterministic rule correction pipeline for
// Japanese lecture transcripts.
//
// A Corrector runs seven ordered stages over a segment's text: technical
// term restoration, polite ending completion, repetition collapse, filler
// removal, colloquial naturalization, punctuation insertion, and whitespace
// normalization. Each stage consumes the previous stage's output, so the
// composition is deterministic: the same input and configuration always
// produce the same output and the same correction log.
package correct

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
)

// Stages toggles individual pipeline stages. A disabled stage is skipped
// entirely; the remaining stages still run in their fixed order.
type Stages struct {
	TechTerms      bool `yaml:"tech_terms"`
	EndingFixes    bool `yaml:"ending_fixes"`
	Repetition     bool `yaml:"repetition_removal"`
	Fillers        bool `yaml:"filler_removal"`
	Naturalization bool `yaml:"naturalization"`
	Punctuation    bool `yaml:"punctuation"`
	Normalization  bool `yaml:"normalization"`
}

// AllStages returns a Stages value with every stage enabled.
func AllStages() Stages {
	return Stages{
		TechTerms:      true,
		EndingFixes:    true,
		Repetition:     true,
		Fillers:        true,
		Naturalization: true,
		Punctuation:    true,
		Normalization:  true,
	}
}

// Option configures a Corrector.
type Option func(*Corrector)

// WithStages replaces the default all-enabled stage set.
func WithStages(s Stages) Option {
	return func(c *Corrector) { c.stages = s }
}

// WithCustomTerms appends project-specific term replacements to the technical
// term stage, after the builtin dictionary. Keys are regular expression
// patterns, values their replacements. Keys are applied in sorted order so a
// custom dictionary behaves the same on every run.
func WithCustomTerms(terms map[string]string) Option {
	return func(c *Corrector) {
		for k, v := range terms {
			c.customTerms = append(c.customTerms, [2]string{k, v})
		}
		sort.Slice(c.customTerms, func(i, j int) bool {
			return c.customTerms[i][0] < c.customTerms[j][0]
		})
	}
}

// Corrector applies the rule pipeline to transcript text. It is safe for
// concurrent use once constructed: all state is read-only after New returns.
type Corrector struct {
	stages      Stages
	customTerms [][2]string
	custom      []rule
}

// New builds a Corrector. Custom term patterns are compiled here; an invalid
// pattern fails construction rather than being silently dropped.
func New(opts ...Option) (*Corrector, error) {
	c := &Corrector{stages: AllStages()}
	for _, opt := range opts {
		opt(c)
	}

	for _, kv := range c.customTerms {
		re, err := regexp2.Compile(kv[0], regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("correct: compile custom term %q: %w", kv[0], err)
		}
		c.custom = append(c.custom, rule{re: re, replacement: kv[1], category: CategoryTechTerm})
	}

	return c, nil
}

// Correct runs every enabled stage over text and returns the corrected text
// together with the correction log: one category entry per rule that matched,
// in stage order, regardless of how many sites the rule rewrote.
func (c *Corrector) Correct(text string) (string, []string) {
	var log []string

	if c.stages.TechTerms {
		text, log = applyRules(text, techTermRules, log)
		text, log = applyRules(text, c.custom, log)
	}
	if c.stages.EndingFixes {
		text, log = applyRules(text, endingFixRules, log)
	}
	if c.stages.Repetition {
		text, log = applyRules(text, repetitionRules, log)
	}
	if c.stages.Fillers {
		text, log = applyRules(text, fillerRules, log)
	}
	if c.stages.Naturalization {
		text, log = applyRules(text, naturalizationRules, log)
	}
	if c.stages.Punctuation {
		text, log = applyRules(text, punctuationRules, log)
	}
	if c.stages.Normalization {
		text, log = applyRules(text, normalizationRules, log)
		text = trimSpace(text)
	}

	return text, log
}

// applyRules runs each rule in order over text. A rule that matches rewrites
// every occurrence and, when it carries a category, appends it to the log
// once.
func applyRules(text string, rules []rule, log []string) (string, []string) {
	for _, r := range rules {
		matched, err := r.re.MatchString(text)
		if err != nil || !matched {
			continue
		}
		out, err := r.re.Replace(text, r.replacement, -1, -1)
		if err != nil {
			continue
		}
		text = out
		if r.category != "" {
			log = append(log, r.category)
		}
	}
	return text, log
}

// trimSpace strips leading and trailing whitespace, including full-width
// spaces.
func trimSpace(s string) string {
	return strings.Trim(s, " \t\n\r　")
}
