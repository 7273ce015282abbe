// Package escalate decides which segments still need an LLM pass after the
// rule pipeline has run.
//
// The gate is a list of error-shape patterns: residues of speech-to-text
// misrecognition that the deterministic rules cannot fix because the right
// replacement depends on context (person names, phonetically plausible but
// wrong compounds, product names). A segment matching any pattern is
// escalated; everything else stays rule-only, which keeps LLM cost bounded.
package escalate

import "regexp"

// defaultPatterns are the built-in error shapes, checked in order. The
// comments name the misrecognition each pattern is after.
var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[あ-ん]{3,}も`), // とも配も-style kana garble
	regexp.MustCompile(`帰漏らし`),       // 聞き漏らし
	regexp.MustCompile(`エポック`),       // likely a person name
	regexp.MustCompile(`簡易回`),        // 範囲外
	regexp.MustCompile(`バット[^ー]`),    // バッド
	regexp.MustCompile(`お腹切り`),       // 可能な限り
	regexp.MustCompile(`円周部分`),       // 演習部分
	regexp.MustCompile(`ベルトンさん`),     // person name needing context
	regexp.MustCompile(`松尾岩澤研`),      // 松尾・岩澤研
	regexp.MustCompile(`スレッド1`),      // ワンスレッド1
	regexp.MustCompile(`Googleコラボ`),  // Google Colab
}

// Gate reports whether a segment needs LLM escalation. The zero value is not
// usable; construct with NewGate. A Gate is safe for concurrent use.
type Gate struct {
	patterns []*regexp.Regexp
}

// NewGate returns a Gate with the built-in error-shape patterns.
func NewGate() *Gate {
	return &Gate{patterns: defaultPatterns}
}

// ShouldEscalate reports whether text, after rule correction, still shows an
// error shape the rules cannot resolve.
func (g *Gate) ShouldEscalate(text string) bool {
	for _, p := range g.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
