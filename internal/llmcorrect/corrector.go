// Package llmcorrect implements the LLM escalation stage for segments the
// rule pipeline could not fully repair.
//
// The [Corrector] sends the rule-corrected text to an [llm.Provider] with a
// conservative Japanese system prompt covering four correction categories:
// technical terms and proper nouns, phonetic misrecognitions, context-
// dependent phrases, and spoken-register naturalization. The model is told to
// keep edits minimal and to reply with the corrected text only.
//
// A reply that is empty or identical to the input counts as a no-op: the
// segment keeps its rule-corrected text and quality, though the tokens spent
// are still accounted. Transport and cancellation errors are returned to the
// caller, which falls back to the rule-corrected text.
package llmcorrect

import (
	"context"
	"fmt"
	"strings"
	"sync"

	llm "github.com/MrWong99/kousei/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
	defaultTopP        = 0.9
	defaultMaxTokens   = 1000
)

// QualityBoost is added to the rule quality score when the LLM produced a
// genuine rewrite, capped at 1.
const QualityBoost = 0.3

// Default per-1K-token USD rates, matching the micro-class model this stage
// targets. [WithRates] overrides them for other models.
const (
	defaultInputRatePer1K  = 0.000035
	defaultOutputRatePer1K = 0.00014
)

const systemPrompt = `以下は大規模言語モデル（LLM）講座の書き起こしテキストです。Speech-to-Textによる誤認識を修正して、自然で正確な日本語に直してください。

【修正ルール】
1. 専門用語・人名・組織名を正確に修正
   - 「松尾岩澤研」→「松尾・岩澤研」（正式組織名）
   - 「Googleコラボ」→「Google Colab」
   - 「スレッド1」→「ワンスレッド1」
2. 音韻類似による誤認識修正
   - 「帰漏らし」→「聞き漏らし」
   - 「簡易回」→「範囲外」
   - 「バット」→「バッド」（Bad）
   - 「円周部分」→「演習部分」
3. 文脈依存の語句修正
   - 「とも配も」→「ともかく」または「この後」（文脈に応じて）
   - 「お腹切り取りたい」→「可能な限り取りたい」
4. 不自然な表現の自然化
   - 話し言葉を適切な書き言葉に
   - 繰り返しや冗長表現の削除

【重要】
- 元の意味を保持すること
- 講義の内容・文脈に適した修正を行うこと
- 過度な修正は避け、必要最小限の変更に留めること

修正されたテキストのみを出力してください。`

// Accounting tracks token usage and accumulated cost across a processing
// session. Safe for concurrent use.
type Accounting struct {
	mu           sync.Mutex
	inputRate1K  float64
	outputRate1K float64
	inputTokens  int
	outputTokens int
	costUSD      float64
}

// Add records one call's token usage and returns that call's cost in USD.
func (a *Accounting) Add(inputTokens, outputTokens int) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	inRate, outRate := a.inputRate1K, a.outputRate1K
	if inRate == 0 {
		inRate = defaultInputRatePer1K
	}
	if outRate == 0 {
		outRate = defaultOutputRatePer1K
	}
	cost := float64(inputTokens)*inRate/1000 + float64(outputTokens)*outRate/1000

	a.inputTokens += inputTokens
	a.outputTokens += outputTokens
	a.costUSD += cost
	return cost
}

// Totals returns the accumulated token counts and cost in USD.
func (a *Accounting) Totals() (inputTokens, outputTokens int, costUSD float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inputTokens, a.outputTokens, a.costUSD
}

// Result is the outcome of one escalation call.
type Result struct {
	// Text is the final segment text: the LLM rewrite, or the input when the
	// reply was a no-op.
	Text string

	// Rewritten reports whether the LLM produced a genuine change.
	Rewritten bool

	// Quality is the input quality, boosted by QualityBoost when Rewritten.
	Quality float64

	// InputTokens, OutputTokens and CostUSD account this single call.
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature overrides the default sampling temperature (0.1).
func WithTemperature(temp float64) Option {
	return func(c *Corrector) { c.temperature = temp }
}

// WithTopP overrides the default nucleus sampling parameter (0.9).
func WithTopP(topP float64) Option {
	return func(c *Corrector) { c.topP = topP }
}

// WithMaxTokens overrides the default completion token cap (1000).
func WithMaxTokens(n int) Option {
	return func(c *Corrector) { c.maxTokens = n }
}

// WithRates overrides the default per-1K-token USD prices used by the
// accounting (0.000035 input / 0.00014 output). Zero values keep the
// defaults.
func WithRates(inputPer1K, outputPer1K float64) Option {
	return func(c *Corrector) {
		c.accounting.inputRate1K = inputPer1K
		c.accounting.outputRate1K = outputPer1K
	}
}

// Corrector escalates hard segments to an [llm.Provider]. Safe for
// concurrent use.
type Corrector struct {
	llm         llm.Provider
	accounting  *Accounting
	temperature float64
	topP        float64
	maxTokens   int
}

// New returns a Corrector backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		accounting:  &Accounting{},
		temperature: defaultTemperature,
		topP:        defaultTopP,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Accounting exposes the session-wide usage tracker.
func (c *Corrector) Accounting() *Accounting {
	return c.accounting
}

// Correct sends the rule-corrected text to the LLM and returns the outcome.
// ruleQuality is the quality score the segment had before escalation.
//
// Transport errors and context cancellation are returned as non-nil errors
// with a zero Result; the caller keeps the rule-corrected text in that case.
func (c *Corrector) Correct(ctx context.Context, text string, ruleQuality float64) (Result, error) {
	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  c.temperature,
		TopP:         c.topP,
		MaxTokens:    c.maxTokens,
		Messages: []llm.Message{
			{Role: "user", Content: text},
		},
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("llmcorrect: complete: %w", err)
	}
	if resp == nil {
		return Result{}, fmt.Errorf("llmcorrect: complete: provider returned no response")
	}

	cost := c.accounting.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	res := Result{
		Text:         text,
		Quality:      ruleQuality,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		CostUSD:      cost,
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" || reply == text {
		return res, nil
	}

	res.Text = reply
	res.Rewritten = true
	res.Quality = min(1, ruleQuality+QualityBoost)
	return res, nil
}
