package correct

import "github.com/dlclark/regexp2"

// Correction categories appended to a segment's correction log. The diff
// auditor re-detects the same categories, so these strings are shared
// vocabulary across packages.
const (
	CategoryTechTerm    = "technical term"
	CategoryEndingFix   = "ending fix"
	CategoryRepetition  = "repetition removal"
	CategoryFiller      = "filler removal"
	CategoryNatural     = "naturalization"
	CategoryPunctuation = "punctuation"

	// CategoryContext is appended by the LLM escalation stage, never by the
	// rule pipeline. Declared here so all category names live in one place.
	CategoryContext = "context correction"
)

// rule is a single pattern rewrite. Rules are evaluated uniformly by the
// stage runner; a rule that matches at least once appends its category to
// the correction log exactly once.
type rule struct {
	re          *regexp2.Regexp
	replacement string
	category    string
}

func mustRule(pattern, replacement, category string) rule {
	return rule{
		re:          regexp2.MustCompile(pattern, regexp2.None),
		replacement: replacement,
		category:    category,
	}
}

// The builtin dictionaries. Order within each stage is significant: a rule
// may repair text that a later rule of the same stage would otherwise
// mangle (e.g. the ありがとうございます repair must run before the bare
// ございす repair, which matches a substring of it).
//
// The patterns need lookaround (term disambiguation such as ベルト vs the
// person name ベルトン) and backreferences (repetition collapse), hence
// regexp2 rather than the stdlib RE2 engine.

// techTermRules maps phonetic misrecognitions of technical terms, names and
// product names to their canonical spelling.
var techTermRules = []rule{
	mustRule(`ベルト(?!ン)`, "ベルトン", CategoryTechTerm),
	mustRule(`ベル ト(?!ン)`, "ベルトン", CategoryTechTerm),
	mustRule(`ジーピーティー`, "GPT", CategoryTechTerm),
	mustRule(`ラーム`, "Llama", CategoryTechTerm),
	mustRule(`エルエム`, "LLM", CategoryTechTerm),
	mustRule(`松尾研(?!究室)`, "松尾研究室", CategoryTechTerm),
	mustRule(`とも配も`, "ともかく", CategoryTechTerm),
	mustRule(`編集BERT`, "BERT", CategoryTechTerm),
	mustRule(`あの後単語`, "後ほど", CategoryTechTerm),
}

// endingFixRules complete polite verb endings whose final syllable was
// dropped by the speech-to-text pass. The truncated forms never occur inside
// correctly transcribed text, so no context anchor is needed.
var endingFixRules = []rule{
	mustRule(`りがとうございす`, "ありがとうございます", CategoryEndingFix),
	mustRule(`申しす`, "申します", CategoryEndingFix),
	mustRule(`ございす`, "ございます", CategoryEndingFix),
	mustRule(`思いす`, "思います", CategoryEndingFix),
}

// repetitionRules collapse an immediately repeated word or word+suffix
// pattern. Backreferences carry the repeated run.
var repetitionRules = []rule{
	mustRule(`(\w+)になる\1`, "$1", CategoryRepetition),
	mustRule(`(\w+)\s+\1(?=\s|$)`, "$1", CategoryRepetition),
}

// fillerRules strip discourse fillers and hesitation sounds. The hesitation
// patterns require the elongation mark so a content word starting with あ or
// え is never eaten.
var fillerRules = []rule{
	mustRule(`\s*[えあ]+ー+\s*`, " ", CategoryFiller),
	mustRule(`\s*あのー+\s*`, " ", CategoryFiller),
	mustRule(`なんか\s+`, "", CategoryFiller),
}

// naturalizationRules rewrite colloquial spoken constructions into their
// written-register equivalents.
var naturalizationRules = []rule{
	mustRule(`だったのかな[、。]`, "でした。", CategoryNatural),
	mustRule(`あるのかなと思`, "あると思", CategoryNatural),
	mustRule(`かなというふう`, "かと思", CategoryNatural),
	mustRule(`っていう`, "という", CategoryNatural),
	mustRule(`だったりとか`, "や", CategoryNatural),
}

// punctuationRules insert a sentence-ending mark after a completed polite
// verb ending that is not already followed by punctuation. This depends on
// the ending-fix stage having run first: the truncated forms must already be
// completed or the pattern cannot see them.
var punctuationRules = []rule{
	mustRule(`(申します|ございます|思います)(?![。、！？])`, "$1。", CategoryPunctuation),
}

// normalizationRules clean up whitespace. They carry no category: whitespace
// cleanup is not a correction worth logging.
var normalizationRules = []rule{
	mustRule(`\s{2,}`, " ", ""),
	mustRule(`\s+([。、！？])`, "$1", ""),
}
