package memory

import (
	"regexp"
	"sort"
	"strings"

	"github.com/scrypster/mnemo/pkg/types"
)

// Intent classifies what a piece of user text wants from the memory layer.
type Intent string

const (
	// IntentRecallPersonal asks about previously shared personal context.
	IntentRecallPersonal Intent = "recall_personal"

	// IntentRecallFactual asks for a specific stored detail.
	IntentRecallFactual Intent = "recall_factual"

	// IntentStoreFact states new information worth remembering.
	IntentStoreFact Intent = "store_fact"

	// IntentGeneralKnowledge asks about the world, not the user. Callers
	// can skip memory retrieval entirely for these.
	IntentGeneralKnowledge Intent = "general_knowledge"

	// IntentContextual is the default: retrieval may help, let scoring decide.
	IntentContextual Intent = "contextual"
)

// importanceThreshold is the floor below which user content is not worth
// storing as a memory unit.
const importanceThreshold = 0.1

// Classifier derives intent, category, topics, and an importance score from
// raw content. Implementations must be safe for concurrent use.
type Classifier interface {
	ClassifyIntent(text string) Intent
	Categorize(text string) types.Category
	ScoreImportance(text string) float64
	ExtractTopics(text string, max int) []string
}

// RuleBasedClassifier is a pattern-driven Classifier. It trades recall for
// zero latency and no model dependency; the LLM never sits on the store path.
type RuleBasedClassifier struct {
	recallPersonal []*regexp.Regexp
	recallFactual  []*regexp.Regexp
	storeFact      []*regexp.Regexp
	generalKnow    []*regexp.Regexp

	personal    []*regexp.Regexp
	specificity []*regexp.Regexp
}

// NewRuleBasedClassifier compiles the classification patterns.
func NewRuleBasedClassifier() *RuleBasedClassifier {
	compile := func(patterns ...string) []*regexp.Regexp {
		res := make([]*regexp.Regexp, len(patterns))
		for i, p := range patterns {
			res[i] = regexp.MustCompile(p)
		}
		return res
	}

	return &RuleBasedClassifier{
		recallPersonal: compile(
			`\b(what did i tell you|do you remember|you know that i|i mentioned|we discussed)\b`,
			`\b(remember when|you said|i told you|as i said)\b`,
			`\b(what do you know about my|tell me about my|what about my)\b`,
			`\b(who am i|what is my name|my name\?)`,
			`\b(tell me about myself|about me|know me)\b`,
		),
		recallFactual: compile(
			`\b(what's my|my email|my phone|my address|my birthday)\b`,
			`\b(where do i|what are my|who is my)\b`,
		),
		storeFact: compile(
			`\b(my \w+ is|i am|i work|i live|i like|i don't like)\b`,
			`\b(remember that|just so you know|for future reference)\b`,
		),
		generalKnow: compile(
			`\b(what is the capital|how does \w+ work|who invented|define)\b`,
			`\b(explain|what does \w+ mean|history of)\b`,
		),
		personal: compile(
			`\b(my name is|i am|i work at|i live in|my email|my phone)\b`,
			`\b(my birthday|my address|my job|my family|my wife|my husband)\b`,
		),
		specificity: compile(
			`\b\d{4}-\d{2}-\d{2}\b`,
			`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`,
			`\b\d+\b`,
		),
	}
}

var _ Classifier = (*RuleBasedClassifier)(nil)

// ClassifyIntent routes user text: recall intents trigger retrieval-heavy
// handling, store intents trigger memory writes, everything else is
// contextual.
func (c *RuleBasedClassifier) ClassifyIntent(text string) Intent {
	lower := strings.ToLower(text)

	for _, re := range c.recallPersonal {
		if re.MatchString(lower) {
			return IntentRecallPersonal
		}
	}
	for _, re := range c.recallFactual {
		if re.MatchString(lower) {
			return IntentRecallFactual
		}
	}
	for _, re := range c.storeFact {
		if re.MatchString(lower) {
			return IntentStoreFact
		}
	}
	for _, re := range c.generalKnow {
		if re.MatchString(lower) {
			return IntentGeneralKnowledge
		}
	}

	return IntentContextual
}

// Categorize assigns a content category from keyword heuristics.
func (c *RuleBasedClassifier) Categorize(text string) types.Category {
	lower := strings.ToLower(text)

	for _, re := range c.personal {
		if re.MatchString(lower) {
			return types.CategoryPersonal
		}
	}

	if containsAny(lower, preferenceWords) {
		return types.CategoryPreference
	}
	if containsAny(lower, futureWords) {
		return types.CategoryTemporal
	}
	for _, re := range c.specificity {
		if re.MatchString(text) {
			return types.CategoryFactual
		}
	}

	return types.CategoryGeneral
}

// ScoreImportance rates how much the content is worth storing, in [0,1].
// Personal facts weigh most, then preferences, future references, and
// specific details.
func (c *RuleBasedClassifier) ScoreImportance(text string) float64 {
	score := 0.0
	lower := strings.ToLower(text)

	for _, re := range c.personal {
		if re.MatchString(lower) {
			score += 0.4
			break
		}
	}

	if containsAny(lower, preferenceWords) {
		score += 0.3
	}

	for _, re := range c.specificity {
		if re.MatchString(text) {
			score += 0.1
			break
		}
	}

	if containsAny(lower, futureWords) {
		score += 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ExtractTopics pulls the most frequent non-stopword terms from the text,
// up to max, for topic-based association linking.
func (c *RuleBasedClassifier) ExtractTopics(text string, max int) []string {
	if text == "" || max <= 0 {
		return nil
	}

	freq := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if len(word) <= 2 || stopWords[word] {
			continue
		}
		freq[word]++
	}

	topics := make([]string, 0, len(freq))
	for word := range freq {
		topics = append(topics, word)
	}
	sort.Slice(topics, func(i, j int) bool {
		if freq[topics[i]] != freq[topics[j]] {
			return freq[topics[i]] > freq[topics[j]]
		}
		return topics[i] < topics[j]
	})

	if len(topics) > max {
		topics = topics[:max]
	}
	return topics
}

var preferenceWords = []string{"love", "hate", "like", "dislike", "prefer", "favorite", "important"}

var futureWords = []string{"tomorrow", "next week", "remember", "remind", "later", "upcoming"}

var stopWords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"was": true, "were": true, "are": true, "been": true, "have": true,
	"has": true, "had": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "you": true, "she": true,
	"they": true, "them": true, "him": true, "her": true, "this": true,
	"that": true, "what": true, "when": true, "where": true, "how": true,
	"not": true, "can": true, "all": true, "your": true, "our": true,
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
