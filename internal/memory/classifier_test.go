package memory

import (
	"testing"

	"github.com/scrypster/mnemo/pkg/types"
)

func TestClassifyIntent(t *testing.T) {
	c := NewRuleBasedClassifier()

	tests := []struct {
		text string
		want Intent
	}{
		{"do you remember what I said about my trip?", IntentRecallPersonal},
		{"what's my email address?", IntentRecallFactual},
		{"my name is Sarah and I work at the hospital", IntentStoreFact},
		{"remember that the meeting moved to Friday", IntentStoreFact},
		{"what is the capital of France?", IntentGeneralKnowledge},
		{"explain photosynthesis", IntentGeneralKnowledge},
		{"how do volcanoes form?", IntentContextual},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := c.ClassifyIntent(tt.text); got != tt.want {
				t.Errorf("ClassifyIntent(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	c := NewRuleBasedClassifier()

	tests := []struct {
		text string
		want types.Category
	}{
		{"my name is Sarah", types.CategoryPersonal},
		{"I really love green tea in the morning", types.CategoryPreference},
		{"remind me about the dentist tomorrow", types.CategoryTemporal},
		{"the invoice number is 4482", types.CategoryFactual},
		{"it sure is windy out there", types.CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			if got := c.Categorize(tt.text); got != tt.want {
				t.Errorf("Categorize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestScoreImportance(t *testing.T) {
	c := NewRuleBasedClassifier()

	// Personal + preference + specificity should stack.
	high := c.ScoreImportance("My name is Sarah Chen, I love hiking, and my birthday is 1990-04-12")
	if high < 0.7 {
		t.Errorf("rich personal content scored %v, want >= 0.7", high)
	}

	// Small talk scores below the storage threshold.
	low := c.ScoreImportance("ok sure")
	if low >= importanceThreshold {
		t.Errorf("small talk scored %v, want < %v", low, importanceThreshold)
	}

	if c.ScoreImportance("my name is A, I love B, remind me tomorrow about 123 Sarah Chen") > 1.0 {
		t.Error("importance exceeded 1.0 cap")
	}
}

func TestExtractTopics(t *testing.T) {
	c := NewRuleBasedClassifier()

	topics := c.ExtractTopics("green tea, green tea, and more green tea with honey", 3)
	if len(topics) == 0 {
		t.Fatal("no topics extracted")
	}
	if topics[0] != "green" && topics[0] != "tea" {
		t.Errorf("most frequent topic: got %q, want green or tea", topics[0])
	}
	if len(topics) > 3 {
		t.Errorf("got %d topics, want at most 3", len(topics))
	}

	// Stop words and short tokens never become topics.
	for _, topic := range c.ExtractTopics("the and but for with", 5) {
		t.Errorf("stop word extracted as topic: %q", topic)
	}

	if got := c.ExtractTopics("", 5); got != nil {
		t.Errorf("empty text: got %v, want nil", got)
	}
}
