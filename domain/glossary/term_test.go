package glossary_test

import (
	"testing"

	"github.com/felixgeelhaar/parley/domain/glossary"
)

func TestTerm_MentionedIn(t *testing.T) {
	t.Parallel()

	term := glossary.Term{
		ID:       "t1",
		Name:     "Premium Plan",
		Synonyms: []string{"pro plan", "premium tier"},
	}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"canonical name", "tell me about the Premium Plan", true},
		{"case folded", "what is the PREMIUM plan?", true},
		{"synonym", "how much is the pro plan", true},
		{"second synonym", "does the premium tier include support", true},
		{"no mention", "I want to cancel my order", false},
		{"empty text", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := term.MentionedIn(tt.text); got != tt.want {
				t.Errorf("MentionedIn(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRelevant(t *testing.T) {
	t.Parallel()

	terms := []glossary.Term{
		{ID: "t1", Name: "refund"},
		{ID: "t2", Name: "warranty", Synonyms: []string{"guarantee"}},
		{ID: "t3", Name: "shipping"},
	}

	got := glossary.Relevant(terms, "is there a guarantee?", "I need a refund")
	if len(got) != 2 {
		t.Fatalf("Relevant() returned %d terms, want 2", len(got))
	}
	// Definition order preserved.
	if got[0].ID != "t1" || got[1].ID != "t2" {
		t.Errorf("Relevant() order = [%s, %s], want [t1, t2]", got[0].ID, got[1].ID)
	}
}

func TestRelevant_NoTexts(t *testing.T) {
	t.Parallel()

	terms := []glossary.Term{{ID: "t1", Name: "refund"}}
	if got := glossary.Relevant(terms); got != nil {
		t.Errorf("Relevant() with no texts = %v, want nil", got)
	}
}
