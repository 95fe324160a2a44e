package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"mnemo/internal/model"
)

func TestSemanticSentence(t *testing.T) {
	tests := []struct {
		verb string
		fact model.Fact
		want string
	}{
		{"enjoys", model.Fact{Type: "Hobby", Name: "Hiking"}, "The entity enjoys Hobby: Hiking"},
		{"lives_in", model.Fact{Type: "Location", Name: "Paris"}, "The entity lives in Location: Paris"},
		{"works_as", model.Fact{Type: "Occupation", Name: "Engineer"}, "The entity works as Occupation: Engineer"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SemanticSentence(tt.verb, tt.fact))
	}
}

func TestPointIdentity_MatchesAddAndDelete(t *testing.T) {
	// AddSemantic and DeleteSemantic must address the same point for the
	// same triple, otherwise deletes would orphan vectors.
	fact := model.Fact{Type: "Location", Name: "Paris"}
	addID := model.PointID("t1", "e1", "lives_in", fact.FactID())
	delID := model.PointID("t1", "e1", "lives_in", "Location:Paris")
	assert.Equal(t, addID, delID)
}
