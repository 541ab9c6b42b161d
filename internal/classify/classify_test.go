package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		name string
		rhs  string
	}{
		{"", Blank, "", ""},
		{"   ", Blank, "", ""},
		{"// groceries", Comment, "", ""},
		{"Rent = $1200", Assignment, "Rent", "$1200"},
		{"Monthly Rent = 1200 // approx", Assignment, "Monthly Rent", "1200"},
		{"Rent: $1,200", LabeledValue, "Rent", "$1,200"},
		{"Groceries: 150 #food", LabeledValue, "Groceries", "150"},
		{"12 * 3 =", BareExpression, "", "12 * 3 ="},
		{"5 + 3", BareExpression, "", "5 + 3"},
		{"sqrt(16)", BareExpression, "", "sqrt(16)"},
		{"a == b", Text, "", ""},
		{"x \\= y", Text, "", ""},
		{"Budget notes", Text, "", ""},
		{"Label:", Text, "", ""},
	}
	for _, tt := range tests {
		got := Classify(tt.in)
		assert.Equal(t, tt.kind, got.Kind, "Classify(%q) kind", tt.in)
		assert.Equal(t, tt.name, got.Name, "Classify(%q) name", tt.in)
		assert.Equal(t, tt.rhs, got.RHS, "Classify(%q) rhs", tt.in)
	}
}

func TestClassifyTaggedSum(t *testing.T) {
	for _, in := range []string{"sum: food", "SUM:Food  ", "sum:   food // weekly"} {
		got := Classify(in)
		assert.Equal(t, TaggedSum, got.Kind, in)
		assert.Equal(t, "food", got.Sum, in)
	}
	// Extra words after the tag make it something else.
	assert.NotEqual(t, TaggedSum, Classify("sum: food and drink").Kind)
}

func TestSumAndTagAsLabels(t *testing.T) {
	got := Classify("Sum: 5 + 3")
	assert.Equal(t, LabeledValue, got.Kind)
	assert.Equal(t, "Sum", got.Name)
	assert.Equal(t, "5 + 3", got.RHS)

	got = Classify("Tag: 12")
	assert.Equal(t, LabeledValue, got.Kind)
	assert.Equal(t, "12", got.RHS)

	// A bare tag name after the colon is still sum syntax.
	got = Classify("sum: food #weekly")
	assert.Equal(t, Text, got.Kind)
}

func TestClassifyTags(t *testing.T) {
	got := Classify("Lunch: 15 tag: Food")
	assert.Equal(t, LabeledValue, got.Kind)
	assert.Equal(t, "food", got.Tag)
	assert.Equal(t, "15", got.RHS)
}

func TestAssignmentBeatsLabel(t *testing.T) {
	got := Classify("Rate: annual = 5%")
	assert.Equal(t, Assignment, got.Kind)
	assert.Equal(t, "Rate: annual", got.Name)
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("Total Cost"))
	assert.False(t, ValidName("12"))
	assert.False(t, ValidName("a + b"))
	assert.False(t, ValidName("rent - utilities"))
}
