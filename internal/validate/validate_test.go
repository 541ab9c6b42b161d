package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	vars := map[string]float64{"Rent": 1200, "Total Cost": 50, "sum:food": 230}

	tests := []struct {
		name  string
		rhs   string
		bound string
		want  error
	}{
		{"empty", "   ", "", ErrEmpty},
		{"self reference", "Staffing * 2", "Staffing", ErrSelfReference},
		{"self reference normalized", "staff_ing + 1", "Staff Ing", ErrSelfReference},
		{"unknown identifier", "Rent + Groceries", "Budget", ErrUnknownIdentifier},
		{"hallucinated function", "system(1)", "", ErrUnknownIdentifier},
		{"unparseable", "Rent +", "", ErrUnparseable},
		{"unbalanced", "(Rent * 2", "", ErrUnparseable},
		{"variables", "Rent * 12", "Annual Rent", nil},
		{"multiword variable", "Total Cost + 1", "", nil},
		{"line references", "L{0} + L{prev}", "", nil},
		{"tag sum", "sum(food) / 4", "", nil},
		{"tag named like a variable", "sum(rent) + Rent", "", nil},
		{"sum alias", "sum:food * 2", "", nil},
		{"functions and constants", "round(Math.sqrt(Rent) * PI, 2) + ln(E)", "", nil},
		{"percent and currency", "$1,200 * 15%", "", nil},
		{"exponent literal", "1.5e3 + .5", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.rhs, tt.bound, vars)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidate(t *testing.T) {
	r := Validate("Staffing * 2", "Staffing", nil)
	assert.False(t, r.Valid)
	assert.NotEmpty(t, r.Reason)

	r = Validate("2 * 3", "Staffing", nil)
	assert.True(t, r.Valid)
	assert.Empty(t, r.Reason)
}

func TestMapFunctions(t *testing.T) {
	assert.Equal(t, "sqrt(4) + log(2)", MapFunctions("Math.sqrt(4) + ln(2)"))
}
