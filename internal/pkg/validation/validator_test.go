package validation

import (
	"strings"
	"testing"

	"devmemory-be/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidDisplayName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "plain", in: "Payment retries", want: true},
		{name: "punctuation", in: "S0001: fix #42 (auth/jwt) it's_done-v2.1", want: true},
		{name: "unicode letters", in: "Überarbeitung", want: true},
		{name: "max length", in: strings.Repeat("a", DisplayNameMaxLength), want: true},
		{name: "empty", in: "", want: false},
		{name: "blank", in: "   ", want: false},
		{name: "too long", in: strings.Repeat("a", DisplayNameMaxLength+1), want: false},
		{name: "angle brackets", in: "<script>", want: false},
		{name: "newline", in: "two\nlines", want: false},
		{name: "emoji", in: "ship it 🚀", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidDisplayName(tt.in))
		})
	}
}

type sample struct {
	Title string   `json:"title" validate:"required,displayname"`
	Limit int      `json:"limit" validate:"gte=0,lte=500"`
	Tags  []string `json:"tags" validate:"max=2,dive,min=1,max=8"`
}

func TestStruct_FieldNamesUseJSONTags(t *testing.T) {
	err := Struct(&sample{Title: "bad<", Limit: 501, Tags: []string{"ok", ""}})

	var validationErr *apperr.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, validationErr.Fields, "title")
	assert.Equal(t, "must be less than or equal to 500", validationErr.Fields["limit"])
	assert.Contains(t, validationErr.Fields, "tags[1]")

	assert.NoError(t, Struct(&sample{Title: "fine", Limit: 500}))
}

func TestDisplayName(t *testing.T) {
	assert.NoError(t, DisplayName("Refactor sweep"))
	assert.ErrorIs(t, DisplayName(""), apperr.ErrValidation)
}
