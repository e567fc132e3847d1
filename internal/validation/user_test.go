package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUser(t *testing.T) {
	t.Parallel()
	base := UserInput{ExternalID: "user_1", Username: "Alice", Name: "Alice Doe", Bio: "hi", Image: ""}

	tests := []struct {
		name    string
		mutate  func(*UserInput)
		wantErr bool
	}{
		{"Valid", func(*UserInput) {}, false},
		{"Uppercase Username Normalized", func(in *UserInput) { in.Username = " BOB_99 " }, false},
		{"Missing External ID", func(in *UserInput) { in.ExternalID = "" }, true},
		{"Name Too Short", func(in *UserInput) { in.Name = "Al" }, true},
		{"Name Too Long", func(in *UserInput) { in.Name = strings.Repeat("a", 31) }, true},
		{"Username Illegal Chars", func(in *UserInput) { in.Username = "user@123" }, true},
		{"Bio Too Long", func(in *UserInput) { in.Bio = strings.Repeat("b", 1001) }, true},
		{"Bio At Limit", func(in *UserInput) { in.Bio = strings.Repeat("b", 1000) }, false},
		{"Image URL", func(in *UserInput) { in.Image = "https://img.example.com/a.png" }, false},
		{"Image Not URL", func(in *UserInput) { in.Image = "not a url" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			err := ValidateUser(in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateThreadText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"Valid", "hello", false},
		{"Single Char", "x", false},
		{"Exactly Max", strings.Repeat("a", MaxThreadLength), false},
		{"Max In Runes", strings.Repeat("é", MaxThreadLength), false},
		{"Empty", "", true},
		{"Blank", "   \n\t", true},
		{"Too Long", strings.Repeat("a", MaxThreadLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateThreadText(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
