package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMissingKeyword(t *testing.T) {
	table := []struct {
		name     string
		text     string
		keywords []string
		missing  string
		ok       bool
	}{
		{name: "no keywords", text: "anything", keywords: nil},
		{name: "present", text: "Diagnosed with PARVO", keywords: []string{"parvo"}},
		{name: "keyword case", text: "diagnosed with parvo", keywords: []string{" Parvo "}},
		{name: "absent", text: "healthy", keywords: []string{"parvo"}, missing: "parvo", ok: true},
		{
			name:     "first missing wins",
			text:     "kennel cough",
			keywords: []string{"cough", "parvo", "distemper"},
			missing:  "parvo",
			ok:       true,
		},
		{name: "blank keywords ignored", text: "parvo", keywords: []string{"", "  ", "parvo"}},
		{name: "repeated spaces match exactly", text: "Diagnosis: parvo  virus", keywords: []string{"parvo  virus"}},
		{
			name:     "single space against repeated spaces",
			text:     "Diagnosis: parvo  virus",
			keywords: []string{"parvo virus"},
			missing:  "parvo virus",
			ok:       true,
		},
		{
			name:     "newline in text is not a space",
			text:     "parvo\nvirus",
			keywords: []string{"parvo virus"},
			missing:  "parvo virus",
			ok:       true,
		},
		{name: "newline in text matches newline keyword", text: "parvo\nvirus", keywords: []string{"Parvo\nVirus"}},
		{name: "trailing newline trimmed", text: "parvo", keywords: []string{"parvo\n"}},
	}

	for _, row := range table {
		missing, ok := MissingKeyword(row.text, row.keywords)
		require.Equal(t, row.ok, ok, row.name)
		require.Equal(t, row.missing, missing, row.name)
	}
}
