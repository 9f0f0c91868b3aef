package resolve

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comexexport/internal/model"
)

func entry(text, label, value string) model.FilterEntry {
	e := model.FilterEntry{Text: text, Label: label}
	if value != "" {
		e.Value = json.RawMessage(value)
	}
	return e
}

func TestFindEntry_LabelSubstring(t *testing.T) {
	entries := []model.FilterEntry{
		entry("Brasil", "", `"105"`),
		entry("UNITED STATES", "", `"249"`),
		entry("United States Minor Outlying Islands", "", `"250"`),
	}

	got, ok := FindEntry(entries, []string{"United States"})
	require.True(t, ok)
	assert.Equal(t, "249", got.ValueString())
}

func TestFindEntry_FirstMatchInSequenceOrder(t *testing.T) {
	entries := []model.FilterEntry{
		entry("Emirados Árabes Unidos", "", `"244"`),
		entry("Reino Unido", "", `"628"`),
		entry("Estados Unidos", "", `"249"`),
	}

	// "United" is the first default term but matches nothing here; the first
	// entry containing any term wins.
	got, ok := FindEntry(entries, DefaultTerms)
	require.True(t, ok)
	assert.Equal(t, "Estados Unidos", got.Text)
}

func TestFindEntry_LabelFallbackOrder(t *testing.T) {
	entries := []model.FilterEntry{
		entry("", "", `"estados unidos"`),
		entry("", "Estados Unidos", `"249"`),
	}

	got, ok := FindEntry(entries, []string{"Estados Unidos"})
	require.True(t, ok)
	assert.Equal(t, "estados unidos", got.ValueString(), "value is used as display text when text and label are empty")
}

func TestFindEntry_CodeFallback(t *testing.T) {
	entries := []model.FilterEntry{
		entry("Brasil", "", `"105"`),
		entry("País 249", "", `"US"`),
	}

	got, ok := FindEntry(entries, []string{"United States", "Estados Unidos"})
	require.True(t, ok)
	assert.Equal(t, "US", got.ValueString())
}

func TestFindEntry_NoMatch(t *testing.T) {
	entries := []model.FilterEntry{
		entry("Brasil", "", `"105"`),
		entry("Chile", "", `158`),
		entry("", "", ""),
	}

	_, ok := FindEntry(entries, DefaultTerms)
	assert.False(t, ok)

	_, ok = FindEntry(nil, DefaultTerms)
	assert.False(t, ok)
}

func TestFindEntry_NumericValueFallback(t *testing.T) {
	entries := []model.FilterEntry{entry("Estados", "", `840`)}

	_, ok := FindEntry(entries, []string{"840"})
	assert.False(t, ok, "numeric values are not treated as display text when text is set")
}

func TestCandidates(t *testing.T) {
	entries := []model.FilterEntry{
		entry("Estados Federados da Micronésia", "", `"545"`),
		entry("Brasil", "", `"105"`),
		entry("United Kingdom", "", `"628"`),
		entry("", "", ""),
	}

	got := Candidates(entries, DefaultHints)
	require.Len(t, got, 2)
	assert.Equal(t, "545", got[0].ValueString())
	assert.Equal(t, "628", got[1].ValueString())
}
