package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comexexport/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndListFilterEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entries := []model.FilterEntry{
		{Text: "Estados Unidos", Value: json.RawMessage(`"249"`), Raw: json.RawMessage(`{"text":"Estados Unidos","value":"249"}`)},
		{Label: "Chile", Value: json.RawMessage(`158`)},
		{Text: "Sem código"},
	}
	require.NoError(t, s.SaveFilterEntries(ctx, "country", "pt", entries))

	got, err := s.ListFilterEntries(ctx, "country", "pt", time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Estados Unidos", got[0].Text)
	assert.Equal(t, "249", got[0].ValueString())
	assert.JSONEq(t, `{"text":"Estados Unidos","value":"249"}`, string(got[0].Raw))
	assert.Equal(t, "Chile", got[1].Label)
	assert.Equal(t, "158", got[1].ValueString())
	assert.Nil(t, got[2].Value)

	other, err := s.ListFilterEntries(ctx, "country", "en", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSaveFilterEntries_ReplacesPreviousSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveFilterEntries(ctx, "country", "pt", []model.FilterEntry{{Text: "A"}, {Text: "B"}}))
	require.NoError(t, s.SaveFilterEntries(ctx, "country", "pt", []model.FilterEntry{{Text: "C"}}))

	got, err := s.ListFilterEntries(ctx, "country", "pt", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "C", got[0].Text)
}

func TestListFilterEntries_ExpiresByAge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return saved }
	require.NoError(t, s.SaveFilterEntries(ctx, "country", "pt", []model.FilterEntry{{Text: "A"}}))

	s.now = func() time.Time { return saved.Add(48 * time.Hour) }

	fresh, err := s.ListFilterEntries(ctx, "country", "pt", 72*time.Hour)
	require.NoError(t, err)
	assert.Len(t, fresh, 1)

	stale, err := s.ListFilterEntries(ctx, "country", "pt", 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)

	anyAge, err := s.ListFilterEntries(ctx, "country", "pt", 0)
	require.NoError(t, err)
	assert.Len(t, anyAge, 1)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestNew_ReopensExistingCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	first, err := New(path)
	require.NoError(t, err)
	require.NoError(t, first.SaveFilterEntries(ctx, "country", "pt", []model.FilterEntry{
		{Text: "Estados Unidos", Value: json.RawMessage(`"249"`), Raw: json.RawMessage(`{"text":"Estados Unidos","value":"249"}`)},
	}))
	require.NoError(t, first.Close())

	second, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	var tables []string
	rows, err := second.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables = append(tables, name)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"filter_entries"}, tables)

	entries, err := second.ListFilterEntries(ctx, "country", "pt", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Estados Unidos", entries[0].Text)
}
