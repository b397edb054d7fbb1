package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isearch-project/musebag/internal/mqf"
)

func TestNewGuestProfile(t *testing.T) {
	p := NewGuestProfile()

	assert.True(t, p.IsGuest())
	assert.JSONEq(t, `{"maxResults":100,"clusterType":"3D"}`, p.Settings)
	assert.Zero(t, p.QueryCounter)
	assert.Empty(t, p.ExtSessionID)
}

func TestProfile_Attribute(t *testing.T) {
	p := &Profile{ID: "42", Email: "user@example.org", Settings: `{}`, QueryCounter: 3}

	tests := []struct {
		name   string
		attrib string
		want   string
		ok     bool
	}{
		{"id", "ID", "42", true},
		{"email", "Email", "user@example.org", true},
		{"settings", "Settings", `{}`, true},
		{"query counter", "QueryCounter", "3", true},
		{"unknown", "Password", "", false},
		{"unassigned ext id", "extSessionId", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Attribute(tt.attrib)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProfile_MergeSettings(t *testing.T) {
	t.Run("merges new keys", func(t *testing.T) {
		p := NewGuestProfile()
		changed, err := p.MergeSettings(`{"clusterType":"2D","newKey":true}`)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.JSONEq(t, `{"maxResults":100,"clusterType":"2D","newKey":true}`, p.Settings)
	})

	t.Run("no change reported", func(t *testing.T) {
		p := NewGuestProfile()
		changed, err := p.MergeSettings(`{"clusterType":"3D"}`)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("nested values", func(t *testing.T) {
		p := NewGuestProfile()
		changed, err := p.MergeSettings(`{"filters":{"color":"red"},"sources":["flickr"]}`)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = p.MergeSettings(`{"filters":{"color":"red"},"sources":["flickr"]}`)
		require.NoError(t, err)
		assert.False(t, changed, "identical nested values are no change")

		changed, err = p.MergeSettings(`{"filters":{"color":"blue"}}`)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Contains(t, p.Settings, `"blue"`)
	})

	t.Run("malformed input", func(t *testing.T) {
		p := NewGuestProfile()
		_, err := p.MergeSettings(`{broken`)
		require.Error(t, err)
		assert.JSONEq(t, DefaultSettings, p.Settings, "settings untouched on error")
	})
}

func TestProfile_ItemList(t *testing.T) {
	p := NewGuestProfile()

	require.NoError(t, p.AppendItem(mqf.UploadItem{Path: "abc.jpg", Name: "a.jpg"}))
	require.NoError(t, p.AppendItem(mqf.UploadItem{Path: "def.png", Name: "b.png"}))
	require.Len(t, p.Items, 2)

	p.PrependItems([]Item{json.RawMessage(`{"result":1}`)})
	require.Len(t, p.Items, 3)
	assert.JSONEq(t, `{"result":1}`, string(p.Items[0]), "new items go first")

	p.ResetQuery()
	assert.Nil(t, p.Items)
	assert.Nil(t, p.Query)
}

func TestProfile_Clone_Independent(t *testing.T) {
	p := NewGuestProfile()
	p.Query = &StoredQuery{ID: "x", RUCoD: "<RUCoD/>"}
	require.NoError(t, p.AppendItem(mqf.UploadItem{Name: "a"}))

	cp := p.Clone()
	cp.Query.ID = "y"
	require.NoError(t, cp.AppendItem(mqf.UploadItem{Name: "b"}))

	assert.Equal(t, "x", p.Query.ID)
	assert.Len(t, p.Items, 1)
}
