// Package session manages per-visitor session state: the profile of a
// guest or authenticated user, the externally shared session id, and the
// item list of the query lifecycle in flight.
//
// Profiles are explicit value objects passed into handlers; storage is
// behind the Store interface with in-memory and PostgreSQL backends.
package session

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/isearch-project/musebag/internal/mqf"
)

// Item is one entry of the session's item list. Entries come from two
// producers with different shapes: distributed upload items and result
// items posted for the search history. Both are kept as raw JSON.
type Item = json.RawMessage

// GuestID is the profile ID of unauthenticated visitors.
const GuestID = "guest"

// DefaultSettings is the Settings JSON a fresh guest profile starts with.
const DefaultSettings = `{"maxResults":100,"clusterType":"3D"}`

// StoredQuery is the query remembered in the session between submission
// and the history update.
type StoredQuery struct {
	ID    string `json:"id"`
	RUCoD string `json:"rucod"`
}

// Profile is the per-session user profile. ID is "guest" for
// unauthenticated visitors or the numeric id of an authenticated user.
// ExtSessionID is assigned once per session and stays stable afterwards.
type Profile struct {
	ID           string       `json:"id"`
	Email        string       `json:"email,omitempty"`
	Settings     string       `json:"settings"`
	QueryCounter int          `json:"queryCounter"`
	ExtSessionID string       `json:"extSessionId,omitempty"`
	Query        *StoredQuery `json:"query,omitempty"`
	Items        []Item       `json:"items,omitempty"`
}

// NewGuestProfile creates the default profile for an unauthenticated
// session.
func NewGuestProfile() *Profile {
	return &Profile{
		ID:       GuestID,
		Settings: DefaultSettings,
	}
}

// IsGuest reports whether the profile belongs to an unauthenticated
// visitor.
func (p *Profile) IsGuest() bool {
	return p.ID == GuestID
}

// Clone returns a deep copy so callers can read a profile without racing
// against concurrent updates.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Query != nil {
		q := *p.Query
		cp.Query = &q
	}
	if p.Items != nil {
		cp.Items = make([]Item, len(p.Items))
		copy(cp.Items, p.Items)
	}
	return &cp
}

// Attribute returns the named profile attribute rendered as a string, and
// whether the attribute exists. Attribute names match the front-end's
// profile protocol.
func (p *Profile) Attribute(name string) (string, bool) {
	switch name {
	case "ID":
		return p.ID, true
	case "Email":
		return p.Email, p.Email != ""
	case "Settings":
		return p.Settings, p.Settings != ""
	case "QueryCounter":
		return fmt.Sprintf("%d", p.QueryCounter), true
	case "extSessionId":
		return p.ExtSessionID, p.ExtSessionID != ""
	default:
		return "", false
	}
}

// SetAttribute overwrites a writable simple attribute. Settings must go
// through MergeSettings instead; unknown or read-only names are rejected.
func (p *Profile) SetAttribute(name, value string) bool {
	switch name {
	case "Email":
		p.Email = value
		return true
	default:
		return false
	}
}

// MergeSettings merges the keys of the posted Settings JSON into the
// stored settings. Returns whether anything effectively changed.
// Malformed JSON on either side is an error.
func (p *Profile) MergeSettings(data string) (bool, error) {
	var incoming map[string]any
	if err := json.Unmarshal([]byte(data), &incoming); err != nil {
		return false, fmt.Errorf("parsing posted settings: %w", err)
	}

	current := map[string]any{}
	if p.Settings != "" {
		if err := json.Unmarshal([]byte(p.Settings), &current); err != nil {
			return false, fmt.Errorf("parsing stored settings: %w", err)
		}
	}

	changed := false
	for key, value := range incoming {
		// Decoded values can be maps or slices; == on those panics.
		if existing, ok := current[key]; !ok || !reflect.DeepEqual(existing, value) {
			current[key] = value
			changed = true
		}
	}
	if !changed {
		return false, nil
	}

	merged, err := json.Marshal(current)
	if err != nil {
		return false, fmt.Errorf("encoding merged settings: %w", err)
	}
	p.Settings = string(merged)
	return true, nil
}

// AppendItem records a distributed query item on the current lifecycle.
func (p *Profile) AppendItem(item mqf.UploadItem) error {
	encoded, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding query item: %w", err)
	}
	p.Items = append(p.Items, Item(encoded))
	return nil
}

// PrependItems puts new history items ahead of existing ones, newest first.
func (p *Profile) PrependItems(items []Item) {
	p.Items = append(append([]Item{}, items...), p.Items...)
}

// ResetQuery starts a new query lifecycle: the stored query and the
// in-flight item list are discarded.
func (p *Profile) ResetQuery() {
	p.Query = nil
	p.Items = nil
}
