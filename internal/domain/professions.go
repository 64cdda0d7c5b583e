package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultProfessionRank applies to entries stored as a bare identifier.
const DefaultProfessionRank = 1

// Profession is the canonical shape every calculation sees. IDs are lower-case.
type Profession struct {
	ID   string `json:"id"`
	Rank int    `json:"rank"`
	Name string `json:"name,omitempty"`
}

// professionEntry accepts either a bare id ("mining") or an object
// ({"id":"mining","rank":4,"name":"Grandmaster Miner"}).
type professionEntry struct {
	Profession
}

func (p *professionEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		p.Profession = Profession{ID: normalizeID(id), Rank: DefaultProfessionRank}
		return nil
	}
	var obj struct {
		ID   json.RawMessage `json:"id"`
		Rank json.RawMessage `json:"rank"`
		Name string          `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("profession entry: %w", err)
	}
	id, err := scalarString(obj.ID)
	if err != nil {
		return fmt.Errorf("profession id: %w", err)
	}
	rank, err := parseRank(obj.Rank)
	if err != nil {
		return fmt.Errorf("profession %s rank: %w", id, err)
	}
	p.Profession = Profession{ID: normalizeID(id), Rank: rank, Name: obj.Name}
	return nil
}

// ParseProfessions normalizes a stored professions payload. The payload may be
// a JSON array or a JSON string whose content is an encoded array.
func ParseProfessions(raw []byte) ([]Profession, error) {
	raw = bytes.TrimSpace(raw)
	// one level of string encoding is unwrapped; deeper nesting is rejected below
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode professions string: %w", err)
		}
		raw = bytes.TrimSpace([]byte(inner))
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '[' {
		return nil, fmt.Errorf("professions must be a JSON array")
	}
	var entries []professionEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode professions: %w", err)
	}
	out := make([]Profession, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" && e.Name == "" {
			continue
		}
		out = append(out, e.Profession)
	}
	return out, nil
}

// MarshalProfessions encodes professions in the canonical array form.
func MarshalProfessions(items []Profession) (string, error) {
	if items == nil {
		items = []Profession{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func parseRank(raw json.RawMessage) (int, error) {
	s, err := scalarString(raw)
	if err != nil {
		return 0, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultProfessionRank, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rank %q", s)
	}
	if f < DefaultProfessionRank {
		return DefaultProfessionRank, nil
	}
	return int(f), nil
}
