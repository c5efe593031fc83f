package rbac

import (
	"encoding/json"
	"strings"
)

// AccessLevel is one of READ < WRITE < ADMIN < FULL_CONTROL
type AccessLevel string

const (
	LevelRead        AccessLevel = "READ"
	LevelWrite       AccessLevel = "WRITE"
	LevelAdmin       AccessLevel = "ADMIN"
	LevelFullControl AccessLevel = "FULL_CONTROL"
)

var levelRank = map[AccessLevel]int{
	LevelRead:        1,
	LevelWrite:       2,
	LevelAdmin:       3,
	LevelFullControl: 4,
}

// AccessLevels returns all levels in ascending order
func AccessLevels() []AccessLevel {
	return []AccessLevel{LevelRead, LevelWrite, LevelAdmin, LevelFullControl}
}

// Rank returns the position of l in the total order, 0 for unknown levels
func (l AccessLevel) Rank() int {
	return levelRank[l]
}

// Valid reports whether l is a known level
func (l AccessLevel) Valid() bool {
	return l.Rank() > 0
}

// AtLeast reports whether l grants required. Unknown levels never grant
// anything and are never satisfied.
func (l AccessLevel) AtLeast(required AccessLevel) bool {
	if !l.Valid() || !required.Valid() {
		return false
	}
	return l.Rank() >= required.Rank()
}

// ParseAccessLevel parses a level name, case-insensitively
func ParseAccessLevel(s string) (AccessLevel, error) {
	l := AccessLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", Validationf("invalid access level %q", s)
	}
	return l, nil
}

// UnmarshalJSON accepts any casing but rejects unknown levels
func (l *AccessLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAccessLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UnmarshalYAML accepts any casing but rejects unknown levels
func (l *AccessLevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseAccessLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
