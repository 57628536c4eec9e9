package client

import "github.com/pkg/errors"

// TriBool is a boolean controller state which may be unknown
type TriBool int

const (
	// Unknown is reported when the state could not be read
	Unknown TriBool = iota
	True
	False
)

var triBoolNames = map[TriBool]string{
	Unknown: "unknown",
	True:    "true",
	False:   "false",
}

// NewTriBool returns True or False for b
func NewTriBool(b bool) TriBool {
	if b {
		return True
	}
	return False
}

func (t TriBool) String() string {
	if s, ok := triBoolNames[t]; ok {
		return s
	}
	return triBoolNames[Unknown]
}

// Bool reports whether t is True
func (t TriBool) Bool() bool { return t == True }

func (t TriBool) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TriBool) UnmarshalText(b []byte) error {
	for v, s := range triBoolNames {
		if s == string(b) {
			*t = v
			return nil
		}
	}
	return errors.Errorf("invalid tri-state boolean %q", b)
}
