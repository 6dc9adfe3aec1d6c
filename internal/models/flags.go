// internal/models/flags.go
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Flag is one attribute behaviour switch.
type Flag uint16

const (
	ChildOnly Flag = 1 << iota
	NoAI
	PutFirstValue
	Size
	SameValue
	ChildSameValue
	ForCustomInstructions
	ReadablePreviousTemplates
	Copy
	MandatoryAmazon
	MandatoryTemu
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{ChildOnly, "ChildOnly"},
	{NoAI, "NoAI"},
	{PutFirstValue, "PutFirstValue"},
	{Size, "Size"},
	{SameValue, "SameValue"},
	{ChildSameValue, "ChildSameValue"},
	{ForCustomInstructions, "ForCustomInstructions"},
	{ReadablePreviousTemplates, "ReadablePreviousTemplates"},
	{Copy, "Copy"},
	{MandatoryAmazon, "MandatoryAmazon"},
	{MandatoryTemu, "MandatoryTemu"},
}

func (f Flag) String() string {
	for _, fn := range flagNames {
		if fn.flag == f {
			return fn.name
		}
	}
	return fmt.Sprintf("Flag(%d)", uint16(f))
}

// ParseFlag accepts a flag name, case-insensitively.
func ParseFlag(name string) (Flag, error) {
	for _, fn := range flagNames {
		if strings.EqualFold(fn.name, strings.TrimSpace(name)) {
			return fn.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown attribute flag %q", name)
}

// FlagSet is a set of flags. The zero value is empty.
type FlagSet uint16

func NewFlagSet(flags ...Flag) FlagSet {
	var s FlagSet
	for _, f := range flags {
		s |= FlagSet(f)
	}
	return s
}

// ParseFlagSet parses names separated by commas, pipes or spaces.
func ParseFlagSet(s string) (FlagSet, error) {
	var out FlagSet
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' || r == ' ' }) {
		f, err := ParseFlag(part)
		if err != nil {
			return 0, err
		}
		out |= FlagSet(f)
	}
	return out, nil
}

func (s FlagSet) Has(f Flag) bool        { return s&FlagSet(f) != 0 }
func (s FlagSet) With(f Flag) FlagSet    { return s | FlagSet(f) }
func (s FlagSet) Without(f Flag) FlagSet { return s &^ FlagSet(f) }

func (s FlagSet) IsChildOnly() bool             { return s.Has(ChildOnly) }
func (s FlagSet) IsNoAI() bool                  { return s.Has(NoAI) }
func (s FlagSet) IsPutFirstValue() bool         { return s.Has(PutFirstValue) }
func (s FlagSet) IsSize() bool                  { return s.Has(Size) }
func (s FlagSet) IsSameValue() bool             { return s.Has(SameValue) }
func (s FlagSet) IsChildSameValue() bool        { return s.Has(ChildSameValue) }
func (s FlagSet) IsForCustomInstructions() bool { return s.Has(ForCustomInstructions) }
func (s FlagSet) IsCopy() bool                  { return s.Has(Copy) }

// IsMandatoryFor reports the marketplace-specific mandatory flag.
func (s FlagSet) IsMandatoryFor(marketplace string) bool {
	switch strings.ToLower(marketplace) {
	case "amazon":
		return s.Has(MandatoryAmazon)
	case "temu":
		return s.Has(MandatoryTemu)
	}
	return false
}

// Names lists the set flags in declaration order.
func (s FlagSet) Names() []string {
	var out []string
	for _, fn := range flagNames {
		if s.Has(fn.flag) {
			out = append(out, fn.name)
		}
	}
	return out
}

func (s FlagSet) String() string { return strings.Join(s.Names(), "|") }

func (s FlagSet) MarshalJSON() ([]byte, error) {
	names := s.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

func (s *FlagSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var out FlagSet
	for _, n := range names {
		f, err := ParseFlag(n)
		if err != nil {
			return err
		}
		out |= FlagSet(f)
	}
	*s = out
	return nil
}
