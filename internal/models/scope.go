// internal/models/scope.go
package models

import "strings"

// Scope is the marketplace/country/language a template belongs to.
type Scope struct {
	Marketplace string `json:"marketplace"`
	Country     string `json:"country"`
	Lang        string `json:"lang"`
}

// SameLocale reports whether both scopes share country and language.
func (s Scope) SameLocale(o Scope) bool {
	return strings.EqualFold(s.Country, o.Country) && strings.EqualFold(s.Lang, o.Lang)
}

// SameLang reports whether both scopes share a language.
func (s Scope) SameLang(o Scope) bool {
	return strings.EqualFold(s.Lang, o.Lang)
}

func (s Scope) Key() string {
	return strings.ToLower(s.Marketplace) + "|" + strings.ToUpper(s.Country) + "|" + strings.ToLower(s.Lang)
}

func (s Scope) String() string { return s.Key() }
