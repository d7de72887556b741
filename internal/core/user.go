package core

import (
	"strings"
)

// User is a chat participant as seen in one room. Values are never mutated
// once published; profile updates replace the entry.
type User struct {
	ID          string
	DisplayName string
	Color       string
	Badges      map[string]string
}

// Profile carries display metadata read from frame tags.
type Profile struct {
	DisplayName string
	Color       string
	Badges      map[string]string
}

// ParseBadges decodes a "name/version,name/version" badges tag.
func ParseBadges(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	badges := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		name, version, _ := strings.Cut(part, "/")
		if name == "" {
			continue
		}
		badges[name] = version
	}
	return badges
}

// HasBadge reports whether the user carries the named badge.
func (u *User) HasBadge(name string) bool {
	_, ok := u.Badges[name]
	return ok
}

// Name returns the display name, falling back to the login.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

func (u *User) sameProfile(p Profile) bool {
	if p.DisplayName != "" && p.DisplayName != u.DisplayName {
		return false
	}
	if p.Color != "" && p.Color != u.Color {
		return false
	}
	if p.Badges == nil {
		return true
	}
	if len(p.Badges) != len(u.Badges) {
		return false
	}
	for k, v := range p.Badges {
		if u.Badges[k] != v {
			return false
		}
	}
	return true
}

func (u *User) withProfile(p Profile) *User {
	next := *u
	if p.DisplayName != "" {
		next.DisplayName = p.DisplayName
	}
	if p.Color != "" {
		next.Color = p.Color
	}
	if p.Badges != nil {
		next.Badges = p.Badges
	}
	return &next
}
