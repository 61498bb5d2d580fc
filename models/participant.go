package models

import "strings"

// Participant is the directory view of an attendee. Profiles are owned by the
// registration service; this service only reads them.
type Participant struct {
	UserID       string   `json:"userid" bson:"userid"`
	Username     string   `json:"username,omitempty" bson:"username,omitempty"`
	Name         string   `json:"name" bson:"name"`
	Organization string   `json:"organization,omitempty" bson:"organization,omitempty"`
	Title        string   `json:"title,omitempty" bson:"title,omitempty"`
	Email        string   `json:"email,omitempty" bson:"email,omitempty"`
	Role         []string `json:"role,omitempty" bson:"role,omitempty"`
}

// Label is the human-readable form used in notifications.
func (p Participant) Label() string {
	name := p.Name
	if name == "" {
		name = p.Username
	}
	if name == "" {
		name = p.UserID
	}
	if p.Organization != "" {
		return name + " (" + p.Organization + ")"
	}
	return name
}

// Matches reports whether term occurs in the name, username or organization,
// ignoring case.
func (p Participant) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, f := range []string{p.Name, p.Username, p.Organization} {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}
