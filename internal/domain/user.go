package domain

import "strings"

const anonymousIDPrefix = "anon:"

type UserInfo struct {
	UserID             string `json:"userId"`
	UserName           string `json:"userName"`
	UserEmail          string `json:"userEmail,omitempty"`
	UserImage          string `json:"userImage,omitempty"`
	IsAnonymous        bool   `json:"isAnonymous"`
	AnonymousSessionID string `json:"anonymousSessionId,omitempty"`
	Color              string `json:"color,omitempty"`
	Initials           string `json:"initials,omitempty"`
}

// zero Principal = no credentials
type Principal struct {
	UserID string
	Name   string
	Email  string
	Image  string
}

func (p Principal) Authenticated() bool { return p.UserID != "" }

func AnonymousUserID(sessionID string) string {
	return anonymousIDPrefix + sessionID
}

func IsAnonymousUserID(userID string) bool {
	return strings.HasPrefix(userID, anonymousIDPrefix)
}

func AnonymousUser(sessionID string) UserInfo {
	p := DerivePseudonym(sessionID)
	return UserInfo{
		UserID:             AnonymousUserID(sessionID),
		UserName:           p.Name,
		IsAnonymous:        true,
		AnonymousSessionID: sessionID,
		Color:              p.Color,
		Initials:           p.Initials,
	}
}
