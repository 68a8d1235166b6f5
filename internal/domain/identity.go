package domain

// Identity is the signed-in user as reported by the auth provider.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

func (i Identity) IsAnonymous() bool {
	return i.UID == ""
}
