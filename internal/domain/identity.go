package domain

// Identity is what a verified access token proves about the caller.
type Identity struct {
	Subject  string `json:"sub"`
	Username string `json:"username,omitempty"`
}
