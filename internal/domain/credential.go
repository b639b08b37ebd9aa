package domain

// Credential is the short-lived authorization value required to open the
// media transport with the remote endpoint. It is acquired once per
// connection attempt and discarded on teardown, never persisted.
type Credential struct {
	Secret string
}

// ClientSecret is the nested secret inside a credential payload.
type ClientSecret struct {
	Value string `json:"value"`
}

// CredentialPayload is the wire shape every credential source produces:
// either a nested client secret or an explicit rejection.
type CredentialPayload struct {
	ClientSecret *ClientSecret `json:"client_secret,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ParsePayload validates a decoded credential payload. A payload carrying an
// error field is a rejection, not a success, even if a secret is also present.
func ParsePayload(p CredentialPayload) (Credential, error) {
	if p.Error != "" {
		return Credential{}, &CredentialError{Kind: CredentialRejected, Detail: p.Error}
	}
	if p.ClientSecret == nil || p.ClientSecret.Value == "" {
		return Credential{}, &CredentialError{Kind: CredentialRejected, Detail: "payload missing client_secret.value"}
	}
	return Credential{Secret: p.ClientSecret.Value}, nil
}
