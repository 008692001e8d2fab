package plesk

import "net/http"

// Auth is the authentication mode used for agent requests. The only
// implementations are LoginPassword and SecretKey.
type Auth interface {
	apply(h http.Header)
}

// LoginPassword authenticates with a panel login and its password.
type LoginPassword struct {
	Login    string
	Password string
}

func (a LoginPassword) apply(h http.Header) {
	// Plesk reads these header names verbatim, so bypass canonicalization.
	h["HTTP_AUTH_LOGIN"] = []string{a.Login}
	h["HTTP_AUTH_PASSWD"] = []string{a.Password}
}

// SecretKey authenticates with a Plesk API secret key.
type SecretKey struct {
	Key string
}

func (a SecretKey) apply(h http.Header) {
	h["KEY"] = []string{a.Key}
}
