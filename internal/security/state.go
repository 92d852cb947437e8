package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignState binds an OAuth state nonce to the server key so the callback can trust the cookie.
func SignState(state, key string) string {
	return state + "." + stateMAC(state, key)
}

func VerifySignedState(signed, key string) (string, bool) {
	state, mac, ok := strings.Cut(signed, ".")
	if !ok || state == "" || mac == "" {
		return "", false
	}
	if !hmac.Equal([]byte(mac), []byte(stateMAC(state, key))) {
		return "", false
	}
	return state, true
}

func stateMAC(state, key string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(state))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
