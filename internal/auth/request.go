package auth

import (
	"net/http"
	"strings"
)

// BearerSubprotocol is the first Sec-WebSocket-Protocol value browsers use
// to smuggle a token, as in "bearer, <token>".
const BearerSubprotocol = "bearer"

// TokenFromRequest finds the bearer token on a WebSocket upgrade request.
// It checks the Authorization header, then the Sec-WebSocket-Protocol pair,
// then the token query parameter when allowQuery is set. subprotocol is
// non-empty when the token came from Sec-WebSocket-Protocol and must be
// echoed back in the handshake response.
func TokenFromRequest(r *http.Request, allowQuery bool) (token, subprotocol string) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value), ""
		}
	}

	if protocols := websocketProtocols(r); len(protocols) == 2 && strings.EqualFold(protocols[0], BearerSubprotocol) {
		return protocols[1], protocols[0]
	}

	if allowQuery {
		return r.URL.Query().Get("token"), ""
	}
	return "", ""
}

func websocketProtocols(r *http.Request) []string {
	var out []string
	for _, h := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(h, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
