package echo

import "strings"

// credentialMarkers are lowercase fragments of error messages that mean the
// remote service rejected the API key.
var credentialMarkers = []string{
	"requested entity was not found",
	"api key not valid",
	"api_key_invalid",
	"permission_denied",
	"unauthenticated",
	"error 401",
	"error 403",
	"401 unauthorized",
	"403 forbidden",
	"invalid api key",
	"incorrect api key",
}

// IsCredentialError reports whether err looks like a rejected API key.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range credentialMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
