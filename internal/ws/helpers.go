package ws

import (
	"strings"

	"github.com/google/uuid"
)

func newConnID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
