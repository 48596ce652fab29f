package models

import (
	"strings"
)

// NormalizeMXID turns a localpart, a "user:server" pair or a full
// "@user:server" id into a proper MXID, completing a missing or empty
// server part with the given one.
func NormalizeMXID(user, server string) string {
	user = strings.TrimSpace(user)
	if user == "" {
		return ""
	}
	local := strings.TrimPrefix(user, "@")
	if idx := strings.Index(local, ":"); idx >= 0 {
		if local[idx+1:] != "" {
			return "@" + local
		}
		local = local[:idx]
	}
	return "@" + local + ":" + server
}

// Localpart extracts the user part of an MXID: "@ana:ugr.es" -> "ana".
func Localpart(mxid string) string {
	local := mxid
	if idx := strings.Index(local, ":"); idx >= 0 {
		local = local[:idx]
	}
	return strings.TrimPrefix(local, "@")
}
