package telegram

import (
	"strconv"
	"strings"
)

// Access decides who may talk to the bot. An allowed list of "*" admits
// everyone and an admin list of "-" means no admins. Admins are always allowed.
type Access struct {
	allowAll bool
	allowed  map[int64]struct{}
	admins   map[int64]struct{}
}

func ParseAccess(allowed, admins string) Access {
	a := Access{
		allowAll: strings.TrimSpace(allowed) == "*",
		allowed:  parseIDs(allowed),
		admins:   map[int64]struct{}{},
	}
	if strings.TrimSpace(admins) != "-" {
		a.admins = parseIDs(admins)
	}
	return a
}

func (a Access) Allowed(userID int64) bool {
	if a.allowAll || a.IsAdmin(userID) {
		return true
	}
	_, ok := a.allowed[userID]
	return ok
}

func (a Access) IsAdmin(userID int64) bool {
	_, ok := a.admins[userID]
	return ok
}

func parseIDs(list string) map[int64]struct{} {
	out := map[int64]struct{}{}
	for _, part := range strings.Split(list, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			out[id] = struct{}{}
		}
	}
	return out
}
