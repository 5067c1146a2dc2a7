package services

import "github.com/s92475mark/remote-file-access/models"

// Limits are a user's effective quotas resolved from their role set.
// models.UnlimitedQuota (-1) means the field is uncapped.
type Limits struct {
	FileLimit          int
	PermanentFileLimit int
	LifetimeDays       int
}

// ResolveLimits derives effective limits from a role set. Per quota field the
// values of all roles are collected, any role equal to the unlimited sentinel
// is discarded, and the maximum of the rest wins; only when every role is
// unlimited does the sentinel survive. A single finite role therefore caps the
// user even if another role is nominally unlimited. A user with no roles gets
// the unlimited sentinel for all three fields.
//
// This one policy is used on every path (upload, promote, listing/info).
func ResolveLimits(roles []models.Role) Limits {
	return Limits{
		FileLimit:          maxFinite(roles, func(r models.Role) int { return r.FileLimit }),
		PermanentFileLimit: maxFinite(roles, func(r models.Role) int { return r.PermanentFileLimit }),
		LifetimeDays:       maxFinite(roles, func(r models.Role) int { return r.FileLifetimeDays }),
	}
}

func maxFinite(roles []models.Role, field func(models.Role) int) int {
	best := models.UnlimitedQuota
	for _, r := range roles {
		v := field(r)
		if v == models.UnlimitedQuota {
			continue
		}
		if best == models.UnlimitedQuota || v > best {
			best = v
		}
	}
	return best
}
