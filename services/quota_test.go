package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/s92475mark/remote-file-access/models"
)

func TestResolveLimits(t *testing.T) {
	cases := []struct {
		name  string
		roles []models.Role
		want  Limits
	}{
		{
			name:  "no roles means unlimited",
			roles: nil,
			want:  Limits{FileLimit: -1, PermanentFileLimit: -1, LifetimeDays: -1},
		},
		{
			name: "single role passes through",
			roles: []models.Role{
				quotaRole("basic", 10, 1, 7),
			},
			want: Limits{FileLimit: 10, PermanentFileLimit: 1, LifetimeDays: 7},
		},
		{
			name: "max of finite values wins per field",
			roles: []models.Role{
				quotaRole("basic", 10, 1, 7),
				quotaRole("plus", 50, 10, 14),
			},
			want: Limits{FileLimit: 50, PermanentFileLimit: 10, LifetimeDays: 14},
		},
		{
			name: "unlimited sentinel is discarded when a finite role exists",
			roles: []models.Role{
				quotaRole("admin", -1, -1, -1),
				quotaRole("basic", 10, 1, 7),
			},
			want: Limits{FileLimit: 10, PermanentFileLimit: 1, LifetimeDays: 7},
		},
		{
			name: "all unlimited stays unlimited",
			roles: []models.Role{
				quotaRole("admin", -1, -1, -1),
				quotaRole("root", -1, -1, -1),
			},
			want: Limits{FileLimit: -1, PermanentFileLimit: -1, LifetimeDays: -1},
		},
		{
			name: "fields resolve independently",
			roles: []models.Role{
				quotaRole("a", -1, 5, 7),
				quotaRole("b", 100, -1, 3),
			},
			want: Limits{FileLimit: 100, PermanentFileLimit: 5, LifetimeDays: 7},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveLimits(tc.roles))
		})
	}
}

// Pins the quota policy so the listing endpoint and the enforcement paths
// cannot drift apart: List must report exactly what ResolveLimits returns.
func TestResolveLimitsPolicyPinned(t *testing.T) {
	env := newTestEnv(t)
	roles := []models.Role{
		quotaRole("pin-a", -1, 2, 30),
		quotaRole("pin-b", 5, -1, -1),
	}
	user := createUser(t, env.db, "pinned", roles...)

	res, err := env.files.List(context.Background(), user.ID, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	want := ResolveLimits(roles)
	assert.Equal(t, want.FileLimit, res.FileLimit)
	assert.Equal(t, want.PermanentFileLimit, res.PermanentLimit)
	assert.Equal(t, want.LifetimeDays, res.LifetimeDays)
}
