package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/s92475mark/remote-file-access/models"
	"github.com/s92475mark/remote-file-access/utils"
)

// RequirePermission gates a route on the authenticated user holding all of the
// given permission codes, collected across every assigned role. It must run
// after AuthRequired.
func RequirePermission(db *gorm.DB, codes ...string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID, ok := GetUserID(ctx)
		if !ok {
			utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
			ctx.Abort()
			return
		}

		held, err := userPermissions(db, userID)
		if err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50010, "permission lookup failed")
			ctx.Abort()
			return
		}

		for _, code := range codes {
			if !held[code] {
				utils.Error(ctx, http.StatusForbidden, 40310, "insufficient permissions, requires: "+code)
				ctx.Abort()
				return
			}
		}
		ctx.Next()
	}
}

// userPermissions collects the distinct permission codes of a user's roles.
func userPermissions(db *gorm.DB, userID uint) (map[string]bool, error) {
	var user models.User
	if err := db.Preload("Roles.Permissions").First(&user, userID).Error; err != nil {
		return nil, err
	}
	held := map[string]bool{}
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			held[perm.Code] = true
		}
	}
	return held, nil
}
