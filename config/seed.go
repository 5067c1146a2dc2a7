package config

import (
	"log"

	"gorm.io/gorm"

	"github.com/s92475mark/remote-file-access/models"
)

// seedPermissions is the full permission catalogue checked by the gate.
var seedPermissions = []models.Permission{
	{Code: "user:create", PermissionName: "create user"},
	{Code: "user:read:list", PermissionName: "list users"},
	{Code: "user:read:details", PermissionName: "read user details"},
	{Code: "user:update", PermissionName: "update user"},
	{Code: "user:assign_roles", PermissionName: "assign user roles"},
	{Code: "user:delete", PermissionName: "delete user"},
	{Code: "role:create", PermissionName: "create role"},
	{Code: "role:read", PermissionName: "read roles"},
	{Code: "role:update", PermissionName: "update role"},
	{Code: "role:delete", PermissionName: "delete role"},
	{Code: models.PermFileUpload, PermissionName: "upload files"},
	{Code: models.PermFileRead, PermissionName: "read own files"},
	{Code: models.PermFileDelete, PermissionName: "delete own files"},
	{Code: models.PermFileShare, PermissionName: "create share links"},
	{Code: models.PermFilePermanent, PermissionName: "mark files permanent"},
	{Code: "file:manage:all", PermissionName: "manage all files"},
	{Code: "audit:read", PermissionName: "read audit log"},
}

// seedRoles is the default role ladder with its quota columns. A lower level
// is more privileged; -1 means unlimited.
var seedRoles = []models.Role{
	{RoleName: "Admin", Level: 0, FileLimit: -1, PermanentFileLimit: -1, FileLifetimeDays: -1},
	{RoleName: "lv1User", Level: 1, FileLimit: 100, PermanentFileLimit: 20, FileLifetimeDays: 30},
	{RoleName: "lv2User", Level: 2, FileLimit: 50, PermanentFileLimit: 10, FileLifetimeDays: 14},
	{RoleName: "lv3User", Level: 3, FileLimit: 10, PermanentFileLimit: 1, FileLifetimeDays: 7},
}

// fileUserPerms are granted to every non-admin seeded role.
var fileUserPerms = []string{
	models.PermFileUpload,
	models.PermFileRead,
	models.PermFileDelete,
	models.PermFileShare,
	models.PermFilePermanent,
}

// SeedAccessControl inserts the permission catalogue and the default role
// ladder when missing. It is idempotent and safe to run on every boot.
func SeedAccessControl(db *gorm.DB) {
	for i := range seedPermissions {
		p := seedPermissions[i]
		if err := db.Where("code = ?", p.Code).FirstOrCreate(&p).Error; err != nil {
			log.Printf("seed permission %s failed: %v", p.Code, err)
		}
	}

	var allPerms []models.Permission
	if err := db.Find(&allPerms).Error; err != nil {
		log.Printf("seed: loading permissions failed: %v", err)
		return
	}
	permsByCode := make(map[string]models.Permission, len(allPerms))
	for _, p := range allPerms {
		permsByCode[p.Code] = p
	}

	for i := range seedRoles {
		role := seedRoles[i]
		var existing models.Role
		err := db.Where("role_name = ?", role.RoleName).First(&existing).Error
		if err == nil {
			continue
		}
		if err := db.Create(&role).Error; err != nil {
			log.Printf("seed role %s failed: %v", role.RoleName, err)
			continue
		}

		var grant []models.Permission
		if role.Level == 0 {
			grant = allPerms
		} else {
			for _, code := range fileUserPerms {
				if p, ok := permsByCode[code]; ok {
					grant = append(grant, p)
				}
			}
		}
		if err := db.Model(&role).Association("Permissions").Append(grant); err != nil {
			log.Printf("seed role %s permissions failed: %v", role.RoleName, err)
		}
	}
}
