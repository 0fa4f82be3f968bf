// Пакет rbac определяет производные права пользователя по его роли
// и флагу superadmin.
// Правила: редактировать параметры может только SUPERSTAFF или superadmin,
// журнал аудита доступен только superadmin независимо от роли.
package rbac

import "github.com/bigkaa/paneldot/internal/domain/model"

// roleWeight: вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[model.Role]int{
	model.RoleStaff:      1,
	model.RoleDot:        2,
	model.RoleCoPatron:   3,
	model.RolePatron:     4,
	model.RoleSuperStaff: 5,
}

// LowestRole: роль, назначаемая автоматически созданным пользователям.
const LowestRole = model.RoleStaff

// HighestRole: роль с правом редактирования параметров.
const HighestRole = model.RoleSuperStaff

// AllRoles возвращает все допустимые роли в порядке возрастания привилегий.
func AllRoles() []model.Role {
	return []model.Role{
		model.RoleStaff,
		model.RoleDot,
		model.RoleCoPatron,
		model.RolePatron,
		model.RoleSuperStaff,
	}
}

// CanEdit возвращает true, если роль наивысшая или установлен флаг superadmin.
func CanEdit(role model.Role, isSuperAdmin bool) bool {
	return role == HighestRole || isSuperAdmin
}

// CanViewLogs возвращает true только для superadmin.
func CanViewLogs(isSuperAdmin bool) bool {
	return isSuperAdmin
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[model.Role(role)]
	return ok
}

// Higher возвращает true, если роль a имеет больше привилегий, чем b.
func Higher(a, b model.Role) bool {
	return roleWeight[a] > roleWeight[b]
}
