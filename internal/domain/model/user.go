// Пакет model содержит доменные модели Panel DOT.
package model

import "time"

// Role определяет роль пользователя внутри предприятия.
type Role string

// Роли пользователей. SUPERSTAFF имеет наивысшие привилегии.
const (
	RolePatron     Role = "PATRON"
	RoleCoPatron   Role = "CO-PATRON"
	RoleStaff      Role = "STAFF"
	RoleDot        Role = "DOT"
	RoleSuperStaff Role = "SUPERSTAFF"
)

// User: пользователь панели, автоматически создаётся при первом входе через Discord.
// Хранится в таблице users.
type User struct {
	// ID: UUID записи
	ID string `json:"id"`
	// DiscordID: идентификатор пользователя Discord (уникален)
	DiscordID string `json:"discord_id"`
	// Username: отображаемое имя
	Username string `json:"username"`
	Role     Role   `json:"role"`
	// EnterpriseID: предприятие (тенант) пользователя
	EnterpriseID string    `json:"enterprise_id"`
	IsSuperAdmin bool      `json:"is_superadmin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
