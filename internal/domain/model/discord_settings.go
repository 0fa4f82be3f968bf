package model

import "time"

// DiscordSettings: идентификаторы серверов и ролей Discord предприятия.
// Все идентификаторы необязательны, пустая строка означает «не задано».
type DiscordSettings struct {
	ID           string `json:"id"`
	EnterpriseID string `json:"enterprise_id"`

	MainGuildID               string `json:"main_guild_id"`
	MainGuildStaffRoleID      string `json:"main_guild_staff_role_id"`
	MainGuildPatronRoleID     string `json:"main_guild_patron_role_id"`
	MainGuildCoPatronRoleID   string `json:"main_guild_co_patron_role_id"`
	MainGuildEnterpriseRoleID string `json:"main_guild_enterprise_role_id"`
	DotGuildID                string `json:"dot_guild_id"`
	DotGuildStaffRoleID       string `json:"dot_guild_staff_role_id"`
	DotGuildDotRoleID         string `json:"dot_guild_dot_role_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
