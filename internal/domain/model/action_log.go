package model

import (
	"encoding/json"
	"time"
)

// Типы действий журнала аудита.
const (
	ActionUserLogin             = "USER_LOGIN"
	ActionUserFirstLogin        = "USER_FIRST_LOGIN"
	ActionUpdateParametrage     = "UPDATE_PARAMETRAGE"
	ActionUpdateDiscordSettings = "UPDATE_DISCORD_SETTINGS"
	ActionCreateVersion         = "CREATE_VERSION"
)

// ActionLog: запись журнала аудита. Только добавляется, никогда не изменяется.
type ActionLog struct {
	ID                string          `json:"id"`
	UserID            *string         `json:"user_id,omitempty"`
	EnterpriseID      string          `json:"enterprise_id"`
	ActionType        string          `json:"action_type"`
	ActionDescription string          `json:"action_description"`
	TargetTable       *string         `json:"target_table,omitempty"`
	TargetID          *string         `json:"target_id,omitempty"`
	OldData           json.RawMessage `json:"old_data,omitempty"`
	NewData           json.RawMessage `json:"new_data,omitempty"`
	IPAddress         *string         `json:"ip_address,omitempty"`
	UserAgent         *string         `json:"user_agent,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`

	// Actor: автор действия (join с users при отображении)
	Actor *ActionActor `json:"users,omitempty"`
}

// ActionActor: краткие данные пользователя для отображения в журнале.
type ActionActor struct {
	Username  string `json:"username"`
	DiscordID string `json:"discord_id"`
	Role      Role   `json:"role"`
}

// ActionEntry: параметры новой записи журнала (аргументы log_action).
type ActionEntry struct {
	UserID       string
	EnterpriseID string
	ActionType   string
	Description  string
	TargetTable  string
	TargetID     string
	OldData      any
	NewData      any
	IPAddress    string
	UserAgent    string
}
