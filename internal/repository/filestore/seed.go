package filestore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/paneldot/internal/domain/model"
)

// seedActionLogs возвращает демонстрационный журнал для нового локального хранилища.
func seedActionLogs(now time.Time) []*model.ActionLog {
	str := func(s string) *string { return &s }
	raw := func(s string) json.RawMessage { return json.RawMessage(s) }

	const (
		uaWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
		uaMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
		uaIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15"
	)

	return []*model.ActionLog{
		{
			ID:                uuid.NewString(),
			EnterpriseID:      "default",
			ActionType:        model.ActionUpdateParametrage,
			ActionDescription: "Mise à jour des paramètres de taxation",
			TargetTable:       str("parametrage"),
			TargetID:          str("1"),
			OldData:           raw(`{"salary_max_employee":100000}`),
			NewData:           raw(`{"salary_max_employee":150000}`),
			IPAddress:         str("192.168.1.1"),
			UserAgent:         str(uaWindows),
			CreatedAt:         now.Add(-24 * time.Hour),
		},
		{
			ID:                uuid.NewString(),
			EnterpriseID:      "default",
			ActionType:        model.ActionUpdateDiscordSettings,
			ActionDescription: "Modification des paramètres Discord",
			TargetTable:       str("discord_settings"),
			TargetID:          str("1"),
			OldData:           raw(`{"main_guild_id":"123456789012345677"}`),
			NewData:           raw(`{"main_guild_id":"123456789012345678"}`),
			IPAddress:         str("192.168.1.2"),
			UserAgent:         str(uaMac),
			CreatedAt:         now.Add(-time.Hour),
		},
		{
			ID:                uuid.NewString(),
			EnterpriseID:      "default",
			ActionType:        model.ActionCreateVersion,
			ActionDescription: "Création d'une nouvelle version v2.0",
			TargetTable:       str("parametrage"),
			TargetID:          str("2"),
			NewData:           raw(`{"active_version":"v2.0"}`),
			IPAddress:         str("192.168.1.1"),
			UserAgent:         str(uaWindows),
			CreatedAt:         now.Add(-30 * time.Minute),
		},
		{
			ID:                uuid.NewString(),
			EnterpriseID:      "default",
			ActionType:        model.ActionUserLogin,
			ActionDescription: "Connexion utilisateur",
			TargetTable:       str("users"),
			TargetID:          str("3"),
			NewData:           raw(`{"last_login":"` + now.UTC().Format(time.RFC3339) + `"}`),
			IPAddress:         str("192.168.1.3"),
			UserAgent:         str(uaIPhone),
			CreatedAt:         now.Add(-10 * time.Minute),
		},
	}
}
