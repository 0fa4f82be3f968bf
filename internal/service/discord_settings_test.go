package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/paneldot/internal/domain/model"
)

func TestDiscordSettings_FetchCreatesEmpty(t *testing.T) {
	store := newTestStore(t)
	svc := NewDiscordSettingsService(store.DiscordSettings, &recordingAudit{}, testLogger())
	viewer := actor(model.RoleStaff, false, "ent-1")

	ds, err := svc.Fetch(context.Background(), viewer, "")
	require.NoError(t, err)
	assert.Equal(t, "ent-1", ds.EnterpriseID)
	assert.Empty(t, ds.MainGuildID)
	assert.Empty(t, ds.DotGuildDotRoleID)

	again, err := svc.Fetch(context.Background(), viewer, "")
	require.NoError(t, err)
	assert.Equal(t, ds.ID, again.ID)
}

func TestDiscordSettings_UpdateMerges(t *testing.T) {
	store := newTestStore(t)
	audit := &recordingAudit{}
	svc := NewDiscordSettingsService(store.DiscordSettings, audit, testLogger())
	editor := actor(model.RoleSuperStaff, false, "ent-1")
	ctx := context.Background()

	_, err := svc.Update(ctx, editor, "", DiscordSettingsUpdate{
		MainGuildID:         ptr("123456789012345678"),
		DotGuildStaffRoleID: ptr("42"),
	})
	require.NoError(t, err)

	ds, err := svc.Update(ctx, editor, "", DiscordSettingsUpdate{DotGuildStaffRoleID: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678", ds.MainGuildID)
	assert.Empty(t, ds.DotGuildStaffRoleID)

	stored, err := svc.Fetch(ctx, editor, "")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678", stored.MainGuildID)
	assert.Equal(t, "ent-1", stored.EnterpriseID)

	assert.Equal(t, []string{model.ActionUpdateDiscordSettings, model.ActionUpdateDiscordSettings}, audit.types())
	assert.Equal(t, "discord_settings", audit.entries[0].TargetTable)
}

func TestDiscordSettings_UpdateForbidden(t *testing.T) {
	store := newTestStore(t)
	audit := &recordingAudit{}
	svc := NewDiscordSettingsService(store.DiscordSettings, audit, testLogger())

	_, err := svc.Update(context.Background(), actor(model.RolePatron, false, "ent-1"), "", DiscordSettingsUpdate{MainGuildID: ptr("1")})
	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, audit.types())
}

func TestDiscordSettings_UpdateKeepsOpaqueIDs(t *testing.T) {
	store := newTestStore(t)
	svc := NewDiscordSettingsService(store.DiscordSettings, &recordingAudit{}, testLogger())
	editor := actor(model.RoleSuperStaff, false, "ent-1")
	ctx := context.Background()

	ds, err := svc.Update(ctx, editor, "", DiscordSettingsUpdate{
		MainGuildID:          ptr("  guild-main-A "),
		MainGuildStaffRoleID: ptr("role:staff/1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "guild-main-A", ds.MainGuildID)

	stored, err := svc.Fetch(ctx, editor, "")
	require.NoError(t, err)
	assert.Equal(t, "guild-main-A", stored.MainGuildID)
	assert.Equal(t, "role:staff/1", stored.MainGuildStaffRoleID)
}
