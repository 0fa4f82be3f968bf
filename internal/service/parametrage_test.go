package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/paneldot/internal/domain/model"
	"github.com/bigkaa/paneldot/internal/domain/tax"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

func newParametrageService(t *testing.T) (*ParametrageService, *recordingAudit) {
	t.Helper()
	audit := &recordingAudit{}
	store := newTestStore(t)
	return NewParametrageService(store.Parametrage, audit, testLogger()), audit
}

func testBrackets() []model.TaxBracket {
	return []model.TaxBracket{
		{MinInclusive: dec("0"), MaxInclusive: dec("999999"), TaxRatePercent: dec("5"),
			SalaryMaxEmployee: dec("5000"), SalaryMaxBoss: dec("8000"), BonusMaxEmployee: dec("1000"), BonusMaxBoss: dec("2000")},
		{MinInclusive: dec("1000000"), MaxInclusive: dec("4999999"), TaxRatePercent: dec("10"),
			SalaryMaxEmployee: dec("10000"), SalaryMaxBoss: dec("15000"), BonusMaxEmployee: dec("3000"), BonusMaxBoss: dec("5000")},
	}
}

func TestParametrageFetch_CreatesDefaultOnce(t *testing.T) {
	svc, _ := newParametrageService(t)
	staff := actor(model.RoleStaff, false, "ent-1")
	ctx := context.Background()

	first, err := svc.Fetch(ctx, staff, "")
	require.NoError(t, err)
	second, err := svc.Fetch(ctx, staff, "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "ent-1", first.EnterpriseID)
	assert.Equal(t, "v1", first.ActiveVersion)
	assert.True(t, first.SalaryMaxEmployee.Equal(dec("100000")))
	assert.True(t, first.BonusMaxEmployee.Equal(dec("50000")))
	assert.True(t, first.SalaryMaxBoss.Equal(dec("200000")))
	assert.True(t, first.BonusMaxBoss.Equal(dec("100000")))
	assert.Empty(t, first.TaxBrackets)
	assert.True(t, first.CloseDatetime.After(first.OpenDatetime))

	versions, err := svc.ListVersions(ctx, staff, "")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestParametrageFetch_NoTenant(t *testing.T) {
	svc, _ := newParametrageService(t)

	p, err := svc.Fetch(context.Background(), AuthState{}, "")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestParametrageFetch_ForeignTenant(t *testing.T) {
	svc, _ := newParametrageService(t)
	ctx := context.Background()

	_, err := svc.Fetch(ctx, actor(model.RolePatron, false, "ent-1"), "ent-2")
	require.ErrorIs(t, err, ErrForbidden)

	p, err := svc.Fetch(ctx, actor(model.RoleStaff, true, "ent-1"), "ent-2")
	require.NoError(t, err)
	assert.Equal(t, "ent-2", p.EnterpriseID)
}

func TestParametrageUpdate_PreservesIdentity(t *testing.T) {
	svc, audit := newParametrageService(t)
	editor := actor(model.RoleSuperStaff, false, "ent-1")
	ctx := context.Background()

	before, err := svc.Fetch(ctx, editor, "")
	require.NoError(t, err)

	brackets := testBrackets()
	updated, warnings, err := svc.Update(ctx, editor, "", ParametrageUpdate{
		SalaryMaxEmployee: ptr(dec("150000")),
		TaxBrackets:       &brackets,
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, before.ID, updated.ID)
	assert.Equal(t, "ent-1", updated.EnterpriseID)
	assert.Equal(t, before.ActiveVersion, updated.ActiveVersion)
	assert.True(t, updated.SalaryMaxEmployee.Equal(dec("150000")))
	assert.True(t, updated.BonusMaxEmployee.Equal(before.BonusMaxEmployee))
	assert.Len(t, updated.TaxBrackets, 2)

	stored, err := svc.Fetch(ctx, editor, "")
	require.NoError(t, err)
	assert.Equal(t, before.ID, stored.ID)
	assert.True(t, stored.SalaryMaxEmployee.Equal(dec("150000")))
	assert.Len(t, stored.TaxBrackets, 2)

	require.Equal(t, []string{model.ActionUpdateParametrage}, audit.types())
	entry := audit.entries[0]
	assert.Equal(t, editor.UserID(), entry.UserID)
	assert.Equal(t, "ent-1", entry.EnterpriseID)
	assert.Equal(t, before.ID, entry.TargetID)
	assert.NotNil(t, entry.OldData)
	assert.NotNil(t, entry.NewData)
}

func TestParametrageUpdate_ReadOnlyRoles(t *testing.T) {
	for _, role := range []model.Role{model.RoleStaff, model.RoleDot, model.RoleCoPatron, model.RolePatron} {
		t.Run(string(role), func(t *testing.T) {
			svc, audit := newParametrageService(t)
			ctx := context.Background()
			viewer := actor(role, false, "ent-1")

			_, _, err := svc.Update(ctx, viewer, "", ParametrageUpdate{SalaryMaxEmployee: ptr(dec("1"))})
			require.ErrorIs(t, err, ErrForbidden)

			_, err = svc.CreateVersion(ctx, viewer, "", "")
			require.ErrorIs(t, err, ErrForbidden)

			versions, err := svc.ListVersions(ctx, viewer, "")
			require.NoError(t, err)
			assert.Empty(t, versions)
			assert.Empty(t, audit.types())
		})
	}
}

func TestParametrageUpdate_Validation(t *testing.T) {
	editor := actor(model.RoleStaff, true, "ent-1")

	overlapping := []model.TaxBracket{
		{MinInclusive: dec("0"), MaxInclusive: dec("3500000"), TaxRatePercent: dec("5")},
		{MinInclusive: dec("3500000"), MaxInclusive: dec("5000000"), TaxRatePercent: dec("7")},
	}
	gapped := []model.WealthTaxBracket{
		{MinInclusive: dec("0"), MaxInclusive: dec("1000"), RatePercent: dec("1")},
		{MinInclusive: dec("5000"), MaxInclusive: dec("9000"), RatePercent: dec("2")},
	}

	tests := []struct {
		name    string
		upd     ParametrageUpdate
		wantErr bool
		warns   bool
	}{
		{"overlap", ParametrageUpdate{TaxBrackets: &overlapping}, true, false},
		{"negative ceiling", ParametrageUpdate{BonusMaxBoss: ptr(dec("-1"))}, true, false},
		{"blank version", ParametrageUpdate{ActiveVersion: ptr("  ")}, true, false},
		{"gap is a warning", ParametrageUpdate{WealthTaxBrackets: &gapped}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, audit := newParametrageService(t)
			_, warnings, err := svc.Update(context.Background(), editor, "", tt.upd)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
				assert.Empty(t, audit.types())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.warns, len(warnings) > 0)
		})
	}
}

func TestParametrageUpdate_ValidationProblemsReachable(t *testing.T) {
	svc, _ := newParametrageService(t)
	bad := []model.TaxBracket{{MinInclusive: dec("10"), MaxInclusive: dec("1"), TaxRatePercent: dec("150")}}

	_, _, err := svc.Update(context.Background(), actor(model.RoleSuperStaff, false, "ent-1"), "", ParametrageUpdate{TaxBrackets: &bad})
	var verr *tax.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Problems), 2)
}

func TestParametrageCreateVersion(t *testing.T) {
	svc, audit := newParametrageService(t)
	editor := actor(model.RoleSuperStaff, false, "ent-1")
	ctx := context.Background()

	brackets := testBrackets()
	base, _, err := svc.Update(ctx, editor, "", ParametrageUpdate{
		BonusMaxBoss: ptr(dec("123456.78")),
		TaxBrackets:  &brackets,
	})
	require.NoError(t, err)

	next, err := svc.CreateVersion(ctx, editor, "", "")
	require.NoError(t, err)

	assert.NotEqual(t, base.ID, next.ID)
	assert.Equal(t, "v2", next.ActiveVersion)
	assert.Equal(t, base.EnterpriseID, next.EnterpriseID)
	assert.True(t, next.BonusMaxBoss.Equal(base.BonusMaxBoss))
	assert.Equal(t, base.OpenDatetime.Unix(), next.OpenDatetime.Unix())
	require.Len(t, next.TaxBrackets, len(base.TaxBrackets))
	for i := range base.TaxBrackets {
		assert.True(t, next.TaxBrackets[i].TaxRatePercent.Equal(base.TaxBrackets[i].TaxRatePercent))
	}

	current, err := svc.Fetch(ctx, editor, "")
	require.NoError(t, err)
	assert.Equal(t, next.ID, current.ID)

	versions, err := svc.ListVersions(ctx, editor, "")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v2", versions[0].ActiveVersion)
	assert.Equal(t, "v1", versions[1].ActiveVersion)
	assert.True(t, versions[1].BonusMaxBoss.Equal(dec("123456.78")))

	named, err := svc.CreateVersion(ctx, editor, "", "2025-T1")
	require.NoError(t, err)
	assert.Equal(t, "2025-T1", named.ActiveVersion)

	_, err = svc.CreateVersion(ctx, editor, "", "v2")
	require.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, []string{
		model.ActionUpdateParametrage,
		model.ActionCreateVersion,
		model.ActionCreateVersion,
	}, audit.types())
}

func TestParametragePreviewTax(t *testing.T) {
	svc, _ := newParametrageService(t)
	editor := actor(model.RoleSuperStaff, false, "ent-1")
	ctx := context.Background()

	brackets := testBrackets()
	wealth := []model.WealthTaxBracket{{MinInclusive: dec("0"), MaxInclusive: dec("10000000"), RatePercent: dec("2")}}
	_, _, err := svc.Update(ctx, editor, "", ParametrageUpdate{TaxBrackets: &brackets, WealthTaxBrackets: &wealth})
	require.NoError(t, err)

	pv, err := svc.PreviewTax(ctx, editor, "", dec("2000000"), dec("500000"))
	require.NoError(t, err)
	assert.True(t, pv.TaxRatePercent.Equal(dec("10")))
	assert.True(t, pv.TaxAmount.Equal(dec("200000")))
	assert.True(t, pv.WealthTaxAmount.Equal(dec("10000")))
	assert.True(t, pv.Total.Equal(dec("210000")))

	_, err = svc.PreviewTax(ctx, editor, "", dec("-1"), dec("0"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestNextVersionLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"v1", "v2"},
		{"v9", "v10"},
		{"v2.0", "v3"},
		{"2025-3", "2025-4"},
		{"release", "release-2"},
		{"", "v1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NextVersionLabel(tt.in))
		})
	}
}
