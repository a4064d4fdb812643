package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/notify"
	"signflow.dev/internal/tenant"
)

// Settings implements tenant.SettingsStore. It also satisfies
// notify.SettingsLookup so internal/notify can resolve a tenant's
// WhatsApp/email provider credentials without importing internal/tenant.
type Settings struct {
	DB *sql.DB
}

const settingsSelect = `
	select tenant_id, app_name, primary_color, coalesce(logo_url,''),
		coalesce(zapi_instance_id,''), coalesce(zapi_token,''), coalesce(zapi_client_token,''), zapi_active,
		coalesce(resend_api_key,''), resend_active, coalesce(final_email_template,'')
	from tenant_settings`

func scanSettings(row *sql.Row) (*tenant.Settings, error) {
	var s tenant.Settings
	err := row.Scan(&s.TenantID, &s.AppName, &s.PrimaryColor, &s.LogoURL,
		&s.ZapiInstanceID, &s.ZapiToken, &s.ZapiClientToken, &s.ZapiActive,
		&s.ResendAPIKey, &s.ResendActive, &s.FinalEmailTemplate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tenant settings", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (Settings) Find(ctx context.Context, q dbx.Querier, tenantID string) (*tenant.Settings, error) {
	return scanSettings(q.QueryRowContext(ctx, settingsSelect+` where tenant_id = $1`, tenantID))
}

func (Settings) Upsert(ctx context.Context, q dbx.Querier, s *tenant.Settings) error {
	_, err := q.ExecContext(ctx, `
		insert into tenant_settings (tenant_id, app_name, primary_color, logo_url,
			zapi_instance_id, zapi_token, zapi_client_token, zapi_active,
			resend_api_key, resend_active, final_email_template, updated_at)
		values ($1,$2,$3,nullif($4,''),nullif($5,''),nullif($6,''),nullif($7,''),$8,nullif($9,''),$10,nullif($11,''),now())
		on conflict (tenant_id) do update set
			app_name = excluded.app_name, primary_color = excluded.primary_color, logo_url = excluded.logo_url,
			zapi_instance_id = excluded.zapi_instance_id, zapi_token = excluded.zapi_token,
			zapi_client_token = excluded.zapi_client_token, zapi_active = excluded.zapi_active,
			resend_api_key = excluded.resend_api_key, resend_active = excluded.resend_active,
			final_email_template = excluded.final_email_template, updated_at = now()
	`, s.TenantID, s.AppName, s.PrimaryColor, s.LogoURL,
		s.ZapiInstanceID, s.ZapiToken, s.ZapiClientToken, s.ZapiActive,
		s.ResendAPIKey, s.ResendActive, s.FinalEmailTemplate)
	return err
}

// GetSettings satisfies notify.SettingsLookup, used by HTTPNotifier to
// decide between a tenant's own Resend/Z-API credentials and the
// platform's fallback.
func (st Settings) GetSettings(ctx context.Context, tenantID string) (notify.TenantSettings, error) {
	s, err := st.Find(ctx, st.DB, tenantID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return notify.TenantSettings{}, nil
		}
		return notify.TenantSettings{}, err
	}
	return notify.TenantSettings{
		ZapiInstanceID:     s.ZapiInstanceID,
		ZapiToken:          s.ZapiToken,
		ZapiClientToken:    s.ZapiClientToken,
		ZapiActive:         s.ZapiActive,
		ResendAPIKey:       s.ResendAPIKey,
		ResendActive:       s.ResendActive,
		FinalEmailTemplate: s.FinalEmailTemplate,
	}, nil
}
