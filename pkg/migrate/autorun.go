package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	"github.com/angelmondragon/supportdesk-backend/pkg/db"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot in dev when the
// auto-migrate flag is set. SQLite databases are skipped because the SQL
// targets Postgres; dbtest builds those schemas with AutoMigrate instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithField(ctx, "component", "migrate")
	if cfg.DB.IsSQLite() {
		logg.Warn(ctx, "auto-migrate skipped for sqlite")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, "", logg)
	if err != nil {
		return err
	}
	logg.Info(ctx, "auto-migrate starting")
	if err := runner.Up(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "auto-migrate finished")
	return nil
}
