package sqlite

import (
	"log/slog"

	"github.com/google/wire"

	"github.com/otterscale/resource-adapter/internal/config"
)

// ProviderSet is the Wire provider set for the SQLite stores.
var ProviderSet = wire.NewSet(
	ProvideDB,
	NewResourceRepo,
	NewVersionTracker,
)

// ProvideDB opens the database named by the configuration. The cleanup
// closes it.
func ProvideDB(conf *config.Config) (*DB, func(), error) {
	db, err := Open(conf.DatabasePath())
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			slog.Warn("failed to close database", "error", err)
		}
	}
	return db, cleanup, nil
}
