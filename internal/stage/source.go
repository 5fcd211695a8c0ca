package stage

import (
	"context"

	"oea/internal/catalog"
	"oea/internal/config"
	"oea/internal/services"
	"oea/internal/staging"
)

// NewSource returns the catalog source selected by cfg: pre-dumped files
// fetched through the stager, or the dump utility run against the stores.
func NewSource(ctx context.Context, cfg *config.Config, stager staging.Stager) (catalog.Source, error) {
	if cfg.Catalog.LengthsPath == "" {
		return catalog.NewCommandSource(cfg.Catalog.DumpBinary, cfg.Paths.SeqStoreDir, cfg.Paths.StoreDir), nil
	}
	for _, path := range []string{cfg.Catalog.LengthsPath, cfg.Catalog.OverlapsPath} {
		if err := stager.Fetch(ctx, path); err != nil {
			return nil, services.Wrap(services.ErrDataUnavailable, "catalog", "fetch", path, err)
		}
	}
	return catalog.FileSource{
		LengthsPath:  cfg.Catalog.LengthsPath,
		OverlapsPath: cfg.Catalog.OverlapsPath,
	}, nil
}
