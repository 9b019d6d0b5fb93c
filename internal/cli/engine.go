package cli

import (
	"log/slog"

	"github.com/dwizi/databridge/internal/config"
	"github.com/dwizi/databridge/internal/csvworkbook"
	"github.com/dwizi/databridge/internal/engine"
	"github.com/dwizi/databridge/internal/exportworker"
	"github.com/dwizi/databridge/internal/memsource"
	"github.com/dwizi/databridge/internal/registry"
)

// buildEngine assembles an Engine around the CLI's reference
// collaborators: an in-memory DataSource and a CSV-per-sheet
// workbook writer. A real deployment supplies its own DataSource and
// WorkbookOpener implementing the contracts in internal/applyengine
// and internal/exportworker; these exist so the CLI runs standalone.
func buildEngine(logger *slog.Logger) (*engine.Engine, config.StorageConfig, error) {
	reg := registry.New(logger)
	source := memsource.New()
	opener := exportworker.WorkbookOpener(func(path string, compatibilityMode bool) (exportworker.WorkbookWriter, error) {
		return csvworkbook.Open(path, compatibilityMode)
	})

	eng := engine.New(reg, source, opener, logger)
	cfg := config.FromEnv()
	if err := eng.Initialize(cfg); err != nil {
		return nil, cfg, err
	}
	return eng, cfg, nil
}
