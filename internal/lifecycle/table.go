package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/athenakit/athenakit/internal/storage"
)

// CreateTableFromQuery materializes query as <database>.<name> under the
// configured output location. With overwrite, the existing table is dropped
// and its data deleted first; a failed drop leaves the data untouched.
func (c *Controller) CreateTableFromQuery(ctx context.Context, query, name string, overwrite bool) (TableRef, error) {
	c = c.withDefaults()
	if err := storage.ValidateTableName(name); err != nil {
		return TableRef{}, err
	}
	if c.Config.Database == "" {
		return TableRef{}, fmt.Errorf("database is required to create table %q", name)
	}
	ref := TableRef{Name: c.Config.Database + "." + name}
	ref.Location = c.Config.OutputLocation.Resolve(ref.Name)

	if overwrite {
		if c.Logger != nil {
			c.Logger.InfoContext(ctx, "overwriting table", slog.String("table", ref.Name), slog.String("location", ref.Location.String()))
		}
		if _, err := c.execute(ctx, "DROP TABLE IF EXISTS "+ref.Name); err != nil {
			return TableRef{}, fmt.Errorf("drop table %s: %w", ref.Name, err)
		}
		if c.Store == nil {
			return TableRef{}, fmt.Errorf("object store is required to overwrite table %s", ref.Name)
		}
		if err := c.Store.Delete(ctx, ref.Location); err != nil {
			return TableRef{}, fmt.Errorf("delete table data %s: %w", ref.Location.String(), err)
		}
	}

	statement := fmt.Sprintf("CREATE TABLE %s WITH (format = '%s', external_location = '%s') AS %s",
		ref.Name, c.Config.Format, ref.Location.String(), query)
	report, err := c.execute(ctx, statement)
	if err != nil {
		return TableRef{}, err
	}

	if c.Logger != nil {
		c.Logger.InfoContext(ctx, "table created",
			slog.String("execution_id", report.ID),
			slog.String("table", ref.Name),
			slog.String("location", ref.Location.String()),
			slog.String("engine_time", report.Statistics.EngineExecutionTime.String()),
			slog.String("total_time", report.Statistics.TotalExecutionTime.String()),
			slog.Int64("data_scanned_bytes", report.Statistics.DataScannedBytes),
		)
	}
	return ref, nil
}
