package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tphummel/dcims/internal/models"
)

const dashboardColumns = `id, name, description, owner_id, visibility, status, layout, settings, version, created_at, updated_at`

const widgetColumns = `id, dashboard_id, widget_type, title, position_x, position_y, width, height,
	config, data_source, filters, created_at, updated_at`

// CreateDashboard inserts d and its widgets in one transaction. Every widget
// is assigned a fresh ID; a new dashboard owns no existing widgets.
func (d *DB) CreateDashboard(ctx context.Context, dash *models.Dashboard) error {
	if dash.Version == 0 {
		dash.Version = 1
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, d.rebind(`
			INSERT INTO dashboards (`+dashboardColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			dash.ID, dash.Name, dash.Description, dash.OwnerID, dash.Visibility, dash.Status,
			string(jsonOr(dash.Layout, "[]")), string(jsonOr(dash.Settings, "{}")), dash.Version,
			formatTime(dash.CreatedAt), formatTime(dash.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert dashboard: %w", err)
		}
		for i, w := range dash.Widgets {
			w.ID = uuid.New().String()
			w.DashboardID = dash.ID
			w.CreatedAt = dash.CreatedAt
			w.UpdatedAt = dash.UpdatedAt
			if err := d.insertWidget(ctx, tx, w, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDashboard returns the dashboard with its widgets in layout order, or
// sql.ErrNoRows if not found.
func (d *DB) GetDashboard(ctx context.Context, id string) (*models.Dashboard, error) {
	row := d.conn.QueryRowContext(ctx, d.rebind(`SELECT `+dashboardColumns+` FROM dashboards WHERE id = ?`), id)
	dash, err := scanDashboard(row)
	if err != nil {
		return nil, err
	}
	widgets, err := d.listWidgets(ctx, d.conn, id)
	if err != nil {
		return nil, err
	}
	dash.Widgets = widgets
	return dash, nil
}

// ListDashboards returns the dashboards visible to userID: its own plus every
// public one. An empty userID lists public dashboards only. Widgets are not
// loaded.
func (d *DB) ListDashboards(ctx context.Context, userID string) ([]*models.Dashboard, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if userID != "" {
		rows, err = d.conn.QueryContext(ctx, d.rebind(`
			SELECT `+dashboardColumns+` FROM dashboards
			WHERE visibility = ? OR owner_id = ?
			ORDER BY updated_at DESC, id`), models.VisibilityPublic, userID)
	} else {
		rows, err = d.conn.QueryContext(ctx, d.rebind(`
			SELECT `+dashboardColumns+` FROM dashboards
			WHERE visibility = ?
			ORDER BY updated_at DESC, id`), models.VisibilityPublic)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dashboards []*models.Dashboard
	for rows.Next() {
		dash, err := scanDashboard(rows)
		if err != nil {
			return nil, err
		}
		dashboards = append(dashboards, dash)
	}
	return dashboards, rows.Err()
}

// UpdateDashboard writes the dashboard fields and reconciles its widgets:
// widgets whose ID already belongs to the dashboard are updated, others are
// inserted with a fresh ID, and widgets missing from dash.Widgets are deleted.
//
// When expectedVersion is non-nil it must equal the stored version or
// ErrConflict is returned and nothing is written. On success dash.Version
// holds the new version. Returns sql.ErrNoRows if the dashboard is missing.
func (d *DB) UpdateDashboard(ctx context.Context, dash *models.Dashboard, expectedVersion *int) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		var current int
		var createdAt string
		err := tx.QueryRowContext(ctx, d.rebind(`SELECT version, created_at FROM dashboards WHERE id = ?`), dash.ID).
			Scan(&current, &createdAt)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != current {
			return fmt.Errorf("%w: dashboard %s is at version %d, not %d", ErrConflict, dash.ID, current, *expectedVersion)
		}

		res, err := tx.ExecContext(ctx, d.rebind(`
			UPDATE dashboards
			SET name=?, description=?, visibility=?, status=?, layout=?, settings=?, version=?, updated_at=?
			WHERE id=? AND version=?`),
			dash.Name, dash.Description, dash.Visibility, dash.Status,
			string(jsonOr(dash.Layout, "[]")), string(jsonOr(dash.Settings, "{}")),
			current+1, formatTime(dash.UpdatedAt),
			dash.ID, current,
		)
		if err != nil {
			return fmt.Errorf("update dashboard: %w", err)
		}
		if err := rowsAffected(res); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: dashboard %s changed during update", ErrConflict, dash.ID)
			}
			return err
		}

		existing, err := d.listWidgets(ctx, tx, dash.ID)
		if err != nil {
			return err
		}
		stale := make(map[string]*models.Widget, len(existing))
		for _, w := range existing {
			stale[w.ID] = w
		}

		for i, w := range dash.Widgets {
			w.DashboardID = dash.ID
			w.UpdatedAt = dash.UpdatedAt
			if prev, ok := stale[w.ID]; ok {
				delete(stale, w.ID)
				w.CreatedAt = prev.CreatedAt
				if err := d.updateWidget(ctx, tx, w, i); err != nil {
					return err
				}
				continue
			}
			w.ID = uuid.New().String()
			w.CreatedAt = dash.UpdatedAt
			if err := d.insertWidget(ctx, tx, w, i); err != nil {
				return err
			}
		}
		for id := range stale {
			if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM dashboard_widgets WHERE id = ?`), id); err != nil {
				return fmt.Errorf("delete widget %s: %w", id, err)
			}
		}

		dash.Version = current + 1
		if dash.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		return nil
	})
}

// DeleteDashboard removes the dashboard; its widgets cascade.
// Returns sql.ErrNoRows if no such dashboard exists.
func (d *DB) DeleteDashboard(ctx context.Context, id string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		// Explicit delete keeps the cascade for connections where foreign keys are off.
		if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM dashboard_widgets WHERE dashboard_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM dashboards WHERE id = ?`), id)
		if err != nil {
			return err
		}
		return rowsAffected(res)
	})
}

// CountDashboards returns the number of dashboards per visibility.
func (d *DB) CountDashboards(ctx context.Context) (map[string]int, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT visibility, COUNT(*) FROM dashboards GROUP BY visibility`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var visibility string
		var n int
		if err := rows.Scan(&visibility, &n); err != nil {
			return nil, err
		}
		counts[visibility] = n
	}
	return counts, rows.Err()
}

func (d *DB) insertWidget(ctx context.Context, q queryer, w *models.Widget, order int) error {
	config, dataSource, err := encodeWidget(w)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, d.rebind(`
		INSERT INTO dashboard_widgets (`+widgetColumns+`, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		w.ID, w.DashboardID, w.Type, w.Title, w.Position.X, w.Position.Y, w.Size.Width, w.Size.Height,
		config, dataSource, string(jsonOr(w.Filters, "[]")),
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt), order,
	)
	if err != nil {
		return fmt.Errorf("insert widget: %w", err)
	}
	return nil
}

func (d *DB) updateWidget(ctx context.Context, q queryer, w *models.Widget, order int) error {
	config, dataSource, err := encodeWidget(w)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, d.rebind(`
		UPDATE dashboard_widgets
		SET widget_type=?, title=?, position_x=?, position_y=?, width=?, height=?,
			config=?, data_source=?, filters=?, sort_order=?, updated_at=?
		WHERE id=? AND dashboard_id=?`),
		w.Type, w.Title, w.Position.X, w.Position.Y, w.Size.Width, w.Size.Height,
		config, dataSource, string(jsonOr(w.Filters, "[]")), order, formatTime(w.UpdatedAt),
		w.ID, w.DashboardID,
	)
	if err != nil {
		return fmt.Errorf("update widget %s: %w", w.ID, err)
	}
	return nil
}

func (d *DB) listWidgets(ctx context.Context, q queryer, dashboardID string) ([]*models.Widget, error) {
	rows, err := q.QueryContext(ctx, d.rebind(`
		SELECT `+widgetColumns+` FROM dashboard_widgets
		WHERE dashboard_id = ?
		ORDER BY sort_order, created_at, id`), dashboardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var widgets []*models.Widget
	for rows.Next() {
		w, err := scanWidget(rows)
		if err != nil {
			return nil, err
		}
		widgets = append(widgets, w)
	}
	return widgets, rows.Err()
}

func encodeWidget(w *models.Widget) (config, dataSource string, err error) {
	c, err := json.Marshal(w.Config)
	if err != nil {
		return "", "", fmt.Errorf("encode widget config: %w", err)
	}
	ds, err := json.Marshal(w.DataSource)
	if err != nil {
		return "", "", fmt.Errorf("encode widget data source: %w", err)
	}
	return string(c), string(ds), nil
}

func scanDashboard(sc scanner) (*models.Dashboard, error) {
	var dash models.Dashboard
	var layout, settings, createdAt, updatedAt string
	if err := sc.Scan(
		&dash.ID, &dash.Name, &dash.Description, &dash.OwnerID, &dash.Visibility, &dash.Status,
		&layout, &settings, &dash.Version, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	dash.Layout = json.RawMessage(layout)
	dash.Settings = json.RawMessage(settings)

	var err error
	if dash.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if dash.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &dash, nil
}

func scanWidget(sc scanner) (*models.Widget, error) {
	var w models.Widget
	var config, dataSource, filters, createdAt, updatedAt string
	if err := sc.Scan(
		&w.ID, &w.DashboardID, &w.Type, &w.Title, &w.Position.X, &w.Position.Y,
		&w.Size.Width, &w.Size.Height, &config, &dataSource, &filters, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(config), &w.Config); err != nil {
		return nil, fmt.Errorf("decode widget %s config: %w", w.ID, err)
	}
	if err := json.Unmarshal([]byte(dataSource), &w.DataSource); err != nil {
		return nil, fmt.Errorf("decode widget %s data source: %w", w.ID, err)
	}
	w.Filters = json.RawMessage(filters)

	var err error
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func jsonOr(raw json.RawMessage, fallback string) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(fallback)
	}
	return raw
}
