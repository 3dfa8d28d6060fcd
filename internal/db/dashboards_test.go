package db_test

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/tphummel/dcims/internal/db"
	"github.com/tphummel/dcims/internal/models"
)

func sampleDashboard(id, owner string) *models.Dashboard {
	return &models.Dashboard{
		ID:         id,
		Name:       "Capacity",
		OwnerID:    owner,
		Visibility: models.VisibilityPrivate,
		Status:     models.DashboardActive,
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}
}

func sampleWidget(title string) *models.Widget {
	w := &models.Widget{Type: models.WidgetChart, Title: title}
	w.ApplyDefaults()
	return w
}

func TestCreateDashboard_GetDashboard(t *testing.T) {
	d := newTestDB(t)
	dash := sampleDashboard("dash-1", "user-1")
	dash.Widgets = []*models.Widget{sampleWidget("By status"), sampleWidget("By site")}
	dash.Widgets[1].DataSource.GroupBy = models.GroupBy{"dc_site", "status"}

	if err := d.CreateDashboard(ctx, dash); err != nil {
		t.Fatalf("CreateDashboard: %v", err)
	}
	if dash.Version != 1 {
		t.Errorf("Version: got %d, want 1", dash.Version)
	}

	got, err := d.GetDashboard(ctx, "dash-1")
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if got.Name != "Capacity" || got.OwnerID != "user-1" {
		t.Errorf("got name=%q owner=%q", got.Name, got.OwnerID)
	}
	if string(got.Layout) != "[]" || string(got.Settings) != "{}" {
		t.Errorf("layout/settings defaults: got %s %s", got.Layout, got.Settings)
	}
	if len(got.Widgets) != 2 {
		t.Fatalf("expected 2 widgets, got %d", len(got.Widgets))
	}
	if got.Widgets[0].Title != "By status" || got.Widgets[1].Title != "By site" {
		t.Errorf("widget order: got %q, %q", got.Widgets[0].Title, got.Widgets[1].Title)
	}
	if got.Widgets[0].ID == "" {
		t.Error("expected generated widget id")
	}
	if got.Widgets[1].DataSource == nil || len(got.Widgets[1].DataSource.GroupBy) != 2 {
		t.Errorf("data source round trip: got %+v", got.Widgets[1].DataSource)
	}
	if got.Widgets[0].Config == nil || got.Widgets[0].Config.Type != "bar" {
		t.Errorf("config round trip: got %+v", got.Widgets[0].Config)
	}
}

func TestCreateDashboard_ReusedWidgetID(t *testing.T) {
	d := newTestDB(t)
	first := sampleDashboard("dash-1", "user-1")
	first.Widgets = []*models.Widget{sampleWidget("By status")}
	if err := d.CreateDashboard(ctx, first); err != nil {
		t.Fatalf("CreateDashboard: %v", err)
	}
	taken := first.Widgets[0].ID

	copied := sampleDashboard("dash-2", "user-2")
	copied.Widgets = []*models.Widget{sampleWidget("By status")}
	copied.Widgets[0].ID = taken
	if err := d.CreateDashboard(ctx, copied); err != nil {
		t.Fatalf("CreateDashboard with a taken widget id: %v", err)
	}
	if copied.Widgets[0].ID == taken {
		t.Error("expected a fresh widget id")
	}

	orig, err := d.GetDashboard(ctx, "dash-1")
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if len(orig.Widgets) != 1 || orig.Widgets[0].ID != taken {
		t.Errorf("original dashboard widgets changed: %+v", orig.Widgets)
	}
}

func TestGetDashboard_NotFound(t *testing.T) {
	d := newTestDB(t)
	if _, err := d.GetDashboard(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestListDashboards_Visibility(t *testing.T) {
	d := newTestDB(t)
	mine := sampleDashboard("mine", "alice")
	theirs := sampleDashboard("theirs", "bob")
	shared := sampleDashboard("shared", "bob")
	shared.Visibility = models.VisibilityPublic
	for _, dash := range []*models.Dashboard{mine, theirs, shared} {
		if err := d.CreateDashboard(ctx, dash); err != nil {
			t.Fatalf("CreateDashboard %q: %v", dash.ID, err)
		}
	}

	tests := []struct {
		user string
		want map[string]bool
	}{
		{"alice", map[string]bool{"mine": true, "shared": true}},
		{"bob", map[string]bool{"theirs": true, "shared": true}},
		{"", map[string]bool{"shared": true}},
	}
	for _, tt := range tests {
		t.Run("user="+tt.user, func(t *testing.T) {
			got, err := d.ListDashboards(ctx, tt.user)
			if err != nil {
				t.Fatalf("ListDashboards: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d dashboards, want %d", len(got), len(tt.want))
			}
			for _, dash := range got {
				if !tt.want[dash.ID] {
					t.Errorf("unexpected dashboard %q", dash.ID)
				}
			}
		})
	}
}

func TestUpdateDashboard_DiffAndUpsert(t *testing.T) {
	d := newTestDB(t)
	dash := sampleDashboard("dash-1", "user-1")
	keep, drop := sampleWidget("keep"), sampleWidget("drop")
	dash.Widgets = []*models.Widget{keep, drop}
	if err := d.CreateDashboard(ctx, dash); err != nil {
		t.Fatalf("CreateDashboard: %v", err)
	}
	keepID, dropID := keep.ID, drop.ID

	edited := sampleWidget("keep (renamed)")
	edited.ID = keepID
	added := sampleWidget("added")
	added.ID = "6f1c2a8e-0000-4000-8000-000000000000"

	update := sampleDashboard("dash-1", "user-1")
	update.Name = "Capacity v2"
	update.UpdatedAt = baseTime.Add(time.Hour)
	update.Widgets = []*models.Widget{added, edited}
	version := 1
	if err := d.UpdateDashboard(ctx, update, &version); err != nil {
		t.Fatalf("UpdateDashboard: %v", err)
	}
	if update.Version != 2 {
		t.Errorf("Version: got %d, want 2", update.Version)
	}

	got, err := d.GetDashboard(ctx, "dash-1")
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if got.Name != "Capacity v2" || got.Version != 2 {
		t.Errorf("got name=%q version=%d", got.Name, got.Version)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt changed: %v", got.CreatedAt)
	}
	if len(got.Widgets) != 2 {
		t.Fatalf("expected 2 widgets, got %d", len(got.Widgets))
	}
	if got.Widgets[0].Title != "added" {
		t.Errorf("first widget: got %q, want added", got.Widgets[0].Title)
	}
	if got.Widgets[0].ID == "6f1c2a8e-0000-4000-8000-000000000000" {
		t.Error("unknown widget id should be replaced on insert")
	}
	if got.Widgets[1].ID != keepID || got.Widgets[1].Title != "keep (renamed)" {
		t.Errorf("kept widget: got id=%q title=%q", got.Widgets[1].ID, got.Widgets[1].Title)
	}
	if !got.Widgets[1].CreatedAt.Equal(baseTime) {
		t.Errorf("kept widget CreatedAt changed: %v", got.Widgets[1].CreatedAt)
	}
	for _, w := range got.Widgets {
		if w.ID == dropID {
			t.Error("removed widget still present")
		}
	}
}

func TestUpdateDashboard_VersionConflict(t *testing.T) {
	d := newTestDB(t)
	dash := sampleDashboard("dash-1", "user-1")
	dash.Widgets = []*models.Widget{sampleWidget("w")}
	if err := d.CreateDashboard(ctx, dash); err != nil {
		t.Fatalf("CreateDashboard: %v", err)
	}

	first := sampleDashboard("dash-1", "user-1")
	first.Name = "first"
	v1 := 1
	if err := d.UpdateDashboard(ctx, first, &v1); err != nil {
		t.Fatalf("first UpdateDashboard: %v", err)
	}

	stale := sampleDashboard("dash-1", "user-1")
	stale.Name = "stale"
	err := d.UpdateDashboard(ctx, stale, &v1)
	if !errors.Is(err, db.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := d.GetDashboard(ctx, "dash-1")
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if got.Name != "first" || got.Version != 2 {
		t.Errorf("stale write applied: name=%q version=%d", got.Name, got.Version)
	}
}

func TestUpdateDashboard_NoVersionLastWriterWins(t *testing.T) {
	d := newTestDB(t)
	if err := d.CreateDashboard(ctx, sampleDashboard("dash-1", "user-1")); err != nil {
		t.Fatalf("CreateDashboard: %v", err)
	}
	for _, name := range []string{"a", "b"} {
		u := sampleDashboard("dash-1", "user-1")
		u.Name = name
		if err := d.UpdateDashboard(ctx, u, nil); err != nil {
			t.Fatalf("UpdateDashboard %q: %v", name, err)
		}
	}
	got, err := d.GetDashboard(ctx, "dash-1")
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if got.Name != "b" || got.Version != 3 {
		t.Errorf("got name=%q version=%d, want b/3", got.Name, got.Version)
	}
}

func TestUpdateDashboard_NotFound(t *testing.T) {
	d := newTestDB(t)
	err := d.UpdateDashboard(ctx, sampleDashboard("ghost", "user-1"), nil)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestDeleteDashboard_CascadesWidgets(t *testing.T) {
	d := newTestDB(t)
	dash := sampleDashboard("dash-1", "user-1")
	dash.Widgets = []*models.Widget{sampleWidget("w")}
	if err := d.CreateDashboard(ctx, dash); err != nil {
		t.Fatalf("CreateDashboard: %v", err)
	}
	if err := d.DeleteDashboard(ctx, "dash-1"); err != nil {
		t.Fatalf("DeleteDashboard: %v", err)
	}
	if _, err := d.GetDashboard(ctx, "dash-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows after delete, got %v", err)
	}
	if err := d.DeleteDashboard(ctx, "dash-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second delete: expected sql.ErrNoRows, got %v", err)
	}

	// Recreating with the same widget id succeeds only if the old row is gone.
	again := sampleDashboard("dash-2", "user-1")
	w := sampleWidget("w")
	w.ID = dash.Widgets[0].ID
	again.Widgets = []*models.Widget{w}
	if err := d.CreateDashboard(ctx, again); err != nil {
		t.Errorf("widget row survived dashboard delete: %v", err)
	}
}

func TestCountDashboards(t *testing.T) {
	d := newTestDB(t)
	pub := sampleDashboard("p", "u")
	pub.Visibility = models.VisibilityPublic
	for _, dash := range []*models.Dashboard{pub, sampleDashboard("a", "u"), sampleDashboard("b", "u")} {
		if err := d.CreateDashboard(ctx, dash); err != nil {
			t.Fatalf("CreateDashboard: %v", err)
		}
	}
	counts, err := d.CountDashboards(ctx)
	if err != nil {
		t.Fatalf("CountDashboards: %v", err)
	}
	if counts[models.VisibilityPublic] != 1 || counts[models.VisibilityPrivate] != 2 {
		t.Errorf("counts: got %v", counts)
	}
}
