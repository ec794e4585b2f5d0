package catalog_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"magpie/internal/catalog"
	"magpie/internal/services"
	"magpie/internal/testsupport"
	"magpie/internal/workflow"
)

func TestOpenSeedsDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	pages, err := store.ListPages(ctx)
	if err != nil {
		t.Fatalf("ListPages failed: %v", err)
	}
	var ids []string
	for _, p := range pages {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]string{"home", "t2i", "outfit", "history", "guestbook"}, ids); diff != "" {
		t.Fatalf("page ids mismatch (-want +got):\n%s", diff)
	}

	t2i := pages[1]
	if t2i.Label != "AI文生图" || t2i.Icon != "Wand2" {
		t.Fatalf("unexpected t2i page: %+v", t2i)
	}
	enabled := t2i.Layout.EnabledModules()
	if !enabled[workflow.ModuleBatchSize] || enabled[workflow.ModuleImageUpload] {
		t.Fatalf("unexpected t2i modules: %+v", enabled)
	}
	outfit := pages[2]
	if !outfit.Layout.EnabledModules()[workflow.ModuleImageUpload] {
		t.Fatal("expected outfit page to enable image upload")
	}

	backends, err := store.ListBackends(ctx)
	if err != nil {
		t.Fatalf("ListBackends failed: %v", err)
	}
	if len(backends) != 1 || backends[0].ID != "srv_1" || backends[0].Usable() {
		t.Fatalf("unexpected default backends: %+v", backends)
	}

	settings, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings.Title != "灵鹊AI" || len(settings.Departments) != 4 {
		t.Fatalf("unexpected settings: %+v", settings)
	}
	if settings.HomePage == nil || len(settings.HomePage.Features) != 3 {
		t.Fatalf("expected seeded home page, got %+v", settings.HomePage)
	}
}

func TestEveryConnectionCarriesPragmas(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first, err := store.DB().Conn(ctx)
	if err != nil {
		t.Fatalf("Conn failed: %v", err)
	}
	defer first.Close()
	second, err := store.DB().Conn(ctx)
	if err != nil {
		t.Fatalf("Conn failed: %v", err)
	}
	defer second.Close()

	for i, conn := range []*sql.Conn{first, second} {
		var timeout, foreignKeys int
		if err := conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("conn %d busy_timeout: %v", i, err)
		}
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
			t.Fatalf("conn %d foreign_keys: %v", i, err)
		}
		if timeout != 5000 || foreignKeys != 1 {
			t.Fatalf("conn %d: busy_timeout=%d foreign_keys=%d", i, timeout, foreignKeys)
		}
	}
}

func TestReopenDoesNotReapplyMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.DeletePage(ctx, "guestbook"); err != nil {
		t.Fatalf("DeletePage failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	pages, err := reopened.ListPages(ctx)
	if err != nil {
		t.Fatalf("ListPages failed: %v", err)
	}
	if len(pages) != 4 {
		t.Fatalf("expected 4 pages after reopen, got %d", len(pages))
	}
	versions, err := reopened.SchemaVersions(ctx)
	if err != nil {
		t.Fatalf("SchemaVersions failed: %v", err)
	}
	if diff := cmp.Diff([]string{"001_schema", "002_defaults"}, versions); diff != "" {
		t.Fatalf("versions mismatch (-want +got):\n%s", diff)
	}
}

func TestSavePageValidatesMappings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.MustSaveWorkflow(t, store, "wf_t2i")

	page, err := store.GetPage(ctx, "t2i")
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	page.WorkflowID = "wf_t2i"
	page.OutputNodeID = "9"
	page.InputMappings = workflow.Mappings{
		workflow.ModulePrompt: {NodeID: "6", Field: "text"},
		workflow.ModuleAspectRatio: {
			WidthNodeID: "5", WidthField: "width",
			HeightNodeID: "5", HeightField: "height",
		},
	}
	if _, err := store.SavePage(ctx, page); err != nil {
		t.Fatalf("SavePage failed: %v", err)
	}
	stored, err := store.GetPage(ctx, "t2i")
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if diff := cmp.Diff(page.InputMappings, stored.InputMappings); diff != "" {
		t.Fatalf("mappings mismatch (-want +got):\n%s", diff)
	}

	cases := []struct {
		name   string
		mutate func(*catalog.Page)
	}{
		{"missing node", func(p *catalog.Page) {
			p.InputMappings = workflow.Mappings{workflow.ModulePrompt: {NodeID: "99", Field: "text"}}
		}},
		{"empty field", func(p *catalog.Page) {
			p.InputMappings = workflow.Mappings{workflow.ModuleModel: {NodeID: "4"}}
		}},
		{"unknown module", func(p *catalog.Page) {
			p.InputMappings = workflow.Mappings{"lora": {NodeID: "4", Field: "x"}}
		}},
		{"unknown workflow", func(p *catalog.Page) { p.WorkflowID = "wf_missing" }},
		{"missing output node", func(p *catalog.Page) { p.OutputNodeID = "42" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := page
			tc.mutate(&bad)
			_, err := store.SavePage(ctx, bad)
			if !errors.Is(err, catalog.ErrInvalidMapping) {
				t.Fatalf("expected ErrInvalidMapping, got %v", err)
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation marker, got %v", err)
			}
		})
	}
}

func TestSavePageAppendsNewPages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.SavePage(ctx, catalog.Page{ID: "poster", Label: "海报", Enabled: true}); err != nil {
		t.Fatalf("SavePage failed: %v", err)
	}
	pages, err := store.ListPages(ctx)
	if err != nil {
		t.Fatalf("ListPages failed: %v", err)
	}
	if got := pages[len(pages)-1].ID; got != "poster" {
		t.Fatalf("expected new page last, got %q", got)
	}
	if _, err := store.SavePage(ctx, catalog.Page{ID: "poster"}); !errors.Is(err, catalog.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for missing label, got %v", err)
	}
}

func TestSavePagesReplacesMenu(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	err := store.SavePages(ctx, []catalog.Page{
		{ID: "b", Label: "B", Enabled: true},
		{ID: "a", Label: "A", Enabled: false},
	})
	if err != nil {
		t.Fatalf("SavePages failed: %v", err)
	}
	pages, err := store.ListPages(ctx)
	if err != nil {
		t.Fatalf("ListPages failed: %v", err)
	}
	if len(pages) != 2 || pages[0].ID != "b" || pages[1].ID != "a" || pages[1].Enabled {
		t.Fatalf("unexpected pages: %+v", pages)
	}

	err = store.SavePages(ctx, []catalog.Page{{ID: "x", Label: "X"}, {ID: "x", Label: "Y"}})
	if !errors.Is(err, catalog.ErrInvalid) {
		t.Fatalf("expected duplicate id rejection, got %v", err)
	}
}

func TestWorkflowLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.SaveWorkflow(ctx, catalog.WorkflowInput{Name: "broken", Graph: []byte(`{"nodes": [], "links": []}`)}); !errors.Is(err, workflow.ErrInvalidGraph) {
		t.Fatalf("expected ErrInvalidGraph for editor export, got %v", err)
	}

	wf := testsupport.MustSaveWorkflow(t, store, "wf_a")
	if _, err := store.SaveWorkflow(ctx, catalog.WorkflowInput{ID: "wf_a", Name: "dup", Graph: []byte(testsupport.SampleGraph)}); !errors.Is(err, catalog.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	fetched, err := store.GetWorkflow(ctx, wf.ID)
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if len(fetched.Graph) != 6 || fetched.Graph["6"].ClassType != "CLIPTextEncode" {
		t.Fatalf("unexpected graph: %+v", fetched.Graph)
	}

	summaries, err := store.ListWorkflows(ctx)
	if err != nil {
		t.Fatalf("ListWorkflows failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].NodeCount != 6 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}

	page, err := store.GetPage(ctx, "t2i")
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	page.WorkflowID = wf.ID
	page.InputMappings = workflow.Mappings{workflow.ModulePrompt: {NodeID: "6", Field: "text"}}
	if _, err := store.SavePage(ctx, page); err != nil {
		t.Fatalf("SavePage failed: %v", err)
	}

	_, err = store.UpdateWorkflow(ctx, catalog.WorkflowInput{
		ID:    wf.ID,
		Graph: []byte(`{"1": {"class_type": "SaveImage", "inputs": {}}}`),
	})
	if !errors.Is(err, catalog.ErrInvalidMapping) {
		t.Fatalf("expected graph replacement to be rejected, got %v", err)
	}

	updated, err := store.UpdateWorkflow(ctx, catalog.WorkflowInput{ID: wf.ID, Name: "Renamed", Description: "desc"})
	if err != nil {
		t.Fatalf("UpdateWorkflow failed: %v", err)
	}
	if updated.Name != "Renamed" || len(updated.Graph) != 6 {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if err := store.DeleteWorkflow(ctx, wf.ID); err != nil {
		t.Fatalf("DeleteWorkflow failed: %v", err)
	}
	page, err = store.GetPage(ctx, "t2i")
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if page.WorkflowID != "" {
		t.Fatalf("expected page to be unbound, got %q", page.WorkflowID)
	}
	if _, err := store.GetWorkflow(ctx, wf.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBackends(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	err := store.SaveBackends(ctx, []catalog.Backend{
		{ID: "gpu1", Name: "GPU 1", URL: "http://10.0.0.5:8188/", Enabled: true, AllowedDepartments: []string{"设计部", " "}},
		{ID: "gpu2", Name: "GPU 2", URL: "http://10.0.0.6:8188", Enabled: false},
	})
	if err != nil {
		t.Fatalf("SaveBackends failed: %v", err)
	}
	added, err := store.SaveBackend(ctx, catalog.Backend{Name: "GPU 3", URL: "http://10.0.0.7:8188", Enabled: true})
	if err != nil {
		t.Fatalf("SaveBackend failed: %v", err)
	}

	backends, err := store.ListBackends(ctx)
	if err != nil {
		t.Fatalf("ListBackends failed: %v", err)
	}
	if len(backends) != 3 || backends[2].ID != added.ID {
		t.Fatalf("unexpected backends: %+v", backends)
	}
	first := backends[0]
	if first.URL != "http://10.0.0.5:8188" {
		t.Fatalf("expected trailing slash trimmed, got %q", first.URL)
	}
	if diff := cmp.Diff([]string{"设计部"}, first.AllowedDepartments); diff != "" {
		t.Fatalf("departments mismatch (-want +got):\n%s", diff)
	}
	if !first.Serves("设计部") || first.Serves("市场部") {
		t.Fatal("unexpected department filter result")
	}
	if !backends[2].Serves("市场部") {
		t.Fatal("expected empty allow list to admit everyone")
	}

	if err := store.DeleteBackend(ctx, "gpu2"); err != nil {
		t.Fatalf("DeleteBackend failed: %v", err)
	}
	if err := store.DeleteBackend(ctx, "gpu2"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveSettings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	settings, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	settings.Announcement = "维护通知"
	settings.Departments = []string{"设计部", "设计部", " ", "财务部"}
	if err := store.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	got, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if got.Announcement != "维护通知" {
		t.Fatalf("announcement not saved: %+v", got)
	}
	if diff := cmp.Diff([]string{"设计部", "财务部"}, got.Departments); diff != "" {
		t.Fatalf("departments mismatch (-want +got):\n%s", diff)
	}

	settings.Title = "  "
	if err := store.SaveSettings(ctx, settings); !errors.Is(err, catalog.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for blank title, got %v", err)
	}
}

func TestSubscribeReceivesCommittedChanges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	events, unsubscribe := store.Subscribe(4)

	settings, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if err := store.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	if got := <-events; got != catalog.EventSettings {
		t.Fatalf("expected settings event, got %q", got)
	}

	settings.Title = ""
	_ = store.SaveSettings(ctx, settings)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after failed write: %q", ev)
	default:
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-events; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}
