package daemon_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"magpie/internal/api"
	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/daemon"
	"magpie/internal/gemini"
	"magpie/internal/generation"
	"magpie/internal/history"
	"magpie/internal/logging"
	"magpie/internal/testsupport"
	"magpie/internal/workflow"
)

type fixture struct {
	cfg      *config.Config
	store    *catalog.Store
	recorder history.Recorder
	daemon   *daemon.Daemon
}

func newFixture(t *testing.T, cfgOpts []testsupport.ConfigOption, opts ...daemon.Option) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, cfgOpts...)
	store := testsupport.MustOpenStore(t, cfg)
	recorder := history.NewSQLRecorder(store.DB(), cfg.History.Limit)

	fast := generation.NewService(cfg, store, recorder, logging.NewNop(),
		generation.WithPoller(generation.NewPoller(generation.PollerConfig{
			Interval:  time.Millisecond,
			MaxTicks:  150,
			MaxErrors: 10,
		}, logging.NewNop())),
	)
	opts = append([]daemon.Option{daemon.WithGenerator(fast)}, opts...)
	d, err := daemon.New(cfg, store, recorder, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return fixture{cfg: cfg, store: store, recorder: recorder, daemon: d}
}

func (fx fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	fx.daemon.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, want, w.Body.String())
	}
}

func TestDaemonRunServesAndHoldsLock(t *testing.T) {
	fx := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.daemon.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for fx.daemon.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("daemon did not start listening")
		}
		time.Sleep(10 * time.Millisecond)
	}

	status, err := api.NewClient(fx.daemon.Addr(), "").Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Counts.Pages != 5 || status.Counts.Backends != 1 {
		t.Fatalf("unexpected counts: %+v", status.Counts)
	}
	if len(status.SchemaVersions) != 2 {
		t.Fatalf("schema versions = %v", status.SchemaVersions)
	}

	second, err := daemon.New(fx.cfg, fx.store, fx.recorder, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock error from second daemon, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if fx.daemon.Addr() != "" {
		t.Fatal("address should be cleared after stop")
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	fx := newFixture(t, []testsupport.ConfigOption{testsupport.WithAPIToken("secret")})

	expectStatus(t, fx.do(t, http.MethodGet, "/api/settings", nil), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	fx.daemon.Handler().ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
	settings := decode[catalog.Settings](t, w)
	if settings.Title != "灵鹊AI" {
		t.Fatalf("title = %q", settings.Title)
	}
}

func TestAPIWorkflowAndPageLifecycle(t *testing.T) {
	fx := newFixture(t, nil)

	w := fx.do(t, http.MethodPost, "/api/workflows", api.WorkflowRequest{
		ID:    "wf_t2i",
		Name:  "Text to image",
		Graph: json.RawMessage(testsupport.SampleGraph),
	})
	expectStatus(t, w, http.StatusCreated)

	w = fx.do(t, http.MethodPost, "/api/workflows", api.WorkflowRequest{ID: "wf_t2i", Name: "dup", Graph: json.RawMessage(testsupport.SampleGraph)})
	expectStatus(t, w, http.StatusConflict)

	w = fx.do(t, http.MethodPost, "/api/workflows", api.WorkflowRequest{Name: "broken", Graph: json.RawMessage(`{"1": {"inputs": {}}}`)})
	expectStatus(t, w, http.StatusBadRequest)

	list := decode[[]catalog.WorkflowSummary](t, fx.do(t, http.MethodGet, "/api/workflows", nil))
	if len(list) != 1 || list[0].NodeCount != 6 {
		t.Fatalf("unexpected workflow list: %+v", list)
	}

	page := decode[catalog.Page](t, fx.do(t, http.MethodGet, "/api/pages/t2i", nil))
	page.WorkflowID = "wf_t2i"
	page.OutputNodeID = "9"
	page.InputMappings = workflow.Mappings{workflow.ModulePrompt: {NodeID: "99", Field: "text"}}
	w = fx.do(t, http.MethodPut, "/api/pages/t2i", page)
	expectStatus(t, w, http.StatusBadRequest)
	if resp := decode[api.ErrorResponse](t, w); resp.Kind != "validation" {
		t.Fatalf("kind = %q, want validation", resp.Kind)
	}

	page.InputMappings = workflow.Mappings{workflow.ModulePrompt: {NodeID: "6", Field: "text"}}
	expectStatus(t, fx.do(t, http.MethodPut, "/api/pages/t2i", page), http.StatusOK)

	expectStatus(t, fx.do(t, http.MethodDelete, "/api/workflows/wf_t2i", nil), http.StatusNoContent)
	expectStatus(t, fx.do(t, http.MethodGet, "/api/workflows/wf_t2i", nil), http.StatusNotFound)

	unbound := decode[catalog.Page](t, fx.do(t, http.MethodGet, "/api/pages/t2i", nil))
	if unbound.WorkflowID != "" {
		t.Fatalf("page still bound to %q", unbound.WorkflowID)
	}
}

type comfyStub struct {
	mu    sync.Mutex
	polls int
}

func (c *comfyStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /prompt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"prompt_id": "p-9", "number": 1, "node_errors": {}}`)
	})
	mux.HandleFunc("GET /history/{id}", func(w http.ResponseWriter, _ *http.Request) {
		c.mu.Lock()
		c.polls++
		polls := c.polls
		c.mu.Unlock()
		if polls < 2 {
			_, _ = io.WriteString(w, `{}`)
			return
		}
		_, _ = io.WriteString(w, `{"p-9": {"outputs": {"9": {"images": [{"filename": "out.png", "subfolder": "", "type": "output"}]}}}}`)
	})
	return mux
}

func bindPage(t *testing.T, store *catalog.Store) {
	t.Helper()
	testsupport.MustSaveWorkflow(t, store, "wf_t2i")
	page, err := store.GetPage(context.Background(), "t2i")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	page.WorkflowID = "wf_t2i"
	page.OutputNodeID = "9"
	page.InputMappings = workflow.Mappings{workflow.ModulePrompt: {NodeID: "6", Field: "text"}}
	if _, err := store.SavePage(context.Background(), page); err != nil {
		t.Fatalf("SavePage: %v", err)
	}
}

func TestAPIGenerateEndToEnd(t *testing.T) {
	stub := &comfyStub{}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	fx := newFixture(t, nil)
	bindPage(t, fx.store)
	if err := fx.store.SaveBackends(context.Background(), []catalog.Backend{{ID: "gpu", Name: "GPU", URL: server.URL, Enabled: true}}); err != nil {
		t.Fatalf("SaveBackends: %v", err)
	}

	w := fx.do(t, http.MethodPost, "/api/pages/t2i/generate", api.GenerateRequest{Prompt: "a lighthouse", Width: 640, Height: 480})
	expectStatus(t, w, http.StatusOK)
	result := decode[generation.Result](t, w)
	if result.Job.PromptID != "p-9" {
		t.Fatalf("prompt id = %q", result.Job.PromptID)
	}
	if !strings.HasPrefix(result.Record.ImageURL, server.URL+"/view?") {
		t.Fatalf("image url = %q", result.Record.ImageURL)
	}

	records := decode[[]history.Record](t, fx.do(t, http.MethodGet, "/api/history", nil))
	if len(records) != 1 || records[0].Prompt != "a lighthouse" || records[0].MenuID != "t2i" {
		t.Fatalf("unexpected history: %+v", records)
	}

	expectStatus(t, fx.do(t, http.MethodDelete, "/api/history", nil), http.StatusNoContent)
	if records := decode[[]history.Record](t, fx.do(t, http.MethodGet, "/api/history", nil)); len(records) != 0 {
		t.Fatalf("history not cleared: %+v", records)
	}
}

func TestAPIGenerateErrorStatuses(t *testing.T) {
	fx := newFixture(t, nil)
	bindPage(t, fx.store)

	// The seeded backend has no URL.
	w := fx.do(t, http.MethodPost, "/api/pages/t2i/generate", api.GenerateRequest{Prompt: "x"})
	expectStatus(t, w, http.StatusBadRequest)
	resp := decode[api.ErrorResponse](t, w)
	if resp.Kind != "configuration" || !strings.Contains(resp.Hint, "admin → servers") {
		t.Fatalf("unexpected error response: %+v", resp)
	}

	expectStatus(t, fx.do(t, http.MethodPost, "/api/pages/nope/generate", api.GenerateRequest{Prompt: "x"}), http.StatusNotFound)

	if err := fx.store.SaveBackends(context.Background(), []catalog.Backend{{ID: "dead", Name: "Dead", URL: "http://127.0.0.1:1", Enabled: true}}); err != nil {
		t.Fatalf("SaveBackends: %v", err)
	}
	w = fx.do(t, http.MethodPost, "/api/pages/t2i/generate", api.GenerateRequest{Prompt: "x"})
	expectStatus(t, w, http.StatusServiceUnavailable)
}

func TestAPIUsersAndComments(t *testing.T) {
	fx := newFixture(t, nil)

	w := fx.do(t, http.MethodPost, "/api/users", api.RegisterRequest{Phone: "13800000000", Password: "pass1234", Nickname: "Ann", Department: "设计部"})
	expectStatus(t, w, http.StatusCreated)
	if user := decode[catalog.User](t, w); user.Role != catalog.RoleSuperAdmin {
		t.Fatalf("first user role = %q", user.Role)
	}
	expectStatus(t, fx.do(t, http.MethodPost, "/api/users", api.RegisterRequest{Phone: "13800000000", Password: "pass1234", Nickname: "Ann", Department: "设计部"}), http.StatusConflict)

	expectStatus(t, fx.do(t, http.MethodPost, "/api/login", api.LoginRequest{Phone: "13800000000", Password: "wrong"}), http.StatusUnauthorized)
	expectStatus(t, fx.do(t, http.MethodPost, "/api/login", api.LoginRequest{Phone: "13800000000", Password: "pass1234"}), http.StatusOK)

	w = fx.do(t, http.MethodPost, "/api/comments", api.CommentRequest{Phone: "13800000000", Content: "hello"})
	expectStatus(t, w, http.StatusCreated)
	top := decode[catalog.Comment](t, w)

	expectStatus(t, fx.do(t, http.MethodPost, "/api/comments", api.CommentRequest{Phone: "unknown", Content: "hi"}), http.StatusNotFound)
	expectStatus(t, fx.do(t, http.MethodPost, "/api/comments/"+top.ID+"/replies", api.CommentRequest{Phone: "13800000000", Content: "reply"}), http.StatusCreated)

	w = fx.do(t, http.MethodPost, "/api/comments/"+top.ID+"/like", nil)
	expectStatus(t, w, http.StatusOK)
	if like := decode[api.LikeResponse](t, w); like.Likes != 1 {
		t.Fatalf("likes = %d", like.Likes)
	}

	comments := decode[[]catalog.Comment](t, fx.do(t, http.MethodGet, "/api/comments", nil))
	if len(comments) != 1 || len(comments[0].Replies) != 1 || comments[0].UserNickname != "Ann" {
		t.Fatalf("unexpected comments: %+v", comments)
	}
}

func TestAPIProfileAndRoles(t *testing.T) {
	fx := newFixture(t, nil)
	owner, member := "13800000000", "13900000000"
	expectStatus(t, fx.do(t, http.MethodPost, "/api/users", api.RegisterRequest{Phone: owner, Password: "pass1234", Nickname: "Ann", Department: "设计部"}), http.StatusCreated)
	expectStatus(t, fx.do(t, http.MethodPost, "/api/users", api.RegisterRequest{Phone: member, Password: "pass1234", Nickname: "Bo", Department: "设计部"}), http.StatusCreated)

	nick, avatar := "Bobby", "https://cdn.example/a.png"
	w := fx.do(t, http.MethodPatch, "/api/users/"+member, api.ProfileRequest{Nickname: &nick, AvatarURL: &avatar})
	expectStatus(t, w, http.StatusOK)
	if user := decode[catalog.User](t, w); user.Nickname != "Bobby" || user.AvatarURL != avatar || user.Department != "设计部" {
		t.Fatalf("unexpected profile: %+v", user)
	}
	unknown := "no-such-team"
	expectStatus(t, fx.do(t, http.MethodPatch, "/api/users/"+member, api.ProfileRequest{Department: &unknown}), http.StatusBadRequest)
	expectStatus(t, fx.do(t, http.MethodPatch, "/api/users/nobody", api.ProfileRequest{Nickname: &nick}), http.StatusNotFound)

	expectStatus(t, fx.do(t, http.MethodPatch, "/api/users/"+member, api.ProfileRequest{CurrentPassword: "wrong", NewPassword: "newpass"}), http.StatusUnauthorized)
	expectStatus(t, fx.do(t, http.MethodPatch, "/api/users/"+member, api.ProfileRequest{CurrentPassword: "pass1234", NewPassword: "newpass"}), http.StatusOK)
	expectStatus(t, fx.do(t, http.MethodPost, "/api/login", api.LoginRequest{Phone: member, Password: "newpass"}), http.StatusOK)

	expectStatus(t, fx.do(t, http.MethodPut, "/api/users/"+owner+"/role", api.RoleRequest{Actor: member, Role: "user"}), http.StatusForbidden)
	expectStatus(t, fx.do(t, http.MethodPut, "/api/users/"+member+"/role", api.RoleRequest{Actor: "nobody", Role: "admin"}), http.StatusForbidden)
	expectStatus(t, fx.do(t, http.MethodPut, "/api/users/"+member+"/role", api.RoleRequest{Actor: owner, Role: "root"}), http.StatusBadRequest)
	expectStatus(t, fx.do(t, http.MethodPut, "/api/users/"+owner+"/role", api.RoleRequest{Actor: owner, Role: "user"}), http.StatusBadRequest)

	w = fx.do(t, http.MethodPut, "/api/users/"+member+"/role", api.RoleRequest{Actor: owner, Role: "admin"})
	expectStatus(t, w, http.StatusOK)
	if user := decode[catalog.User](t, w); user.Role != catalog.RoleAdmin {
		t.Fatalf("role = %q", user.Role)
	}
	users := decode[[]catalog.User](t, fx.do(t, http.MethodGet, "/api/users", nil))
	if len(users) != 2 || users[1].Role != catalog.RoleAdmin {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestAPIProcessImage(t *testing.T) {
	fx := newFixture(t, nil)

	img := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	for x := 0; x < 200; x++ {
		img.Set(x, 50, color.NRGBA{255, 0, 0, 255})
	}
	var src bytes.Buffer
	if err := png.Encode(&src, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "in.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write(src.Bytes())
	_ = mw.WriteField("quality", "0.7")
	_ = mw.WriteField("max_width", "50")
	_ = mw.WriteField("format", "jpeg")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/images/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	fx.daemon.Handler().ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)

	resp := decode[api.ProcessResponse](t, w)
	if resp.Width != 50 || resp.Height != 25 || resp.Format != "image/jpeg" {
		t.Fatalf("unexpected process response: %+v", resp)
	}
	if !strings.HasPrefix(resp.Image, "data:image/jpeg;base64,") {
		t.Fatalf("image is not a jpeg data url")
	}
	if resp.OriginalSize != src.Len() || resp.SizeLabel == "" {
		t.Fatalf("unexpected sizes: %+v", resp)
	}
}

type fakeImager struct{}

func (fakeImager) AnalyzeImage(context.Context, gemini.Image) (gemini.Analysis, error) {
	return gemini.Analysis{Description: "a cat", Tags: []string{"cat"}, MainColors: []string{"#000000"}}, nil
}

func (fakeImager) GenerateImage(_ context.Context, prompt string, _ gemini.Variant, _ string) (gemini.Image, error) {
	return gemini.Image{Data: []byte(prompt), MIMEType: "image/png"}, nil
}

func (fakeImager) ChangeOutfit(context.Context, gemini.Image, gemini.Image, string, gemini.Variant) (gemini.Image, error) {
	return gemini.Image{Data: []byte("dressed"), MIMEType: "image/png"}, nil
}

func TestAPIHostedModelEndpoints(t *testing.T) {
	without := newFixture(t, nil)
	w := without.do(t, http.MethodPost, "/api/analyze", api.AnalyzeRequest{Image: "aGVsbG8="})
	expectStatus(t, w, http.StatusBadRequest)
	if resp := decode[api.ErrorResponse](t, w); resp.Kind != "configuration" {
		t.Fatalf("kind = %q", resp.Kind)
	}

	fx := newFixture(t, nil, daemon.WithImager(fakeImager{}))
	w = fx.do(t, http.MethodPost, "/api/analyze", api.AnalyzeRequest{Image: "data:image/png;base64,aGVsbG8="})
	expectStatus(t, w, http.StatusOK)
	if analysis := decode[gemini.Analysis](t, w); analysis.Description != "a cat" {
		t.Fatalf("analysis = %+v", analysis)
	}

	w = fx.do(t, http.MethodPost, "/api/images/generate", api.ImageGenerateRequest{Prompt: "hi", Variant: "v2", AspectRatio: "16:9"})
	expectStatus(t, w, http.StatusOK)
	if img := decode[api.ImageResponse](t, w); img.Image != "data:image/png;base64,aGk=" {
		t.Fatalf("image = %q", img.Image)
	}

	expectStatus(t, fx.do(t, http.MethodPost, "/api/images/generate", api.ImageGenerateRequest{Prompt: "hi", Variant: "V3"}), http.StatusBadRequest)
	expectStatus(t, fx.do(t, http.MethodPost, "/api/images/outfit", api.OutfitRequest{Person: "aGVsbG8=", Garment: "!!"}), http.StatusBadRequest)
	expectStatus(t, fx.do(t, http.MethodPost, "/api/images/outfit", api.OutfitRequest{Person: "aGVsbG8=", Garment: "aGVsbG8="}), http.StatusOK)
}

func TestAPIEventsStream(t *testing.T) {
	fx := newFixture(t, nil)
	srv := httptest.NewServer(fx.daemon.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || line != ": connected\n" {
		t.Fatalf("first line = %q, err %v", line, err)
	}

	settings, err := fx.store.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	settings.Announcement = "maintenance tonight"
	if err := fx.store.SaveSettings(context.Background(), settings); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if line == "event: settings\n" {
			return
		}
	}
}
