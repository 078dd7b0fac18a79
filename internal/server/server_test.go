package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"catalogd/internal/account"
	"catalogd/internal/catalog"
	"catalogd/internal/domain"
	"catalogd/internal/storage"
	"catalogd/internal/store"
)

const (
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "s3cret"
)

type testEnv struct {
	server  *httptest.Server
	catalog *catalog.Catalog
	store   *store.MemoryStore
	objects *storage.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)

	mem := store.NewMemoryStore()
	objects := storage.NewMemoryObjectStore()
	cat, err := catalog.New(catalog.Config{Store: mem, Objects: objects})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	accounts := account.New(mem, mem)
	if err := accounts.EnsureAdmin(testAdminEmail, testAdminPassword); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	srv, err := New(Config{
		Catalog:                 cat,
		Accounts:                accounts,
		RedisAddr:               mr.Addr(),
		LoginRateLimitPerMinute: 5,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, catalog: cat, store: mem, objects: objects}
}

// noRedirectClient returns the raw redirect response instead of following it.
func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	resp, err := noRedirectClient().PostForm(e.server.URL+"/admin-login", url.Values{
		"email":    {testAdminEmail},
		"password": {testAdminPassword},
	})
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in login response")
	return nil
}

func (e *testEnv) postForm(t *testing.T, session *http.Cookie, path string, form url.Values) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if session != nil {
		req.AddCookie(session)
	}
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func flashValue(t *testing.T, resp *http.Response) string {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == flashCookie && c.Value != "" {
			decoded, err := base64.RawURLEncoding.DecodeString(c.Value)
			if err != nil {
				t.Fatalf("decode flash: %v", err)
			}
			return string(decoded)
		}
	}
	return ""
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestAdminRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.catalog.AddService(context.Background(), "Solar"); err != nil {
		t.Fatalf("seed service: %v", err)
	}

	resp, err := noRedirectClient().Get(env.server.URL + "/admin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want redirect", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/admin-login" {
		t.Fatalf("location = %q", loc)
	}
	if strings.Contains(body, "Solar") {
		t.Fatalf("redirect response must not leak catalog data")
	}
}

func TestAdminRejectsBogusSession(t *testing.T) {
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/admin", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "bogus"})
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want redirect", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	resp, err := noRedirectClient().PostForm(env.server.URL+"/admin-login", url.Values{
		"email":    {testAdminEmail},
		"password": {"wrong"},
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "check your email and password") {
		t.Fatalf("expected generic failure message, got: %s", body)
	}
}

func TestLoginRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	mem := store.NewMemoryStore()
	cat, err := catalog.New(catalog.Config{Store: mem, Objects: storage.NewMemoryObjectStore()})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	accounts := account.New(mem, mem)
	if err := accounts.EnsureAdmin(testAdminEmail, testAdminPassword); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	srv, err := New(Config{
		Catalog:                 cat,
		Accounts:                accounts,
		RedisAddr:               mr.Addr(),
		LoginRateLimitPerMinute: 2,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	form := url.Values{"email": {testAdminEmail}, "password": {"wrong"}}
	for i := 0; i < 2; i++ {
		resp, err := noRedirectClient().PostForm(ts.URL+"/admin-login", form)
		if err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i, resp.StatusCode)
		}
	}
	resp, err := noRedirectClient().PostForm(ts.URL+"/admin-login", form)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Fatalf("missing Retry-After header")
	}
}

func TestLoginAndAdminFlow(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.catalog.AddService(context.Background(), "Solar"); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	session := env.login(t)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/admin", nil)
	req.AddCookie(session)
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Solar") {
		t.Fatalf("admin page missing service name")
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)

	resp := env.postForm(t, session, "/admin-logout", url.Values{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/admin", nil)
	req.AddCookie(session)
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect after logout, got %d", resp.StatusCode)
	}
}

func TestServicesPage(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.catalog.AddService(context.Background(), "Solar"); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	resp, err := http.Get(env.server.URL + "/services")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Solar") {
		t.Fatalf("services page missing service name")
	}
}

func TestServiceDetailShowsPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	svc, err := env.catalog.AddService(context.Background(), "Solar")
	if err != nil {
		t.Fatalf("seed service: %v", err)
	}
	if err := env.catalog.AddSubService(context.Background(), svc.ID, "Panel Install"); err != nil {
		t.Fatalf("seed sub-service: %v", err)
	}
	resp, err := http.Get(env.server.URL + "/service/" + svc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Panel Install") || !strings.Contains(body, "No file uploaded") {
		t.Fatalf("detail page missing placeholder: %s", body)
	}
}

func TestServiceDetailUnknown(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/service/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Service not found") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestLandingRejectsUnknownPath(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAddServiceThroughForm(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)

	resp := env.postForm(t, session, "/admin/services", url.Values{"name": {"Roofing"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	services := env.catalog.Services()
	if len(services) != 1 || services[0].Name != "Roofing" {
		t.Fatalf("unexpected services: %+v", services)
	}
}

func TestAddServiceEmptyNameIsSilent(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)

	resp := env.postForm(t, session, "/admin/services", url.Values{"name": {"   "}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if flash := flashValue(t, resp); flash != "" {
		t.Fatalf("empty name must not flash an error, got %q", flash)
	}
	if got := len(env.catalog.Services()); got != 0 {
		t.Fatalf("expected no services, got %d", got)
	}
}

func TestUploadFileThroughForm(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)
	svc, err := env.catalog.AddService(context.Background(), "Solar")
	if err != nil {
		t.Fatalf("seed service: %v", err)
	}
	if err := env.catalog.AddSubService(context.Background(), svc.ID, "Panel Install"); err != nil {
		t.Fatalf("seed sub-service: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("serviceId", svc.ID); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.WriteField("subService", "Panel Install"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := mw.CreateFormFile("file", "brochure.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 test")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/admin/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(session)
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if flash := flashValue(t, resp); flash != catalog.StatusUploaded {
		t.Fatalf("flash = %q, want %q", flash, catalog.StatusUploaded)
	}

	key := domain.FileKey{ServiceID: svc.ID, SubService: "Panel Install"}
	rec, ok, _ := env.store.GetFileRecord(key)
	if !ok {
		t.Fatalf("expected stored file record")
	}
	if rec.Name != "brochure.pdf" {
		t.Fatalf("record name = %q", rec.Name)
	}
	if env.objects.Len() != 1 {
		t.Fatalf("expected one stored object, got %d", env.objects.Len())
	}
}

func TestUploadWithoutFileFlashesStatus(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("serviceId", "svc")
	_ = mw.WriteField("subService", "sub")
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/admin/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(session)
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if flash := flashValue(t, resp); flash != catalog.StatusNoFileSelected {
		t.Fatalf("flash = %q, want %q", flash, catalog.StatusNoFileSelected)
	}
}

func TestDeleteFileWithoutUpload(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)
	svc, err := env.catalog.AddService(context.Background(), "Solar")
	if err != nil {
		t.Fatalf("seed service: %v", err)
	}
	if err := env.catalog.AddSubService(context.Background(), svc.ID, "Panel Install"); err != nil {
		t.Fatalf("seed sub-service: %v", err)
	}

	resp := env.postForm(t, session, "/admin/files/delete", url.Values{
		"serviceId":  {svc.ID},
		"subService": {"Panel Install"},
	})
	resp.Body.Close()
	if flash := flashValue(t, resp); flash != "Delete failed: no file uploaded for this sub-service" {
		t.Fatalf("flash = %q", flash)
	}
}

func TestSetPurchaseLinkThroughForm(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)
	svc, err := env.catalog.AddService(context.Background(), "Solar")
	if err != nil {
		t.Fatalf("seed service: %v", err)
	}
	if err := env.catalog.AddSubService(context.Background(), svc.ID, "Panel Install"); err != nil {
		t.Fatalf("seed sub-service: %v", err)
	}
	if _, err := env.catalog.AttachFile(context.Background(), svc.ID, "Panel Install",
		strings.NewReader("x"), "brochure.pdf", "application/pdf", 1, ""); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	resp := env.postForm(t, session, "/admin/files/link", url.Values{
		"serviceId":    {svc.ID},
		"subService":   {"Panel Install"},
		"purchaseLink": {"https://buy.example"},
	})
	resp.Body.Close()
	if flash := flashValue(t, resp); flash != catalog.StatusLinkSaved {
		t.Fatalf("flash = %q", flash)
	}
	rec, _, _ := env.store.GetFileRecord(domain.FileKey{ServiceID: svc.ID, SubService: "Panel Install"})
	if rec.PurchaseLink != "https://buy.example" {
		t.Fatalf("link = %q", rec.PurchaseLink)
	}
}

func TestSecurityHeadersOnPublicPages(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := resp.Header.Get("Content-Security-Policy"); got == "" {
		t.Fatalf("missing Content-Security-Policy header")
	}
}
