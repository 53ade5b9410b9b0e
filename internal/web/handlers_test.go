package web

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ychsieh/realprice/internal/config"
	"github.com/ychsieh/realprice/internal/dataset"
)

func newTestServer(t *testing.T) (*Server, *dataset.Store) {
	t.Helper()
	store, err := dataset.NewStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = time.Minute
	cfg.Upload.MaxArchiveSize = dataset.DefaultMaxArchiveBytes
	return NewServer(store, cfg), store
}

func doGet(t *testing.T, s *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func writeDataset(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

const sampleTable = "編號,鄉鎮市區,備註\n1,A,x\n2,B,y\n3,A,z\n"

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doGet(t, s, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]bool
	decode(t, rec, &body)
	if !body["ok"] {
		t.Errorf("body = %v", body)
	}
}

func TestManifestEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	writeDataset(t, store.Root(), map[string]string{
		"manifest.csv": "name\na_lvr_land_a.csv\nf_lvr_land_b.csv\n",
	})

	rec := doGet(t, s, "/api/manifest")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var m struct {
		Cities []struct {
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"cities"`
	}
	decode(t, rec, &m)
	if len(m.Cities) != 2 || m.Cities[0].Code != "a" || m.Cities[0].Name != "臺北市" {
		t.Errorf("cities = %+v", m.Cities)
	}
}

func TestListEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	writeDataset(t, store.Root(), map[string]string{
		"a_lvr_land_a.csv": sampleTable,
	})

	t.Run("district paging", func(t *testing.T) {
		rec := doGet(t, s, "/api/list?city=a&type=a&district=A&limit=1&page=2")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
		}
		var body struct {
			Header []string   `json:"header"`
			Rows   [][]string `json:"rows"`
			Total  int        `json:"total"`
			Page   int        `json:"page"`
			Limit  int        `json:"limit"`
		}
		decode(t, rec, &body)
		if body.Total != 2 || body.Page != 2 || body.Limit != 1 {
			t.Errorf("total/page/limit = %d/%d/%d", body.Total, body.Page, body.Limit)
		}
		if len(body.Rows) != 1 || body.Rows[0][0] != "3" {
			t.Errorf("rows = %v", body.Rows)
		}
	})

	t.Run("defaults applied for absent params", func(t *testing.T) {
		rec := doGet(t, s, "/api/list")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var body struct {
			Total int `json:"total"`
			Page  int `json:"page"`
			Limit int `json:"limit"`
		}
		decode(t, rec, &body)
		if body.Total != 3 || body.Page != 1 || body.Limit != dataset.DefaultLimit {
			t.Errorf("total/page/limit = %d/%d/%d", body.Total, body.Page, body.Limit)
		}
	})

	t.Run("unparseable params fall back", func(t *testing.T) {
		rec := doGet(t, s, "/api/list?page=abc&limit=xyz")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("invalid type is a bad request", func(t *testing.T) {
		rec := doGet(t, s, "/api/list?city=a&type=zzz")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("empty dataset lists empty", func(t *testing.T) {
		rec := doGet(t, s, "/api/list?city=q&type=a")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var body struct {
			Total int        `json:"total"`
			Rows  [][]string `json:"rows"`
		}
		decode(t, rec, &body)
		if body.Total != 0 || len(body.Rows) != 0 {
			t.Errorf("body = %+v", body)
		}
	})
}

func TestDistrictsEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	writeDataset(t, store.Root(), map[string]string{
		"a_lvr_land_a.csv": "編號,鄉鎮市區\n1,大安區\n2,中正區\n3,大安區\n",
	})

	rec := doGet(t, s, "/api/districts?city=a&type=a")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Districts []string `json:"districts"`
	}
	decode(t, rec, &body)
	if len(body.Districts) != 2 {
		t.Errorf("districts = %v", body.Districts)
	}
}

func TestDetailEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	writeDataset(t, store.Root(), map[string]string{
		"a_lvr_land_a.csv":      "編號,鄉鎮市區\n101,中正區\n",
		"a_lvr_land_a_land.csv": "編號,面積\n101,120.5\n",
	})

	t.Run("joined row", func(t *testing.T) {
		rec := doGet(t, s, "/api/detail?city=a&type=a&id=101")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
		}
		var body struct {
			Row     []string `json:"row"`
			Details struct {
				Land [][]string `json:"land"`
				Park [][]string `json:"park"`
			} `json:"details"`
		}
		decode(t, rec, &body)
		if len(body.Row) == 0 || body.Row[0] != "101" {
			t.Errorf("row = %v", body.Row)
		}
		if len(body.Details.Land) != 1 {
			t.Errorf("land = %v", body.Details.Land)
		}
		if body.Details.Park == nil {
			t.Error("park must serialize as an empty array, not null")
		}
	})

	t.Run("missing id is a bad request", func(t *testing.T) {
		rec := doGet(t, s, "/api/detail?city=a&type=a")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		var body struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		}
		decode(t, rec, &body)
		if body.OK || body.Error == "" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		rec := doGet(t, s, "/api/detail?city=a&type=a&id=999")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func buildUploadZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestUploadEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("round trip", func(t *testing.T) {
		archive := buildUploadZip(t, map[string]string{
			"manifest.csv":     "name\na_lvr_land_a.csv\n",
			"a_lvr_land_a.csv": sampleTable,
		})
		req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(archive))
		req.Header.Set("X-Filename", "lvr_landcsv.zip")
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
		}
		var body struct {
			OK bool `json:"ok"`
		}
		decode(t, rec, &body)
		if !body.OK {
			t.Errorf("body = %+v", body)
		}

		list := doGet(t, s, "/api/list?city=a&type=a")
		var res struct {
			Total int `json:"total"`
		}
		decode(t, list, &res)
		if res.Total != 3 {
			t.Errorf("total after upload = %d, want 3", res.Total)
		}
	})

	t.Run("corrupt archive", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader([]byte("not an archive")))
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})
}

func TestUploadTooLarge(t *testing.T) {
	store, err := dataset.NewStore(t.TempDir(), 32)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = time.Minute
	cfg.Upload.MaxArchiveSize = 32
	s := NewServer(store, cfg)

	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(make([]byte, 128)))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)

	if !rl.allow("1.2.3.4:5678") || !rl.allow("1.2.3.4:5678") {
		t.Fatal("first two requests must pass")
	}
	if rl.allow("1.2.3.4:5678") {
		t.Error("third request must be limited")
	}
	if !rl.allow("9.8.7.6:5432") {
		t.Error("other clients are unaffected")
	}
}
