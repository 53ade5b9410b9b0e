package web

import (
	"net/http"
	"strconv"

	"github.com/ychsieh/realprice/internal/dataset"
	"github.com/ychsieh/realprice/internal/logging"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"ok": true})
}

// handleManifest returns the derived dataset index: period, cities, table
// files per city and the transaction type metadata.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Manifest()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, m)
}

// handleDistricts returns the distinct districts of one primary table.
func (s *Server) handleDistricts(w http.ResponseWriter, r *http.Request) {
	city, typ := tableParams(r)
	res, err := s.store.Districts(r.Context(), city, typ)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// handleList returns one filtered page of a primary table.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	city, typ := tableParams(r)
	opts := dataset.NewQueryOptions(city, typ)
	opts.Page = intParam(r, "page", 1)
	opts.Limit = intParam(r, "limit", dataset.DefaultLimit)
	opts.Keyword = r.URL.Query().Get("keyword")
	opts.District = r.URL.Query().Get("district")
	opts.IncludeBuilding = boolParam(r, "includeBuilding", true)
	opts.IncludeLand = boolParam(r, "includeLand", true)

	res, err := s.store.Query(r.Context(), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// handleDetail returns one primary row joined with its child table rows.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	city, typ := tableParams(r)
	id := r.URL.Query().Get("id")

	res, err := s.store.Detail(r.Context(), city, typ, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// uploadResponse is the success body of the upload endpoint.
type uploadResponse struct {
	OK             bool   `json:"ok"`
	Period         string `json:"period"`
	PeriodFriendly string `json:"periodFriendly"`
}

// handleUpload ingests an uploaded archive as the new dataset. The raw
// archive bytes form the request body; the desired file name travels in the
// X-Filename header. The store enforces the byte ceiling incrementally, and
// MaxBytesReader backs it up at the transport level.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := r.Header.Get("X-Filename")
	if name == "" {
		name = "upload.zip"
	}
	body := http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxArchiveSize+1)

	res, err := s.store.Ingest(r.Context(), body, name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("dataset replaced",
		"file", name,
		"period", res.Period,
	)
	writeJSON(w, uploadResponse{
		OK:             true,
		Period:         res.Period,
		PeriodFriendly: res.PeriodFriendly,
	})
}

// tableParams reads the city and type query parameters, defaulting to
// Taipei buy/sell transactions.
func tableParams(r *http.Request) (city, typ string) {
	q := r.URL.Query()
	city, typ = q.Get("city"), q.Get("type")
	if city == "" {
		city = "a"
	}
	if typ == "" {
		typ = "a"
	}
	return city, typ
}

// intParam parses an integer query parameter, falling back to def on absent
// or unparseable values. Range clamping happens in the dataset layer.
func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// boolParam parses a boolean query parameter, falling back to def.
func boolParam(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
