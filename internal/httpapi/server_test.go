package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rotoforge/internal/store"
	"rotoforge/internal/track"
	"rotoforge/pkg/types"
)

// fakeService provides canned responses for router tests.
type fakeService struct {
	generateErr error
	trackErr    error
	preview     *image.Gray
	changedDocs []types.DocumentState
}

func (f *fakeService) Generate(_ context.Context, req types.GenerateRequest) (types.OperationResponse, error) {
	if f.generateErr != nil {
		return types.OperationResponse{}, f.generateErr
	}
	return types.OperationResponse{Path: store.LayerKey(req.Project, req.Layer), Message: "ok"}, nil
}

func (f *fakeService) TrackStart(types.TrackRequest) (types.OperationResponse, error) {
	if f.trackErr != nil {
		return types.OperationResponse{}, f.trackErr
	}
	return types.OperationResponse{Message: "tracking started"}, nil
}

func (f *fakeService) TrackCancel() (types.OperationResponse, error) {
	return types.OperationResponse{Message: "tracking cancelled"}, nil
}

func (f *fakeService) Bake(context.Context, types.BakeRequest) (types.OperationResponse, error) {
	return types.OperationResponse{Message: "baked"}, nil
}

func (f *fakeService) FreeCache() (types.OperationResponse, error) {
	return types.OperationResponse{Message: "freed"}, nil
}

func (f *fakeService) Status() types.StatusResponse {
	return types.StatusResponse{Session: types.SessionStatus{State: track.StateIdle}}
}

func (f *fakeService) Preview() (*image.Gray, int, bool) {
	if f.preview == nil {
		return nil, 0, false
	}
	return f.preview, 7, true
}

func (f *fakeService) Mask(key string) (*image.Gray, error) {
	if key != "ProjectX/MaskLayers/LayerY" {
		return nil, store.ErrNotFound(key)
	}
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

func (f *fakeService) DocumentWillLoad() {}

func (f *fakeService) DocumentLoaded(_ context.Context, doc types.DocumentState) error {
	return nil
}

func (f *fakeService) DocumentChanged(_ context.Context, doc types.DocumentState) error {
	f.changedDocs = append(f.changedDocs, doc)
	return nil
}

func (f *fakeService) Ready() bool { return true }

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	h := NewMux(&fakeService{}, NewBroker())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp types.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.State != track.StateIdle {
		t.Fatalf("unexpected session state %q", resp.Session.State)
	}
}

func TestGenerateValidation(t *testing.T) {
	h := NewMux(&fakeService{}, NewBroker())

	rec := postJSON(t, h, "/generate", `{"project":"","layer":"L","source":"a.png"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing project = %d, want 400", rec.Code)
	}
	rec = postJSON(t, h, "/generate", `{"project":"P","layer":"L","source":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing source = %d, want 400", rec.Code)
	}
	rec = postJSON(t, h, "/generate", `{bad json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{}`))
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("missing content type = %d, want 415", rec2.Code)
	}
}

func TestGenerateSuccess(t *testing.T) {
	h := NewMux(&fakeService{}, NewBroker())
	rec := postJSON(t, h, "/generate", `{"project":"P","layer":"L","source":"a.png"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp types.OperationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Path != "P/MaskLayers/L" {
		t.Fatalf("unexpected path %q", resp.Path)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.ErrNotFound("P/MaskLayers/L"), http.StatusNotFound},
		{"sync conflict", store.ErrSyncConflict("two changes"), http.StatusConflict},
	}
	for _, tc := range cases {
		h := NewMux(&fakeService{generateErr: tc.err}, NewBroker())
		rec := postJSON(t, h, "/generate", `{"project":"P","layer":"L","source":"a.png"}`)
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
		var resp types.ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if resp.Code != tc.want {
			t.Fatalf("%s: payload code = %d, want %d", tc.name, resp.Code, tc.want)
		}
	}
}

func TestTrackStartConflict(t *testing.T) {
	h := NewMux(&fakeService{trackErr: track.ErrSessionActive("P/MaskLayers/L")}, NewBroker())
	rec := postJSON(t, h, "/track/start", `{"project":"P","layer":"L","source_pattern":"f.%04d.png"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc, NewBroker())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no preview = %d, want 404", rec.Code)
	}

	svc.preview = image.NewGray(image.Rect(0, 0, 8, 8))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("preview = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q, want image/png", ct)
	}
	if rec.Header().Get("X-Preview-Frame") != "7" {
		t.Fatalf("frame header = %q, want 7", rec.Header().Get("X-Preview-Frame"))
	}
}

func TestMaskByKey(t *testing.T) {
	h := NewMux(&fakeService{}, NewBroker())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/masks/ProjectX/MaskLayers/LayerY", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("known mask = %d, want 200", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("mask body is not a PNG")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/masks/Nope/MaskLayers/Gone", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown mask = %d, want 404", rec.Code)
	}
}

func TestDocumentChanged(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc, NewBroker())
	rec := postJSON(t, h, "/document/changed", `{"projects":[{"name":"P","layers":[]}],"current_frame":5}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(svc.changedDocs) != 1 || svc.changedDocs[0].CurrentFrame != 5 {
		t.Fatalf("snapshot not forwarded: %+v", svc.changedDocs)
	}
}

func TestHealthAndReady(t *testing.T) {
	h := NewMux(&fakeService{}, NewBroker())
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s = %d, want 200", path, rec.Code)
		}
	}
}
