package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaginova-studio/internal/credential"
	"imaginova-studio/internal/jobs"
	"imaginova-studio/internal/media"
	"imaginova-studio/internal/session"
	"imaginova-studio/internal/studio"
)

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeRunner succeeds on every item, optionally waiting on gate first.
type fakeRunner struct {
	keys   credential.Source
	gate   chan struct{}
	result media.Asset
	gotKey string
}

func (f *fakeRunner) Run(ctx context.Context, b studio.Batch, obs studio.Observer) ([]studio.Result, error) {
	key, err := f.keys.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	f.gotKey = key

	obs(studio.Event{Kind: studio.EventBatchStart, Total: len(b.Items)})
	var results []studio.Result
	for i, it := range b.Items {
		if f.gate != nil {
			select {
			case <-f.gate:
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
		results = append(results, studio.Result{Label: it.Label, Image: f.result})
		obs(studio.Event{Kind: studio.EventItemSucceeded, Index: i, Total: len(b.Items), Label: it.Label})
	}
	obs(studio.Event{Kind: studio.EventBatchDone, Total: len(b.Items), Succeeded: len(results)})
	return results, nil
}

type testEnv struct {
	t        *testing.T
	handler  http.Handler
	jobs     *jobs.Registry
	sessions *session.Store
	photo    []byte

	mu      sync.Mutex
	runners []*fakeRunner
	gate    chan struct{}
}

func newTestEnv(t *testing.T, serverKeys credential.Source) *testEnv {
	env := &testEnv{t: t, photo: pngBytes(t, color.RGBA{200, 30, 30, 255})}
	env.jobs = jobs.NewRegistry(jobs.Options{MaxConcurrent: 4})
	t.Cleanup(env.jobs.Close)
	env.sessions = session.NewStore(session.Options{})

	srv := New(Options{
		Runners: func(keys credential.Source) jobs.BatchRunner {
			env.mu.Lock()
			defer env.mu.Unlock()
			r := &fakeRunner{keys: keys, gate: env.gate, result: media.Asset{MIMEType: "image/png", Data: env.photo}}
			env.runners = append(env.runners, r)
			return r
		},
		Jobs:       env.jobs,
		Sessions:   env.sessions,
		ServerKeys: serverKeys,
		Static:     fstest.MapFS{"index.html": {Data: []byte("<html>studio</html>")}},
	})
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// newSession issues a cookie and optionally stores a key on it.
func (e *testEnv) newSession(apiKey string) *http.Cookie {
	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/session", nil), nil)
	require.Equal(e.t, http.StatusOK, rec.Code)
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			cookie = c
		}
	}
	require.NotNil(e.t, cookie)

	if apiKey != "" {
		body := strings.NewReader(`{"api_key":"` + apiKey + `"}`)
		rec = e.do(httptest.NewRequest(http.MethodPost, "/api/session/key", body), cookie)
		require.Equal(e.t, http.StatusOK, rec.Code)
	}
	return cookie
}

func (e *testEnv) submit(cookie *http.Cookie, fields map[string]string, files ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(e.t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f, f+".png")
		require.NoError(e.t, err)
		_, err = fw.Write(e.photo)
		require.NoError(e.t, err)
	}
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/batches", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(req, cookie)
}

func (e *testEnv) waitBatch(cookie *http.Cookie, id string) batchView {
	job, ok := e.jobs.Get(id)
	require.True(e.t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := job.Wait(ctx)
	require.NoError(e.t, err)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+id+"?events=1", nil), cookie)
	require.Equal(e.t, http.StatusOK, rec.Code)
	var view batchView
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/catalog", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cat := decode[catalogView](t, rec)
	assert.Equal(t, []string{"portfolio", "magic", "founders"}, cat.Flows)
	assert.Len(t, cat.Styles, 4)
	assert.Len(t, cat.Models, 2)
	assert.Len(t, cat.Poses, 8)
	assert.Contains(t, cat.AspectRatios, "16:9")
}

func TestStaticIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "studio")
}

func TestSessionKeyRoundTrip(t *testing.T) {
	env := newTestEnv(t, credential.Static("server"))
	cookie := env.newSession("")

	view := decode[sessionView](t, env.do(httptest.NewRequest(http.MethodGet, "/api/session", nil), cookie))
	assert.False(t, view.HasKey)
	assert.True(t, view.HasServerKey)
	assert.Equal(t, "portfolio", view.Settings.Flow)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/session/key", strings.NewReader(`{"api_key":" mine "}`)), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[sessionView](t, rec).HasKey)

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/session/key", strings.NewReader(`nope`)), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitPortfolioRunsWithSessionKey(t *testing.T) {
	env := newTestEnv(t, credential.Static("server"))
	cookie := env.newSession("session-key")

	rec := env.submit(cookie, map[string]string{"flow": "portfolio", "style": "startup"}, "image")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decode[map[string]any](t, rec)
	id := accepted["id"].(string)
	assert.EqualValues(t, 6, accepted["total"])

	view := env.waitBatch(cookie, id)
	assert.Equal(t, string(jobs.StatusSucceeded), view.Status)
	require.Len(t, view.Results, 6)
	assert.Equal(t, "Modern Open Office", view.Results[0].Label)
	assert.True(t, strings.HasPrefix(view.Results[0].Image, "data:image/png;base64,"))
	require.NotEmpty(t, view.Events)
	assert.Equal(t, "Starting 6 images...", view.Events[0].Message)

	env.mu.Lock()
	assert.Equal(t, "session-key", env.runners[0].gotKey, "session key wins over the server key")
	env.mu.Unlock()

	sess := decode[sessionView](t, env.do(httptest.NewRequest(http.MethodGet, "/api/session", nil), cookie))
	assert.Equal(t, id, sess.LastBatch)
	assert.True(t, sess.Uploads["main"])
	assert.Equal(t, "startup", sess.Settings.Style)
}

func TestSubmitFallsBackToServerKey(t *testing.T) {
	env := newTestEnv(t, credential.Static("server"))
	cookie := env.newSession("")

	rec := env.submit(cookie, map[string]string{"flow": "founders"}, "founder_a", "founder_b")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	view := env.waitBatch(cookie, decode[map[string]any](t, rec)["id"].(string))
	assert.Len(t, view.Results, 3)
	env.mu.Lock()
	assert.Equal(t, "server", env.runners[0].gotKey)
	env.mu.Unlock()
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.newSession("")

	tests := []struct {
		name   string
		fields map[string]string
		files  []string
		code   string
		msg    string
	}{
		{"missing photo", map[string]string{"flow": "portfolio"}, nil, "invalid_input", "Please upload a main image."},
		{"missing instruction", map[string]string{"flow": "magic"}, []string{"image"}, "invalid_input", "Please describe your edit."},
		{"missing founder", map[string]string{"flow": "founders"}, []string{"founder_a"}, "invalid_input", "Please upload photos for both founders."},
		{"bad flow", map[string]string{"flow": "collage"}, nil, "invalid_input", `Unknown flow "collage".`},
		{"bad ratio", map[string]string{"aspect_ratio": "wide"}, nil, "invalid_input", `Invalid aspect ratio "wide".`},
		{"no key", map[string]string{"flow": "portfolio"}, []string{"image"}, "missing_key", missingKeyMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.submit(cookie, tt.fields, tt.files...)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			got := decode[apiError](t, rec)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.msg, got.Error)
		})
	}
}

func TestSubmitMagicAppliesSettings(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.newSession("k")

	rec := env.submit(cookie, map[string]string{
		"flow":         "magic",
		"prompt":       "add neon signs",
		"pose":         "Side profile view",
		"aspect_ratio": "3:4",
		"brightness":   "150",
		"warmth":       "10",
		"model":        "flux",
	}, "image", "object")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	env.waitBatch(cookie, decode[map[string]any](t, rec)["id"].(string))

	sess := env.sessions.Get(cookie.Value)
	assert.Equal(t, "add neon signs", sess.Settings.Instruction)
	assert.Equal(t, "Side profile view", sess.Pose)
	assert.Equal(t, "3:4", sess.Settings.AspectRatio)
	assert.Equal(t, 100, sess.Settings.Adjustments.Brightness)
	assert.Equal(t, 50, sess.Settings.Adjustments.Contrast)
	assert.Equal(t, 10, sess.Settings.Adjustments.Warmth)
	assert.Equal(t, "flux-style", sess.Settings.Model)
	assert.False(t, sess.Object.IsZero())
}

func TestBusyCancelAndOwnership(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gate = make(chan struct{})
	cookie := env.newSession("k")

	rec := env.submit(cookie, nil, "image")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = env.submit(cookie, nil, "image")
	assert.Equal(t, http.StatusConflict, rec.Code)

	sess := decode[sessionView](t, env.do(httptest.NewRequest(http.MethodGet, "/api/session", nil), cookie))
	assert.Equal(t, id, sess.ActiveBatch)

	stranger := env.newSession("")
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+id, nil), stranger)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+id+"/cancel", nil), stranger)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.gate <- struct{}{}
	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+id+"/cancel", nil), cookie)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	view := env.waitBatch(cookie, id)
	assert.Equal(t, string(jobs.StatusCanceled), view.Status)
	assert.Len(t, view.Results, 1, "first image survives the cancel")
}

func TestContactSheetDownload(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.newSession("k")

	rec := env.submit(cookie, nil, "image")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)
	env.waitBatch(cookie, id)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+id+"/contact-sheet", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("content-type"))
	assert.Contains(t, rec.Header().Get("content-disposition"), "imaginova-portfolio-")

	cfg, format, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 2480, cfg.Width)
}

func TestEventsWebsocket(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gate = make(chan struct{})
	cookie := env.newSession("k")

	rec := env.submit(cookie, map[string]string{"flow": "founders"}, "founder_a", "founder_b")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	header := http.Header{}
	header.Set("Cookie", cookieName+"="+cookie.Value)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/batches/" + id + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	go func() {
		for i := 0; i < 3; i++ {
			env.gate <- struct{}{}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var types []string
	var final finalMessage
	for {
		var raw map[string]json.RawMessage
		require.NoError(t, conn.ReadJSON(&raw))
		var typ string
		require.NoError(t, json.Unmarshal(raw["type"], &typ))
		types = append(types, typ)
		if typ == "final" {
			require.NoError(t, json.Unmarshal(raw["batch"], &final.Batch))
			break
		}
	}

	assert.Equal(t, "batch_start", types[0])
	assert.Equal(t, "final", types[len(types)-1])
	assert.Contains(t, types, "batch_done")
	assert.Equal(t, string(jobs.StatusSucceeded), final.Batch.Status)
	assert.Len(t, final.Batch.Results, 3)
}

func TestEventsUnknownBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.newSession("")
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/batches/missing/events", nil), cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSameHost(t *testing.T) {
	assert.True(t, sameHost("http://localhost:8080", "localhost:8080"))
	assert.True(t, sameHost("https://studio.example", "studio.example"))
	assert.False(t, sameHost("https://evil.example", "studio.example"))
}
