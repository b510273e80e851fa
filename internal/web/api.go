package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"imaginova-studio/internal/contactsheet"
	"imaginova-studio/internal/credential"
	"imaginova-studio/internal/jobs"
	"imaginova-studio/internal/media"
	"imaginova-studio/internal/prompt"
	"imaginova-studio/internal/session"
	"imaginova-studio/internal/studio"
)

const missingKeyMessage = "Please select an API key first."

var uploadFields = []string{"image", "object", "founder_a", "founder_b"}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogView{
		Flows:        []string{string(prompt.FlowPortfolio), string(prompt.FlowMagic), string(prompt.FlowFounders)},
		Styles:       options(prompt.Styles()),
		Models:       options(prompt.Models()),
		Poses:        prompt.Poses(),
		AspectRatios: prompt.AspectRatios(),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	sess := s.sessions.Get(id)

	active := ""
	if job, ok := s.jobs.Active(id); ok {
		active = job.ID
	}
	writeJSON(w, http.StatusOK, newSessionView(sess, s.hasServerKey(r), active))
}

func (s *Server) handleSessionKey(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)

	var body struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json body"})
		return
	}

	key := strings.TrimSpace(body.APIKey)
	sess := s.sessions.Update(id, func(sess *session.Session) { sess.APIKey = key })
	s.logger.Info("session key updated", "session", id, "has_key", key != "")
	writeJSON(w, http.StatusOK, newSessionView(sess, s.hasServerKey(r), ""))
}

func (s *Server) hasServerKey(r *http.Request) bool {
	if s.serverKeys == nil {
		return false
	}
	_, err := s.serverKeys.APIKey(r.Context())
	return err == nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	uploads := make(map[session.Slot]media.Asset)
	for _, field := range uploadFields {
		asset, ok, err := readUpload(r, field)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: fmt.Sprintf("failed to read %s", field)})
			return
		}
		if ok {
			slot, _ := session.ParseSlot(field)
			uploads[slot] = asset
		}
	}

	var formErr error
	sess := s.sessions.Update(id, func(sess *session.Session) {
		formErr = applyForm(sess, r)
		for slot, a := range uploads {
			sess.SetUpload(slot, a)
		}
	})
	if formErr != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: formErr.Error(), Code: "invalid_input"})
		return
	}

	batch, err := sess.Inputs().Batch()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: studio.UserMessage(err), Code: "invalid_input"})
		return
	}

	keys := credential.Chain{s.sessions.KeySource(id), s.serverKeys}
	if _, err := keys.APIKey(r.Context()); err != nil {
		if errors.Is(err, credential.ErrMissing) {
			writeJSON(w, http.StatusBadRequest, apiError{Error: missingKeyMessage, Code: "missing_key"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to resolve api key"})
		return
	}

	job, err := s.jobs.Submit(id, batch, s.runners(keys))
	if err != nil {
		if errors.Is(err, jobs.ErrBusy) {
			writeJSON(w, http.StatusConflict, apiError{Error: "A generation is already running.", Code: "busy"})
			return
		}
		s.logger.Error("submit batch failed", "session", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to start generation"})
		return
	}

	s.sessions.Update(id, func(sess *session.Session) { sess.LastJobID = job.ID })
	writeJSON(w, http.StatusAccepted, map[string]any{"id": job.ID, "flow": string(batch.Flow), "total": job.Total})
}

// applyForm copies the submitted settings onto sess. Absent fields keep
// their previous value.
func applyForm(sess *session.Session, r *http.Request) error {
	o := &sess.Settings

	if v, ok := formValue(r, "flow"); ok && v != "" {
		flow, valid := prompt.ParseFlow(v)
		if !valid {
			return fmt.Errorf("Unknown flow %q.", v)
		}
		o.Flow = flow
	}
	if v, ok := formValue(r, "style"); ok && v != "" {
		if _, valid := prompt.PortfolioThemes(v); !valid {
			return fmt.Errorf("Unknown photoshoot style %q.", v)
		}
		o.Style = strings.ToLower(v)
	}
	if v, ok := formValue(r, "model"); ok && v != "" {
		o.Model = prompt.ParseArgs(v, prompt.Options{Model: o.Model}).Model
	}
	if v, ok := formValue(r, "prompt"); ok {
		o.Instruction = v
	}
	if v, ok := formValue(r, "pose"); ok {
		sess.Pose = v
	}
	if v, ok := formValue(r, "aspect_ratio"); ok && v != "" {
		norm := prompt.NormalizeAspectRatio(v)
		if norm == "" {
			return fmt.Errorf("Invalid aspect ratio %q.", v)
		}
		o.AspectRatio = norm
	}

	sliders := []struct {
		field string
		dst   *int
	}{
		{"brightness", &o.Adjustments.Brightness},
		{"contrast", &o.Adjustments.Contrast},
		{"warmth", &o.Adjustments.Warmth},
	}
	for _, sl := range sliders {
		v, ok := formValue(r, sl.field)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("Invalid %s value %q.", sl.field, v)
		}
		*sl.dst = n
	}
	o.Adjustments = o.Adjustments.Clamp()
	return nil
}

func formValue(r *http.Request, key string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return strings.TrimSpace(values[0]), true
}

func readUpload(r *http.Request, field string) (media.Asset, bool, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return media.Asset{}, false, nil
	}
	if err != nil {
		return media.Asset{}, false, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return media.Asset{}, false, err
	}
	asset, err := media.FromBytes(data, header.Header.Get("Content-Type"))
	if err != nil {
		return media.Asset{}, false, err
	}
	return asset, true, nil
}

// ownedJob resolves {id} and hides jobs of other sessions.
func (s *Server) ownedJob(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	id := s.sessionID(w, r)
	job, ok := s.jobs.Get(mux.Vars(r)["id"])
	if !ok || job.Owner != id {
		writeJSON(w, http.StatusNotFound, apiError{Error: "batch not found"})
		return nil, false
	}
	return job, true
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newBatchView(job.Snapshot(), r.URL.Query().Get("events") == "1"))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	if err := s.jobs.Cancel(job.Owner, job.ID); err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "batch not found"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "status": "canceling"})
}

func (s *Server) handleContactSheet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}

	snap := job.Snapshot()
	if len(snap.Results) == 0 {
		writeJSON(w, http.StatusConflict, apiError{Error: "no images to download yet"})
		return
	}

	cells := make([]contactsheet.Cell, 0, contactsheet.MaxCells)
	for _, res := range snap.Results {
		if len(cells) == contactsheet.MaxCells {
			break
		}
		cells = append(cells, contactsheet.Cell{Label: res.Label, Image: res.Image})
	}

	sheet, err := contactsheet.Render(cells)
	if err != nil {
		s.logger.Error("contact sheet render failed", "job_id", job.ID, "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to render contact sheet"})
		return
	}

	name := contactsheet.FileName(string(snap.Flow), time.Now())
	w.Header().Set("content-type", sheet.MIMEType)
	w.Header().Set("content-disposition", fmt.Sprintf(`attachment; filename=%q`, name))
	w.Header().Set("content-length", strconv.Itoa(len(sheet.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sheet.Data)
}
