package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"imaginova-studio/internal/contactsheet"
	"imaginova-studio/internal/credential"
	"imaginova-studio/internal/jobs"
	"imaginova-studio/internal/session"
	"imaginova-studio/internal/studio"
	"imaginova-studio/internal/telegram"
)

// progressEvery bounds how often the progress message is edited.
const progressEvery = 3 * time.Second

func (h *Handler) keys(id string) credential.Source {
	chain := credential.Chain{h.sessions.KeySource(id)}
	if h.serverKeys != nil {
		chain = append(chain, h.serverKeys)
	}
	return chain
}

func (h *Handler) startBatch(ctx context.Context, chatID, userID int64) error {
	id := sessionID(chatID, userID)
	sess := h.sessions.Update(id, func(s *session.Session) { s.Wizard.Pending = false })

	b, err := sess.Inputs().Batch()
	if err != nil {
		return h.tg.SendText(chatID, "❌ "+studio.UserMessage(err))
	}

	keys := h.keys(id)
	if _, err := keys.APIKey(ctx); err != nil {
		if errors.Is(err, credential.ErrMissing) {
			return h.tg.SendText(chatID, "🔑 Please select an API key first: send /key <your Gemini API key>.")
		}
		return err
	}

	job, err := h.jobs.Submit(id, b, h.runner.WithKeys(keys))
	if errors.Is(err, jobs.ErrBusy) {
		return h.tg.SendText(chatID, "⏳ A batch is already running. Send /cancel to stop it.")
	}
	if err != nil {
		return err
	}
	h.sessions.Update(id, func(s *session.Session) { s.LastJobID = job.ID })

	msgID, err := h.tg.SendTextMessage(chatID, fmt.Sprintf("🎨 Starting %d images. This takes a while: the studio paces its calls to stay within the API limits.", job.Total))
	if err != nil {
		h.logger.Warn("progress message failed", "job_id", job.ID, "err", err)
	}

	go h.follow(chatID, msgID, job)
	return nil
}

// follow mirrors job progress into one edited message and delivers the
// results when the batch returns.
func (h *Handler) follow(chatID int64, msgID int, job *jobs.Job) {
	log := h.logger.With("job_id", job.ID, "chat_id", chatID)

	_, events, unsubscribe := job.Subscribe()
	defer unsubscribe()

	limiter := rate.NewLimiter(rate.Every(progressEvery), 1)
	for ev := range events {
		if msgID == 0 || ev.Kind == studio.EventBatchDone || !limiter.Allow() {
			continue
		}
		if err := h.tg.EditText(chatID, msgID, "⏳ "+studio.Describe(ev)); err != nil {
			log.Debug("progress edit failed", "err", err)
		}
	}

	<-job.Done()
	snap := job.Snapshot()

	if msgID != 0 {
		_ = h.tg.EditText(chatID, msgID, summary(snap))
	}

	if len(snap.Results) > 0 {
		photos := make([]telegram.Photo, 0, len(snap.Results))
		for _, r := range snap.Results {
			photos = append(photos, telegram.Photo{Image: r.Image, Caption: r.Label})
		}
		if err := h.tg.SendAlbum(chatID, photos); err != nil {
			log.Error("send results failed", "err", err)
			_ = h.tg.SendText(chatID, "❌ Could not send the images. Try /sheet for a contact sheet.")
			return
		}
		_ = h.tg.SendText(chatID, "Send /sheet for a printable contact sheet.")
		return
	}

	if snap.Err != nil && snap.Status != jobs.StatusCanceled {
		_ = h.tg.SendText(chatID, "❌ "+studio.UserMessage(snap.Err))
	}
}

func summary(snap jobs.Snapshot) string {
	switch snap.Status {
	case jobs.StatusCanceled:
		return fmt.Sprintf("⏹ Stopped after %d of %d images.", len(snap.Results), snap.Total)
	case jobs.StatusFailed:
		if len(snap.Results) == 0 {
			return "❌ No images were generated."
		}
		return fmt.Sprintf("⚠️ Finished early: %d of %d images.", len(snap.Results), snap.Total)
	}
	return fmt.Sprintf("✅ Done: %d of %d images.", len(snap.Results), snap.Total)
}

func (h *Handler) cancel(chatID, userID int64) error {
	id := sessionID(chatID, userID)
	h.sessions.Update(id, func(s *session.Session) {
		s.Wizard.Awaiting = ""
		s.Wizard.Pending = false
	})

	job, ok := h.jobs.Active(id)
	if !ok {
		return h.tg.SendText(chatID, "Nothing is running.")
	}
	if err := h.jobs.Cancel(id, job.ID); err != nil {
		return err
	}
	return h.tg.SendText(chatID, "⏹ Stopping. Images finished so far will still be sent.")
}

func (h *Handler) sendSheet(chatID, userID int64) error {
	sess := h.sessions.Get(sessionID(chatID, userID))
	if sess.LastJobID == "" {
		return h.tg.SendText(chatID, "No batch yet. Start one with /portfolio, /magic or /founders.")
	}
	job, ok := h.jobs.Get(sess.LastJobID)
	if !ok {
		return h.tg.SendText(chatID, "The last batch has expired. Start a new one.")
	}
	snap := job.Snapshot()
	if snap.Status == jobs.StatusRunning {
		return h.tg.SendText(chatID, "⏳ The batch is still running.")
	}

	cells := sheetCells(snap.Results)
	if len(cells) == 0 {
		return h.tg.SendText(chatID, "The last batch has no images.")
	}

	h.tg.SendTyping(chatID)
	sheet, err := contactsheet.Render(cells)
	if err != nil {
		h.logger.Error("contact sheet failed", "job_id", job.ID, "err", err)
		return h.tg.SendText(chatID, "❌ Could not build the contact sheet.")
	}
	name := contactsheet.FileName(string(snap.Flow), time.Now())
	return h.tg.SendDocument(chatID, sheet, name, "Imaginova Studio contact sheet")
}

func sheetCells(results []studio.Result) []contactsheet.Cell {
	if len(results) > contactsheet.MaxCells {
		results = results[:contactsheet.MaxCells]
	}
	cells := make([]contactsheet.Cell, 0, len(results))
	for _, r := range results {
		cells = append(cells, contactsheet.Cell{Label: r.Label, Image: r.Image})
	}
	return cells
}
