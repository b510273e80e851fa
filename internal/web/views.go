package web

import (
	"time"

	"imaginova-studio/internal/jobs"
	"imaginova-studio/internal/prompt"
	"imaginova-studio/internal/session"
	"imaginova-studio/internal/studio"
)

type optionView struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type catalogView struct {
	Flows        []string     `json:"flows"`
	Styles       []optionView `json:"styles"`
	Models       []optionView `json:"models"`
	Poses        []string     `json:"poses"`
	AspectRatios []string     `json:"aspect_ratios"`
}

func options(in []prompt.NamedOption) []optionView {
	out := make([]optionView, 0, len(in))
	for _, o := range in {
		out = append(out, optionView{Key: o.Key, Name: o.Name})
	}
	return out
}

type adjustmentsView struct {
	Brightness int `json:"brightness"`
	Contrast   int `json:"contrast"`
	Warmth     int `json:"warmth"`
}

type settingsView struct {
	Flow        string          `json:"flow"`
	Style       string          `json:"style"`
	Model       string          `json:"model"`
	AspectRatio string          `json:"aspect_ratio"`
	Instruction string          `json:"prompt"`
	Pose        string          `json:"pose"`
	Adjustments adjustmentsView `json:"adjustments"`
}

type sessionView struct {
	HasKey       bool            `json:"has_key"`
	HasServerKey bool            `json:"has_server_key"`
	Settings     settingsView    `json:"settings"`
	Uploads      map[string]bool `json:"uploads"`
	ActiveBatch  string          `json:"active_batch,omitempty"`
	LastBatch    string          `json:"last_batch,omitempty"`
}

func newSessionView(sess session.Session, hasServerKey bool, active string) sessionView {
	o := sess.Settings
	return sessionView{
		HasKey:       sess.APIKey != "",
		HasServerKey: hasServerKey,
		Settings: settingsView{
			Flow:        string(o.Flow),
			Style:       o.Style,
			Model:       o.Model,
			AspectRatio: o.AspectRatio,
			Instruction: o.Instruction,
			Pose:        sess.Pose,
			Adjustments: adjustmentsView{
				Brightness: o.Adjustments.Brightness,
				Contrast:   o.Adjustments.Contrast,
				Warmth:     o.Adjustments.Warmth,
			},
		},
		Uploads: map[string]bool{
			string(session.SlotMain):     !sess.Main.IsZero(),
			string(session.SlotObject):   !sess.Object.IsZero(),
			string(session.SlotFounderA): !sess.FounderA.IsZero(),
			string(session.SlotFounderB): !sess.FounderB.IsZero(),
		},
		ActiveBatch: active,
		LastBatch:   sess.LastJobID,
	}
}

type eventView struct {
	Type         string    `json:"type"`
	Index        int       `json:"index"`
	Total        int       `json:"total"`
	Label        string    `json:"label,omitempty"`
	Attempt      int       `json:"attempt,omitempty"`
	MaxAttempts  int       `json:"max_attempts,omitempty"`
	DelaySeconds float64   `json:"delay_seconds,omitempty"`
	Succeeded    int       `json:"succeeded,omitempty"`
	Message      string    `json:"message"`
	Error        string    `json:"error,omitempty"`
	Time         time.Time `json:"time"`
}

func newEventView(ev studio.Event) eventView {
	v := eventView{
		Type:         string(ev.Kind),
		Index:        ev.Index,
		Total:        ev.Total,
		Label:        ev.Label,
		Attempt:      ev.Attempt,
		MaxAttempts:  ev.MaxAttempts,
		DelaySeconds: ev.Delay.Seconds(),
		Succeeded:    ev.Succeeded,
		Message:      studio.Describe(ev),
		Time:         ev.Timestamp,
	}
	if ev.Err != nil {
		v.Error = ev.Err.Error()
	}
	return v
}

type resultView struct {
	Label string `json:"label"`
	Image string `json:"image"`
}

type batchView struct {
	ID         string       `json:"id"`
	Flow       string       `json:"flow"`
	Status     string       `json:"status"`
	Total      int          `json:"total"`
	Results    []resultView `json:"results"`
	Events     []eventView  `json:"events,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

func newBatchView(snap jobs.Snapshot, withEvents bool) batchView {
	v := batchView{
		ID:        snap.ID,
		Flow:      string(snap.Flow),
		Status:    string(snap.Status),
		Total:     snap.Total,
		Results:   make([]resultView, 0, len(snap.Results)),
		CreatedAt: snap.CreatedAt,
	}
	for _, r := range snap.Results {
		v.Results = append(v.Results, resultView{Label: r.Label, Image: r.Image.DataURL()})
	}
	if withEvents {
		for _, ev := range snap.Events {
			v.Events = append(v.Events, newEventView(ev))
		}
	}
	if snap.Err != nil {
		v.Error = studio.UserMessage(snap.Err)
	}
	if !snap.FinishedAt.IsZero() {
		t := snap.FinishedAt
		v.FinishedAt = &t
	}
	return v
}
