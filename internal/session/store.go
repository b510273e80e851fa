package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"imaginova-studio/internal/credential"
	"imaginova-studio/internal/media"
	"imaginova-studio/internal/prompt"
	"imaginova-studio/internal/studio"
)

// Slot names an upload position.
type Slot string

const (
	SlotMain     Slot = "main"
	SlotObject   Slot = "object"
	SlotFounderA Slot = "founder_a"
	SlotFounderB Slot = "founder_b"
)

func ParseSlot(value string) (Slot, bool) {
	switch s := Slot(strings.ToLower(strings.TrimSpace(value))); s {
	case SlotMain, SlotObject, SlotFounderA, SlotFounderB:
		return s, true
	case "image":
		return SlotMain, true
	}
	return "", false
}

// Wizard is the chat-menu state of a Telegram session.
type Wizard struct {
	Menu      string // "main" | "flow" | "style" | "model" | "ratio" | "adjust" | "pose"
	Awaiting  string // "" | a Slot | "instruction"
	MessageID int
	// Pending starts the batch as soon as the inputs are complete.
	Pending bool
}

type Session struct {
	ID string

	Settings prompt.Options
	Pose     string

	Main     media.Asset
	Object   media.Asset
	FounderA media.Asset
	FounderB media.Asset

	APIKey    string
	LastJobID string
	Wizard    Wizard

	UpdatedAt time.Time
}

func (s *Session) SetUpload(slot Slot, a media.Asset) {
	switch slot {
	case SlotMain:
		s.Main = a
	case SlotObject:
		s.Object = a
	case SlotFounderA:
		s.FounderA = a
	case SlotFounderB:
		s.FounderB = a
	}
}

func (s Session) Upload(slot Slot) media.Asset {
	switch slot {
	case SlotObject:
		return s.Object
	case SlotFounderA:
		return s.FounderA
	case SlotFounderB:
		return s.FounderB
	}
	return s.Main
}

// ClearUploads drops every stored photo.
func (s *Session) ClearUploads() {
	s.Main, s.Object, s.FounderA, s.FounderB = media.Asset{}, media.Asset{}, media.Asset{}, media.Asset{}
}

// Inputs turns the session into a studio request.
func (s Session) Inputs() studio.Inputs {
	return studio.Inputs{
		Flow:        s.Settings.Flow,
		Style:       s.Settings.Style,
		Model:       s.Settings.Model,
		AspectRatio: s.Settings.AspectRatio,
		Adjustments: s.Settings.Adjustments,
		Instruction: prompt.WithPose(s.Settings.Instruction, s.Pose),
		Main:        s.Main,
		Object:      s.Object,
		FounderA:    s.FounderA,
		FounderB:    s.FounderB,
	}
}

type Options struct {
	// TTL is how long an idle session is kept.
	TTL time.Duration
}

type Store struct {
	mu    sync.Mutex
	items *cache.Cache
}

func NewStore(opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Store{items: cache.New(ttl, ttl/2)}
}

// Get returns the session for id, creating a fresh one if needed.
func (s *Store) Get(id string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.getOrCreateLocked(id)
}

// Lookup returns the session for id without creating it.
func (s *Store) Lookup(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items.Get(id)
	if !ok {
		return Session{}, false
	}
	return *v.(*Session), true
}

// Update applies fn under the store lock and refreshes the idle timer.
func (s *Store) Update(id string, fn func(*Session)) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	fn(sess)
	sess.UpdatedAt = time.Now()
	s.items.SetDefault(id, sess)
	return *sess
}

// Reset clears uploads, settings and menu state. The API key survives.
func (s *Store) Reset(id string) Session {
	return s.Update(id, func(sess *Session) {
		key := sess.APIKey
		*sess = *newSession(id)
		sess.APIKey = key
	})
}

func (s *Store) Delete(id string) {
	s.items.Delete(id)
}

func (s *Store) getOrCreateLocked(id string) *Session {
	if v, ok := s.items.Get(id); ok {
		return v.(*Session)
	}
	sess := newSession(id)
	s.items.SetDefault(id, sess)
	return sess
}

func newSession(id string) *Session {
	return &Session{
		ID:        id,
		Settings:  prompt.DefaultOptions(),
		Wizard:    Wizard{Menu: "main"},
		UpdatedAt: time.Now(),
	}
}

// KeySource exposes the API key stored on a session as a credential.Source.
func (s *Store) KeySource(id string) credential.Source {
	return sessionKey{store: s, id: id}
}

type sessionKey struct {
	store *Store
	id    string
}

func (k sessionKey) APIKey(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sess, ok := k.store.Lookup(k.id)
	if !ok || strings.TrimSpace(sess.APIKey) == "" {
		return "", credential.ErrMissing
	}
	return strings.TrimSpace(sess.APIKey), nil
}
