package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaginova-studio/internal/credential"
	"imaginova-studio/internal/media"
	"imaginova-studio/internal/prompt"
)

func TestGetCreatesDefaults(t *testing.T) {
	s := NewStore(Options{})

	_, ok := s.Lookup("web:1")
	assert.False(t, ok)

	sess := s.Get("web:1")
	assert.Equal(t, "web:1", sess.ID)
	assert.Equal(t, prompt.DefaultOptions(), sess.Settings)
	assert.Equal(t, "main", sess.Wizard.Menu)

	_, ok = s.Lookup("web:1")
	assert.True(t, ok)
}

func TestUpdateAndReset(t *testing.T) {
	s := NewStore(Options{})
	photo := media.Asset{MIMEType: "image/png", Data: []byte("p")}

	got := s.Update("tg:7", func(sess *Session) {
		sess.APIKey = "secret"
		sess.Settings.Style = "startup"
		sess.SetUpload(SlotObject, photo)
		sess.Wizard.Awaiting = string(SlotMain)
	})
	assert.Equal(t, "startup", got.Settings.Style)
	assert.Equal(t, photo, got.Upload(SlotObject))
	assert.False(t, got.UpdatedAt.IsZero())

	reset := s.Reset("tg:7")
	assert.Equal(t, "secret", reset.APIKey, "reset keeps the key")
	assert.True(t, reset.Object.IsZero())
	assert.Equal(t, prompt.DefaultStyle, reset.Settings.Style)
	assert.Empty(t, reset.Wizard.Awaiting)

	s.Delete("tg:7")
	_, ok := s.Lookup("tg:7")
	assert.False(t, ok)
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := NewStore(Options{})
	sess := s.Get("a")
	sess.Settings.Style = "tropical"

	assert.Equal(t, prompt.DefaultStyle, s.Get("a").Settings.Style)
}

func TestUploadSlots(t *testing.T) {
	var sess Session
	for i, slot := range []Slot{SlotMain, SlotObject, SlotFounderA, SlotFounderB} {
		a := media.Asset{MIMEType: "image/png", Data: []byte{byte(i)}}
		sess.SetUpload(slot, a)
		assert.Equal(t, a, sess.Upload(slot))
	}

	sess.ClearUploads()
	assert.True(t, sess.Main.IsZero())
	assert.True(t, sess.FounderB.IsZero())

	slot, ok := ParseSlot(" Image ")
	assert.True(t, ok)
	assert.Equal(t, SlotMain, slot)
	_, ok = ParseSlot("banner")
	assert.False(t, ok)
}

func TestInputsCarryPoseIntoInstruction(t *testing.T) {
	sess := Session{
		Settings: prompt.Options{Flow: prompt.FlowMagic, Instruction: "add snow", AspectRatio: "3:4"},
		Pose:     "Side profile view",
		Main:     media.Asset{MIMEType: "image/png", Data: []byte("m")},
	}

	in := sess.Inputs()
	assert.Equal(t, prompt.FlowMagic, in.Flow)
	assert.Equal(t, "add snow. Change pose to: Side profile view", in.Instruction)
	assert.Equal(t, "3:4", in.AspectRatio)
	assert.Equal(t, sess.Main, in.Main)
}

func TestKeySource(t *testing.T) {
	s := NewStore(Options{})
	src := s.KeySource("web:1")

	_, err := src.APIKey(context.Background())
	assert.ErrorIs(t, err, credential.ErrMissing)

	s.Update("web:1", func(sess *Session) { sess.APIKey = "  k1 " })
	key, err := src.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k1", key)

	chain := credential.Chain{s.KeySource("other"), credential.Static("fallback")}
	key, err = chain.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fallback", key)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.APIKey(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
