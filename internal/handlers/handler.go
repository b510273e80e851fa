package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"imaginova-studio/internal/credential"
	"imaginova-studio/internal/jobs"
	"imaginova-studio/internal/media"
	"imaginova-studio/internal/mediagroup"
	"imaginova-studio/internal/prompt"
	"imaginova-studio/internal/session"
	"imaginova-studio/internal/studio"
	"imaginova-studio/internal/telegram"
)

const helpText = "Imaginova Studio\n\n" +
	"Send a photo of yourself and pick a flow:\n" +
	"/portfolio [style] [flux] - 6 themed portraits (classic, startup, tropical, creative)\n" +
	"/magic <edit> [ar=3:4] [warmth=80] - 6 edited variations; send a second photo with caption \"object\" to feature a product\n" +
	"/founders - two photos (or one album of two) become a 3-shot duo portfolio\n" +
	"/studio - menu with every setting\n" +
	"/sheet - contact sheet of the last batch\n" +
	"/cancel - stop the running batch\n" +
	"/key <Gemini API key> - use your own key\n" +
	"/reset - forget photos and settings"

type Options struct {
	Telegram *telegram.Client
	Runner   *studio.Runner
	Jobs     *jobs.Registry
	Sessions *session.Store
	// ServerKeys is consulted when the session has no key of its own.
	ServerKeys credential.Source
	Logger     *slog.Logger
}

type Handler struct {
	tg         *telegram.Client
	runner     *studio.Runner
	jobs       *jobs.Registry
	sessions   *session.Store
	serverKeys credential.Source
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		tg:         opts.Telegram,
		runner:     opts.Runner,
		jobs:       opts.Jobs,
		sessions:   opts.Sessions,
		serverKeys: opts.ServerKeys,
		logger:     logger,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

// sessionID scopes a session to one user in one chat.
func sessionID(chatID, userID int64) string {
	return fmt.Sprintf("tg:%d:%d", chatID, userID)
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, userID, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, userID, msg)
	}

	if msg.Text != "" {
		return h.handleText(ctx, chatID, userID, msg.Text)
	}

	return nil
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, userID int64, msg *tgbotapi.Message) error {
	id := sessionID(chatID, userID)
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return h.tg.SendText(chatID, helpText)
	case "studio":
		h.sessions.Update(id, func(s *session.Session) {
			s.Settings = prompt.ParseArgs(args, s.Settings)
			s.Wizard.Menu = "main"
			s.Wizard.Awaiting = ""
			s.Wizard.MessageID = 0
		})
		return h.renderWizard(chatID, userID, 0)
	case "portfolio":
		return h.startFlow(ctx, chatID, userID, prompt.FlowPortfolio, args)
	case "magic":
		return h.startFlow(ctx, chatID, userID, prompt.FlowMagic, args)
	case "founders":
		h.sessions.Update(id, func(s *session.Session) {
			s.FounderA, s.FounderB = media.Asset{}, media.Asset{}
		})
		return h.startFlow(ctx, chatID, userID, prompt.FlowFounders, args)
	case "cancel":
		return h.cancel(chatID, userID)
	case "sheet":
		return h.sendSheet(chatID, userID)
	case "key":
		if args == "" {
			return h.tg.SendText(chatID, "Usage: /key <your Gemini API key>")
		}
		h.sessions.Update(id, func(s *session.Session) { s.APIKey = args })
		return h.tg.SendText(chatID, "✅ API key saved for this chat.")
	case "reset":
		h.sessions.Reset(id)
		return h.tg.SendText(chatID, "✅ Photos and settings cleared.")
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Use /help.")
	}
}

// startFlow applies command arguments and either runs the batch right away or
// asks for the missing input and runs once it arrives.
func (h *Handler) startFlow(ctx context.Context, chatID, userID int64, flow prompt.Flow, args string) error {
	id := sessionID(chatID, userID)
	sess := h.sessions.Update(id, func(s *session.Session) {
		s.Settings.Flow = flow
		s.Settings = prompt.ParseArgs(args, s.Settings)
		s.Wizard.Awaiting = ""
		s.Wizard.Pending = true
	})

	if missing := missingInput(sess); missing != "" {
		h.sessions.Update(id, func(s *session.Session) { s.Wizard.Awaiting = missing })
		return h.tg.SendText(chatID, askFor(missing))
	}
	return h.startBatch(ctx, chatID, userID)
}

func (h *Handler) handleText(ctx context.Context, chatID int64, userID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	id := sessionID(chatID, userID)
	sess := h.sessions.Get(id)
	if sess.Wizard.Awaiting != awaitInstruction && sess.Settings.Flow != prompt.FlowMagic {
		return h.tg.SendText(chatID, "Send a photo to begin, or /help for the commands.")
	}

	sess = h.sessions.Update(id, func(s *session.Session) {
		s.Settings.Instruction = text
		if s.Wizard.Awaiting == awaitInstruction {
			s.Wizard.Awaiting = ""
		}
	})
	return h.advance(ctx, chatID, userID, sess)
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, userID int64, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       userID,
			Username:     msg.From.UserName,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       photo.FileID,
		})
		return nil
	}

	h.tg.SendTyping(chatID)
	asset, err := h.tg.DownloadAsset(ctx, photo.FileID)
	if err != nil {
		h.logger.Error("photo download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photo. Please send it again.")
	}

	id := sessionID(chatID, userID)
	caption := parseCaption(msg.Caption)
	var slot session.Slot
	sess := h.sessions.Update(id, func(s *session.Session) {
		if caption.Flow != "" {
			s.Settings.Flow = caption.Flow
		}
		slot = pickSlot(*s, caption)
		s.SetUpload(slot, asset)
		if caption.Instruction != "" && s.Settings.Flow == prompt.FlowMagic {
			s.Settings.Instruction = caption.Instruction
		}
		if s.Wizard.Awaiting == string(slot) || s.Wizard.Awaiting == "" {
			s.Wizard.Awaiting = missingInput(*s)
		}
	})

	h.logger.Info("photo stored", "session", id, "slot", string(slot))
	if err := h.tg.SendText(chatID, fmt.Sprintf("📷 Saved as %s.", slotName(slot))); err != nil {
		return err
	}
	return h.advance(ctx, chatID, userID, sess)
}

// HandleMediaGroup stores an album. Two photos become founders A and B, or
// main image and object in the magic flow. Larger albums use the first photo.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	chatID := group.ChatID
	fileIDs := group.FileIDs
	if len(fileIDs) > 2 {
		fileIDs = fileIDs[:1]
	}

	assets := make([]media.Asset, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			a, err := h.tg.DownloadAsset(egCtx, fileID)
			if err != nil {
				return err
			}
			assets[i] = a
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("album download failed", "chat_id", chatID, "err", err)
		_ = h.tg.SendText(chatID, "❌ Could not download the photos. Please send them again.")
		return
	}

	id := sessionID(chatID, group.UserID)
	caption := parseCaption(group.Caption)
	sess := h.sessions.Update(id, func(s *session.Session) {
		if caption.Flow != "" {
			s.Settings.Flow = caption.Flow
		}
		if caption.Instruction != "" && s.Settings.Flow == prompt.FlowMagic {
			s.Settings.Instruction = caption.Instruction
		}
		switch {
		case len(assets) == 2 && s.Settings.Flow == prompt.FlowMagic:
			s.Main, s.Object = assets[0], assets[1]
		case len(assets) == 2:
			s.Settings.Flow = prompt.FlowFounders
			s.FounderA, s.FounderB = assets[0], assets[1]
		default:
			s.Main = assets[0]
		}
		s.Wizard.Awaiting = ""
	})

	if err := h.tg.SendText(chatID, fmt.Sprintf("📷 Album saved for the %s flow.", sess.Settings.Flow)); err != nil {
		h.logger.Error("send text failed", "err", err)
		return
	}
	if err := h.advance(ctx, chatID, group.UserID, sess); err != nil {
		h.logger.Error("album follow-up failed", "err", err)
	}
}

// advance runs a pending batch once its inputs are complete; otherwise it
// asks for what is missing or refreshes the wizard.
func (h *Handler) advance(ctx context.Context, chatID, userID int64, sess session.Session) error {
	missing := missingInput(sess)
	if sess.Wizard.Pending && missing == "" {
		return h.startBatch(ctx, chatID, userID)
	}
	if missing != "" && sess.Wizard.Awaiting != "" {
		return h.tg.SendText(chatID, askFor(missing))
	}
	if sess.Wizard.MessageID != 0 {
		return h.renderWizard(chatID, userID, sess.Wizard.MessageID)
	}
	if missing == "" {
		return h.tg.SendText(chatID, "Ready. Send /studio to review the settings or /"+string(sess.Settings.Flow)+" to start.")
	}
	return nil
}
