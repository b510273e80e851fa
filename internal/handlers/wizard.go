package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"imaginova-studio/internal/prompt"
	"imaginova-studio/internal/session"
	"imaginova-studio/internal/telegram"
)

const (
	wizardCallbackPrefix = "pv"
	adjustStep           = 10
)

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.From == nil {
		return nil
	}

	ownerID, action, args, ok := parseCallback(q.Data)
	if !ok {
		return nil
	}
	if ownerID != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "This menu is not for you.", true)
		return nil
	}

	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID
	id := sessionID(chatID, ownerID)

	updated := h.sessions.Update(id, func(s *session.Session) {
		s.Wizard.MessageID = msgID
		applyWizardAction(s, action, args)
	})

	switch action {
	case "upload":
		_ = h.tg.AnswerCallback(q.ID, "Send the photo now.", false)
		_ = h.tg.SendText(chatID, askFor(updated.Wizard.Awaiting))
	case "note":
		_ = h.tg.AnswerCallback(q.ID, "Send your instruction (/cancel to abort).", false)
		_ = h.tg.SendText(chatID, askFor(awaitInstruction))
	case "prompt":
		_ = h.tg.AnswerCallback(q.ID, "Sending prompts…", false)
		_ = h.tg.SendText(chatID, promptPreview(updated))
	case "generate":
		_ = h.tg.AnswerCallback(q.ID, "Generating…", false)
		if missing := missingInput(updated); missing != "" {
			h.sessions.Update(id, func(s *session.Session) {
				s.Wizard.Awaiting = missing
				s.Wizard.Pending = true
			})
			_ = h.tg.SendText(chatID, askFor(missing))
		} else if err := h.startBatch(ctx, chatID, ownerID); err != nil {
			return err
		}
	case "cancel":
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
		if err := h.cancel(chatID, ownerID); err != nil {
			return err
		}
	case "sheet":
		_ = h.tg.AnswerCallback(q.ID, "Building the contact sheet…", false)
		if err := h.sendSheet(chatID, ownerID); err != nil {
			return err
		}
	default:
		_ = h.tg.AnswerCallback(q.ID, "OK", false)
	}

	return h.renderWizard(chatID, ownerID, msgID)
}

// applyWizardAction mutates the session for one keyboard press.
func applyWizardAction(s *session.Session, action string, args []string) {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}

	switch action {
	case "menu":
		if arg != "" {
			s.Wizard.Menu = arg
		}
		return
	case "flow":
		if flow, ok := prompt.ParseFlow(arg); ok {
			s.Settings.Flow = flow
		}
	case "style":
		if _, ok := prompt.PortfolioThemes(arg); ok {
			s.Settings.Style = arg
		}
	case "model":
		for _, m := range prompt.Models() {
			if m.Key == arg {
				s.Settings.Model = arg
			}
		}
	case "ratio":
		if ar := prompt.NormalizeAspectRatio(strings.Replace(arg, "x", ":", 1)); ar != "" {
			s.Settings.AspectRatio = ar
		}
	case "pose":
		poses := prompt.Poses()
		if idx, err := strconv.Atoi(arg); err == nil && idx >= 0 && idx < len(poses) {
			s.Pose = poses[idx]
		} else {
			s.Pose = ""
		}
	case "adj":
		if len(args) >= 2 {
			nudge(&s.Settings.Adjustments, args[0], args[1])
		}
		s.Wizard.Menu = "adjust"
		return
	case "upload":
		if slot, ok := session.ParseSlot(arg); ok {
			s.Wizard.Awaiting = string(slot)
		}
	case "note":
		s.Wizard.Awaiting = awaitInstruction
	case "reset":
		key, msgID := s.APIKey, s.Wizard.MessageID
		*s = session.Session{ID: s.ID, Settings: prompt.DefaultOptions(), APIKey: key}
		s.Wizard.MessageID = msgID
	case "close":
		s.Wizard.Awaiting = ""
		s.Wizard.Pending = false
	}
	s.Wizard.Menu = "main"
}

func nudge(adj *prompt.Adjustments, slider, dir string) {
	delta := adjustStep
	switch dir {
	case "-":
		delta = -adjustStep
	case "0":
		delta = 0
	}

	var v *int
	switch slider {
	case "b":
		v = &adj.Brightness
	case "c":
		v = &adj.Contrast
	case "w":
		v = &adj.Warmth
	default:
		return
	}
	if delta == 0 {
		*v = 50
	} else {
		*v += delta
	}
	*adj = adj.Clamp()
}

func (h *Handler) renderWizard(chatID int64, userID int64, messageID int) error {
	id := sessionID(chatID, userID)
	sess := h.sessions.Get(id)
	if messageID == 0 {
		messageID = sess.Wizard.MessageID
	}

	text := wizardText(sess)
	kb := wizardKeyboard(userID, sess)

	if messageID != 0 {
		if err := h.tg.EditTextWithKeyboard(chatID, messageID, text, kb); err == nil {
			return nil
		}
	}

	msgID, err := h.tg.SendTextWithKeyboard(chatID, text, kb)
	if err != nil {
		return err
	}
	h.sessions.Update(id, func(s *session.Session) { s.Wizard.MessageID = msgID })
	return nil
}

func wizardText(s session.Session) string {
	opts := s.Settings

	var b strings.Builder
	b.WriteString("🎛 Imaginova Studio\n\n")
	b.WriteString(fmt.Sprintf("Flow: %s\n", flowName(opts.Flow)))
	b.WriteString(fmt.Sprintf("Model: %s\n", optionName(prompt.Models(), opts.Model)))

	switch opts.Flow {
	case prompt.FlowMagic:
		b.WriteString(fmt.Sprintf("Aspect ratio: %s\n", opts.AspectRatio))
		b.WriteString(fmt.Sprintf("Brightness %d · Contrast %d · Warmth %d\n",
			opts.Adjustments.Brightness, opts.Adjustments.Contrast, opts.Adjustments.Warmth))
		if s.Pose != "" {
			b.WriteString("Pose: " + s.Pose + "\n")
		}
		if strings.TrimSpace(opts.Instruction) != "" {
			b.WriteString("Edit: " + truncateLine(opts.Instruction, 80) + "\n")
		} else {
			b.WriteString("Edit: (none)\n")
		}
		b.WriteString("Photo: " + savedOrNone(!s.Main.IsZero()) + "\n")
		b.WriteString("Object: " + savedOrNone(!s.Object.IsZero()) + "\n")
	case prompt.FlowFounders:
		b.WriteString("Founder A: " + savedOrNone(!s.FounderA.IsZero()) + "\n")
		b.WriteString("Founder B: " + savedOrNone(!s.FounderB.IsZero()) + "\n")
	default:
		b.WriteString(fmt.Sprintf("Style: %s\n", optionName(prompt.Styles(), opts.Style)))
		b.WriteString("Photo: " + savedOrNone(!s.Main.IsZero()) + "\n")
	}

	if missing := missingInput(s); missing != "" {
		b.WriteString("\n" + askFor(missing) + "\n")
	} else {
		b.WriteString("\n🎨 Ready. Press Generate.\n")
	}

	return strings.TrimSpace(b.String())
}

func wizardKeyboard(ownerID int64, s session.Session) telegram.InlineKeyboard {
	switch s.Wizard.Menu {
	case "flow":
		return flowKeyboard(ownerID, s)
	case "style":
		return optionKeyboard(ownerID, "style", prompt.Styles(), s.Settings.Style)
	case "model":
		return optionKeyboard(ownerID, "model", prompt.Models(), s.Settings.Model)
	case "ratio":
		return ratioKeyboard(ownerID, s)
	case "pose":
		return poseKeyboard(ownerID, s)
	case "adjust":
		return adjustKeyboard(ownerID, s)
	default:
		return mainKeyboard(ownerID, s)
	}
}

func mainKeyboard(ownerID int64, s session.Session) telegram.InlineKeyboard {
	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			tgbotapi.NewInlineKeyboardButtonData("Flow: "+flowName(s.Settings.Flow), cb(ownerID, "menu", "flow")),
			tgbotapi.NewInlineKeyboardButtonData("Model", cb(ownerID, "menu", "model")),
		},
	}

	switch s.Settings.Flow {
	case prompt.FlowMagic:
		rows = append(rows,
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("Ratio "+s.Settings.AspectRatio, cb(ownerID, "menu", "ratio")),
				tgbotapi.NewInlineKeyboardButtonData("Adjust", cb(ownerID, "menu", "adjust")),
				tgbotapi.NewInlineKeyboardButtonData("Pose", cb(ownerID, "menu", "pose")),
			},
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("📝 Edit", cb(ownerID, "note")),
				tgbotapi.NewInlineKeyboardButtonData("📷 Photo", cb(ownerID, "upload", string(session.SlotMain))),
				tgbotapi.NewInlineKeyboardButtonData("📦 Object", cb(ownerID, "upload", string(session.SlotObject))),
			},
		)
	case prompt.FlowFounders:
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("📷 Founder A", cb(ownerID, "upload", string(session.SlotFounderA))),
			tgbotapi.NewInlineKeyboardButtonData("📷 Founder B", cb(ownerID, "upload", string(session.SlotFounderB))),
		})
	default:
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Style", cb(ownerID, "menu", "style")),
			tgbotapi.NewInlineKeyboardButtonData("📷 Photo", cb(ownerID, "upload", string(session.SlotMain))),
		})
	}

	rows = append(rows,
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("📄 Prompts", cb(ownerID, "prompt")),
			tgbotapi.NewInlineKeyboardButtonData("🎨 Generate", cb(ownerID, "generate")),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("⏹ Cancel", cb(ownerID, "cancel")),
			tgbotapi.NewInlineKeyboardButtonData("🗂 Sheet", cb(ownerID, "sheet")),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Reset", cb(ownerID, "reset")),
			tgbotapi.NewInlineKeyboardButtonData("Close", cb(ownerID, "close")),
		},
	)

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func flowKeyboard(ownerID int64, s session.Session) telegram.InlineKeyboard {
	opts := []prompt.NamedOption{
		{Key: string(prompt.FlowPortfolio), Name: flowName(prompt.FlowPortfolio)},
		{Key: string(prompt.FlowMagic), Name: flowName(prompt.FlowMagic)},
		{Key: string(prompt.FlowFounders), Name: flowName(prompt.FlowFounders)},
	}
	return optionKeyboard(ownerID, "flow", opts, string(s.Settings.Flow))
}

// optionKeyboard lays options out two per row with the current one ticked.
func optionKeyboard(ownerID int64, action string, opts []prompt.NamedOption, current string) telegram.InlineKeyboard {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	for _, opt := range opts {
		label := opt.Name
		if opt.Key == current {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, action, opt.Key)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, backRow(ownerID))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func ratioKeyboard(ownerID int64, s session.Session) telegram.InlineKeyboard {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, ar := range prompt.AspectRatios() {
		label := ar
		if ar == s.Settings.AspectRatio {
			label = "✅ " + label
		}
		// ':' separates callback fields
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "ratio", strings.Replace(ar, ":", "x", 1))))
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, backRow(ownerID))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func poseKeyboard(ownerID int64, s session.Session) telegram.InlineKeyboard {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, pose := range prompt.Poses() {
		label := pose
		if pose == s.Pose {
			label = "✅ " + label
		}
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "pose", strconv.Itoa(i))),
		})
	}
	noPose := "No pose change"
	if s.Pose == "" {
		noPose = "✅ " + noPose
	}
	rows = append(rows,
		[]tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData(noPose, cb(ownerID, "pose", "none"))},
		backRow(ownerID),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func adjustKeyboard(ownerID int64, s session.Session) telegram.InlineKeyboard {
	adj := s.Settings.Adjustments
	slider := func(name, key string, v int) []tgbotapi.InlineKeyboardButton {
		return []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("−", cb(ownerID, "adj", key, "-")),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %d", name, v), cb(ownerID, "adj", key, "0")),
			tgbotapi.NewInlineKeyboardButtonData("+", cb(ownerID, "adj", key, "+")),
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		slider("Brightness", "b", adj.Brightness),
		slider("Contrast", "c", adj.Contrast),
		slider("Warmth", "w", adj.Warmth),
		backRow(ownerID),
	)
}

func backRow(ownerID int64) []tgbotapi.InlineKeyboardButton {
	return []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅ Back", cb(ownerID, "menu", "main")),
	}
}

// promptPreview lists the prompts the current settings would send.
func promptPreview(s session.Session) string {
	b, err := s.Inputs().Batch()
	if err != nil {
		return fmt.Sprintf("Prompts are built once the inputs are complete. %s", askFor(missingInput(s)))
	}

	var out strings.Builder
	for i, item := range b.Items {
		out.WriteString(fmt.Sprintf("%d) %s\n%s\n\n", i+1, item.Label, item.Prompt))
	}
	return strings.TrimSpace(out.String())
}

func cb(ownerID int64, parts ...string) string {
	return fmt.Sprintf("%s:%d:%s", wizardCallbackPrefix, ownerID, strings.Join(parts, ":"))
}

func parseCallback(data string) (ownerID int64, action string, args []string, ok bool) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) < 3 || parts[0] != wizardCallbackPrefix {
		return 0, "", nil, false
	}
	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", nil, false
	}
	return ownerID, parts[2], parts[3:], true
}

func flowName(flow prompt.Flow) string {
	switch flow {
	case prompt.FlowMagic:
		return "Magic Editor"
	case prompt.FlowFounders:
		return "Founders"
	}
	return "Portfolio"
}

func optionName(opts []prompt.NamedOption, key string) string {
	for _, o := range opts {
		if o.Key == key {
			return o.Name
		}
	}
	return key
}

func savedOrNone(saved bool) string {
	if saved {
		return "saved ✅"
	}
	return "(none)"
}

func truncateLine(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
