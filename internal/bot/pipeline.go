package bot

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/ryadomlab/ryadom/internal/claude"
	"github.com/ryadomlab/ryadom/internal/memory"
	"github.com/ryadomlab/ryadom/internal/quota"
	"github.com/ryadomlab/ryadom/internal/store"
)

// Responder generates user-facing replies.
type Responder interface {
	Respond(ctx context.Context, req claude.RespondRequest) (*claude.Reply, error)
}

const startGreeting = `Привет! Я — Рядом. Я здесь, чтобы быть с тобой: слушать, помнить и поддерживать.

Как мне тебя называть?`

const limitReply = `На сегодня сообщения закончились — так я забочусь и о тебе тоже: иногда полезно выдохнуть. Завтра я снова здесь. Если хочется больше, посмотри /plans.`

var fallbackReplies = []string{
	"Я тебя слышу. Расскажи ещё, я рядом.",
	"Хм, дай мне секунду собраться с мыслями… но я здесь и слушаю тебя.",
	"Я рядом. Что сейчас для тебя самое важное в этом?",
}

// Pipeline is the per-message turn flow. One user's turns run strictly
// one after another; different users run in parallel.
type Pipeline struct {
	store    *store.Store
	memory   *memory.Manager
	llm      Responder
	quota    *quota.Checker
	sender   Sender
	escalate Escalator
	locks    *userLocks
	log      zerolog.Logger
}

func NewPipeline(s *store.Store, mgr *memory.Manager, llm Responder, checker *quota.Checker, sender Sender, escalate Escalator, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    s,
		memory:   mgr,
		llm:      llm,
		quota:    checker,
		sender:   sender,
		escalate: escalate,
		locks:    newUserLocks(),
		log:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// LockUser acquires the same per-user mutex the turn flow uses, so
// scheduled jobs never interleave with a live turn.
func (p *Pipeline) LockUser(userID int64) func() {
	return p.locks.Lock(userID)
}

// HandleMessage runs one full turn. Errors never propagate to the
// transport: every failure path ends in some reply or a logged drop.
func (p *Pipeline) HandleMessage(ctx context.Context, chatID int64, text string) {
	user, err := p.store.GetOrCreateUser(chatID)
	if err != nil {
		p.log.Error().Err(err).Int64("chat_id", chatID).Msg("get or create user failed")
		return
	}

	unlock := p.locks.Lock(user.ID)
	defer unlock()

	if user.IsBlocked {
		p.log.Info().Int64("user_id", user.ID).Msg("blocked user ignored")
		return
	}

	if strings.HasPrefix(text, "/") {
		p.handleCommand(user, text)
		return
	}

	decision, err := p.quota.Check(user.ID, time.Now())
	if err != nil {
		p.log.Error().Err(err).Int64("user_id", user.ID).Msg("quota check failed")
		return
	}
	if !decision.Allowed {
		p.send(user.ChatID, limitReply)
		return
	}

	if _, err := p.store.SaveMessage(&store.Message{
		UserID: user.ID, Role: "user", Content: text,
	}); err != nil {
		p.log.Error().Err(err).Int64("user_id", user.ID).Msg("save message failed")
		return
	}

	if !user.OnboardingCompleted {
		p.finishOnboarding(user, text)
		return
	}

	result, err := p.memory.ProcessMessage(ctx, user.ID, text)
	if err != nil {
		p.log.Warn().Err(err).Int64("user_id", user.ID).Msg("memory processing failed")
		result = &memory.ProcessResult{}
	}

	if result.RequiresAttention {
		p.handleCrisis(user, result, text)
		return
	}

	assembled, err := p.memory.AssembleContext(user.ID, text, user)
	if err != nil {
		p.log.Warn().Err(err).Int64("user_id", user.ID).Msg("context assembly failed")
	}

	reply := p.generateReply(ctx, user, text, assembled)
	p.finishTurn(user, reply)

	if due, err := p.memory.ShouldSummarize(user.ID); err != nil {
		p.log.Warn().Err(err).Int64("user_id", user.ID).Msg("summary check failed")
	} else if due {
		if _, err := p.memory.CreateSummary(ctx, user.ID); err != nil {
			p.log.Warn().Err(err).Int64("user_id", user.ID).Msg("summary creation failed")
		}
	}
}

func (p *Pipeline) handleCommand(user *store.User, text string) {
	cmd := strings.Fields(text)[0]
	switch cmd {
	case "/start":
		if user.OnboardingCompleted {
			name := user.Name
			if name == "" {
				name = "друг"
			}
			p.send(user.ChatID, fmt.Sprintf("С возвращением, %s! Я здесь. Как ты?", name))
			return
		}
		p.send(user.ChatID, startGreeting)
	case "/plans":
		p.send(user.ChatID, "Тарифы:\n• free — 10 сообщений в день\n• basic — 100 сообщений в день\n• premium — 1000 сообщений в день")
	default:
		p.send(user.ChatID, "Я понимаю только /start и /plans — а в остальном просто пиши мне, как другу.")
	}
}

// finishOnboarding treats the first free-form message as the user's
// name.
func (p *Pipeline) finishOnboarding(user *store.User, text string) {
	name := extractName(text)
	if name == "" {
		p.send(user.ChatID, "Не расслышал имя — напиши, как мне тебя называть?")
		return
	}
	if err := p.store.UpdateUserName(user.ID, name); err != nil {
		p.log.Error().Err(err).Int64("user_id", user.ID).Msg("save name failed")
	}
	if err := p.store.CompleteOnboarding(user.ID); err != nil {
		p.log.Error().Err(err).Int64("user_id", user.ID).Msg("complete onboarding failed")
	}

	welcome := fmt.Sprintf("Очень приятно, %s! Теперь я буду тебя помнить. Расскажи, как проходит твой день?", name)
	p.finishTurn(user, &claude.Reply{Content: welcome})
}

func (p *Pipeline) handleCrisis(user *store.User, result *memory.ProcessResult, text string) {
	var indicators []string
	if result.Mood != nil {
		indicators = result.Mood.CrisisIndicators
	}
	if p.escalate != nil {
		p.escalate.NotifyCrisis(user, indicators, text)
	}
	p.finishTurn(user, &claude.Reply{Content: claude.CrisisResponse})
}

func (p *Pipeline) generateReply(ctx context.Context, user *store.User, text string, assembled *memory.AssembledContext) *claude.Reply {
	req := claude.RespondRequest{
		UserName: user.Name,
		Message:  text,
	}
	if assembled != nil {
		req.Context = assembled.Render()
		// The current message is already part of the request.
		history := assembled.Messages
		if len(history) > 0 && history[len(history)-1].Content == text {
			history = history[:len(history)-1]
		}
		req.History = history
	}

	reply, err := p.llm.Respond(ctx, req)
	if err != nil {
		p.log.Warn().Err(err).Int64("user_id", user.ID).Msg("reply generation failed, using fallback")
		return &claude.Reply{Content: fallbackReplies[rand.Intn(len(fallbackReplies))]}
	}
	return reply
}

// finishTurn persists the reply, bumps usage and last-active, then
// sends. The send happens last: a delivery failure must not roll back
// stored state.
func (p *Pipeline) finishTurn(user *store.User, reply *claude.Reply) {
	if _, err := p.store.SaveMessage(&store.Message{
		UserID:         user.ID,
		Role:           "assistant",
		Content:        reply.Content,
		TokensUsed:     reply.TokensUsed,
		ResponseTimeMs: reply.ResponseTimeMs,
	}); err != nil {
		p.log.Error().Err(err).Int64("user_id", user.ID).Msg("save reply failed")
	}
	if err := p.store.IncrementUsage(user.ID, time.Now(), 1, reply.TokensUsed); err != nil {
		p.log.Warn().Err(err).Int64("user_id", user.ID).Msg("usage bump failed")
	}
	if err := p.store.TouchLastActive(user.ID); err != nil {
		p.log.Warn().Err(err).Int64("user_id", user.ID).Msg("touch last active failed")
	}
	p.send(user.ChatID, reply.Content)
}

func (p *Pipeline) send(chatID int64, text string) {
	if err := p.sender.SendMessage(chatID, text); err != nil {
		p.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

var nameLeadIns = map[string]struct{}{
	"меня": {}, "зовут": {}, "я": {}, "это": {}, "называй": {}, "можно": {}, "мне": {}, "просто": {},
}

// extractName picks the first plausible name token out of a reply to
// "how should I call you", skipping lead-ins like "меня зовут".
func extractName(text string) string {
	for _, field := range strings.Fields(text) {
		cleaned := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		if cleaned == "" {
			continue
		}
		if _, skip := nameLeadIns[strings.ToLower(cleaned)]; skip {
			continue
		}
		runes := []rune(cleaned)
		if len(runes) > 30 {
			continue
		}
		runes[0] = unicode.ToUpper(runes[0])
		return string(runes)
	}
	return ""
}
