// Package sched runs the periodic jobs: proactive check-ins, crisis
// follow-ups and the subscription expiry sweep.
package sched

import (
	"context"
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ryadomlab/ryadom/internal/claude"
	"github.com/ryadomlab/ryadom/internal/config"
	"github.com/ryadomlab/ryadom/internal/memory"
	"github.com/ryadomlab/ryadom/internal/store"
)

const (
	checkinMorningSpec = "0 0 11 * * *"
	checkinEveningSpec = "0 0 19 * * *"
	followUpSpec       = "0 30 */2 * * *"
	expirySweepSpec    = "0 0 * * * *"

	followUpMinAge = 2 * time.Hour
	followUpMaxAge = 24 * time.Hour
)

// CheckinWriter generates proactive messages.
type CheckinWriter interface {
	CheckinMessage(ctx context.Context, req claude.CheckinRequest) (string, error)
}

// Sender delivers text to a chat.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// UserLocker hands out the per-user mutex shared with the turn flow.
type UserLocker interface {
	LockUser(userID int64) func()
}

type Service struct {
	store  *store.Store
	memory *memory.Manager
	llm    CheckinWriter
	sender Sender
	locks  UserLocker
	cfg    config.CheckinConfig
	cron   *rcron.Cron
	log    zerolog.Logger
}

func NewService(s *store.Store, mgr *memory.Manager, llm CheckinWriter, sender Sender, locks UserLocker, cfg config.CheckinConfig, logger zerolog.Logger) *Service {
	return &Service{
		store:  s,
		memory: mgr,
		llm:    llm,
		sender: sender,
		locks:  locks,
		cfg:    cfg,
		log:    logger.With().Str("component", "sched").Logger(),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.cron = rcron.New(rcron.WithSeconds())

	specs := map[string]func(){
		expirySweepSpec: func() { s.runExpirySweep(ctx) },
		followUpSpec:    func() { s.runCrisisFollowUps(ctx) },
	}
	if s.cfg.Enabled {
		specs[checkinMorningSpec] = func() { s.runCheckins(ctx) }
		specs[checkinEveningSpec] = func() { s.runCheckins(ctx) }
	}
	for spec, job := range specs {
		if _, err := s.cron.AddFunc(spec, job); err != nil {
			return fmt.Errorf("register job %q: %w", spec, err)
		}
	}

	s.cron.Start()
	s.log.Info().Bool("checkins", s.cfg.Enabled).Msg("scheduler started")
	return nil
}

func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.log.Info().Msg("scheduler stopped")
}

// runCheckins pings users who went quiet. Last-active is bumped after a
// successful send so the same user is not pinged again next run.
func (s *Service) runCheckins(ctx context.Context) {
	now := time.Now()
	cutoff := now.AddDate(0, 0, -s.cfg.MinInactiveDays)

	users, err := s.store.InactiveUsers(cutoff, s.cfg.BatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("load inactive users failed")
		return
	}

	sent := 0
	for _, user := range users {
		if optedOut(user) {
			continue
		}
		if s.checkinOne(ctx, user, now) {
			sent++
		}
	}
	if sent > 0 {
		s.log.Info().Int("sent", sent).Int("candidates", len(users)).Msg("check-ins delivered")
	}
}

func (s *Service) checkinOne(ctx context.Context, user *store.User, now time.Time) bool {
	unlock := s.locks.LockUser(user.ID)
	defer unlock()

	days := 0
	if user.LastActiveAt != nil {
		days = int(now.Sub(*user.LastActiveAt).Hours() / 24)
	}

	assembled, err := s.memory.AssembleContext(user.ID, "", user)
	contextBlock := ""
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("checkin context failed")
	} else {
		contextBlock = assembled.Render()
	}

	text, err := s.llm.CheckinMessage(ctx, claude.CheckinRequest{
		UserName:        user.Name,
		Context:         contextBlock,
		DaysSinceActive: days,
	})
	if err != nil || text == "" {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("checkin generation failed")
		return false
	}

	if err := s.sender.SendMessage(user.ChatID, text); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("checkin send failed")
		return false
	}
	if _, err := s.store.SaveMessage(&store.Message{
		UserID: user.ID, Role: "assistant", Content: text,
	}); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("checkin save failed")
	}
	if err := s.store.TouchLastActive(user.ID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("checkin bump failed")
	}
	return true
}

// runCrisisFollowUps reaches out to users whose last mood entry raised
// the attention flag a few hours ago.
func (s *Service) runCrisisFollowUps(ctx context.Context) {
	users, err := s.store.CrisisFollowUpUsers(time.Now(), followUpMinAge, followUpMaxAge)
	if err != nil {
		s.log.Error().Err(err).Msg("load follow-up users failed")
		return
	}

	for _, user := range users {
		func() {
			unlock := s.locks.LockUser(user.ID)
			defer unlock()

			text, err := s.llm.CheckinMessage(ctx, claude.CheckinRequest{
				UserName: user.Name,
				Context:  "Несколько часов назад человеку было очень тяжело. Спроси бережно, как он сейчас.",
			})
			if err != nil || text == "" {
				s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("follow-up generation failed")
				return
			}
			if err := s.sender.SendMessage(user.ChatID, text); err != nil {
				s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("follow-up send failed")
				return
			}
			if _, err := s.store.SaveMessage(&store.Message{
				UserID: user.ID, Role: "assistant", Content: text,
			}); err != nil {
				s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("follow-up save failed")
			}
			s.log.Info().Int64("user_id", user.ID).Msg("crisis follow-up sent")
		}()
	}
}

func (s *Service) runExpirySweep(_ context.Context) {
	n, err := s.store.ExpireSubscriptions(time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int("expired", n).Msg("subscriptions expired")
	}
}

// optedOut honors the user preference disabling proactive messages.
func optedOut(user *store.User) bool {
	v, ok := user.Preferences["checkins_disabled"]
	if !ok {
		return false
	}
	disabled, ok := v.(bool)
	return ok && disabled
}
