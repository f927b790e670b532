package memory

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/ryadomlab/ryadom/internal/claude"
	"github.com/ryadomlab/ryadom/internal/store"
)

// UserNameKey is the reserved memory key carrying the user's own name.
const UserNameKey = "user_name"

// applyExtraction merges extraction candidates into stored state. The
// four sub-lists are independent; a failed item is logged and skipped
// without touching its siblings.
func (m *Manager) applyExtraction(userID int64, ext *claude.Extraction, existing []*store.Memory, result *ProcessResult) {
	for _, fc := range ext.Facts {
		if err := m.applyFact(userID, fc); err != nil {
			m.log.Warn().Err(err).Int64("user_id", userID).Str("fact", fc.Fact).Msg("fact skipped")
			continue
		}
		result.FactsAdded++
	}

	for _, pc := range ext.Persons {
		if err := m.applyPerson(userID, pc); err != nil {
			m.log.Warn().Err(err).Int64("user_id", userID).Str("name", pc.Name).Msg("person skipped")
			continue
		}
		result.PersonsTouched++
	}

	for _, ec := range ext.Events {
		if err := m.applyEvent(userID, ec); err != nil {
			m.log.Warn().Err(err).Int64("user_id", userID).Str("title", ec.Title).Msg("event skipped")
			continue
		}
		result.EventsAdded++
	}

	for _, uc := range ext.Updates {
		applied, err := m.applyUpdate(userID, uc, existing)
		if err != nil {
			m.log.Warn().Err(err).Int64("user_id", userID).Msg("update skipped")
			continue
		}
		if applied {
			result.UpdatesApplied++
		}
	}
}

func (m *Manager) applyFact(userID int64, fc claude.FactCandidate) error {
	fact := strings.TrimSpace(fc.Fact)
	if fact == "" {
		return errEmpty("fact")
	}

	key := strings.TrimSpace(fc.MemoryKey)
	if key == UserNameKey {
		if name := extractNameFromFact(fact); name != "" {
			if err := m.store.UpdateUserName(userID, name); err != nil {
				m.log.Warn().Err(err).Int64("user_id", userID).Msg("name update failed")
			} else {
				m.log.Info().Int64("user_id", userID).Str("name", name).Msg("user name learned")
			}
		}
	}

	importance := fc.Importance
	if importance < 1 || importance > 10 {
		importance = 5
	}
	category := fc.Category
	if category == "" {
		category = "general"
	}
	weight := fc.EmotionalWeight
	if weight == "" {
		weight = store.WeightNeutral
	}

	// A colliding key means this is the same fact restated: rewrite it
	// in place so the row id and history survive.
	if key != "" {
		current, err := m.store.CurrentMemoryByKey(userID, key)
		if err != nil {
			return err
		}
		if current != nil {
			if current.Fact == fact {
				return nil
			}
			return m.store.UpdateMemoryFact(current.ID, fact)
		}
	}

	_, err := m.store.AddMemory(&store.Memory{
		UserID:          userID,
		Fact:            fact,
		Category:        category,
		Importance:      importance,
		EmotionalWeight: weight,
		Tags:            fc.Tags,
		MemoryKey:       key,
	})
	return err
}

func (m *Manager) applyPerson(userID int64, pc claude.PersonCandidate) error {
	name := strings.TrimSpace(pc.Name)
	if name == "" {
		return errEmpty("person name")
	}

	existing, err := m.store.FindPersonByName(userID, name)
	if err != nil {
		return err
	}
	if existing != nil {
		upd := store.PersonUpdate{}
		if pc.Notes != "" {
			upd.Notes = &pc.Notes
		}
		if pc.EmotionalTone != "" {
			upd.EmotionalTone = &pc.EmotionalTone
		}
		return m.store.UpdatePerson(existing.ID, upd)
	}

	relation := pc.Relation
	if relation == "" {
		relation = "знакомый"
	}
	tone := pc.EmotionalTone
	if tone == "" {
		tone = "neutral"
	}
	_, err = m.store.AddPerson(&store.Person{
		UserID:        userID,
		Name:          name,
		Relation:      relation,
		Notes:         pc.Notes,
		EmotionalTone: tone,
	})
	return err
}

func (m *Manager) applyEvent(userID int64, ec claude.EventCandidate) error {
	title := strings.TrimSpace(ec.Title)
	if title == "" {
		return errEmpty("event title")
	}

	// Dates are either exact or absent; a vague date is worse than none.
	var eventDate *time.Time
	if ec.Date != "" {
		if parsed, err := time.Parse("2006-01-02", ec.Date); err == nil {
			eventDate = &parsed
		}
	}

	var relatedPersonID *int64
	if ec.PersonName != "" {
		person, err := m.store.FindPersonByName(userID, ec.PersonName)
		if err != nil {
			return err
		}
		if person != nil {
			relatedPersonID = &person.ID
		}
	}

	weight := ec.EmotionalWeight
	if weight == "" {
		weight = store.WeightNeutral
	}
	_, err := m.store.AddLifeEvent(&store.LifeEvent{
		UserID:          userID,
		Title:           title,
		Description:     ec.Description,
		EventDate:       eventDate,
		IsRecurring:     ec.IsRecurring,
		EmotionalWeight: weight,
		RelatedPersonID: relatedPersonID,
		Tags:            ec.Tags,
	})
	return err
}

// applyUpdate corrects an existing fact, targeted by key first, then by
// a substring of the old wording. No target means the correction is
// dropped: inventing a row for it would fabricate provenance.
func (m *Manager) applyUpdate(userID int64, uc claude.UpdateCandidate, existing []*store.Memory) (bool, error) {
	newFact := strings.TrimSpace(uc.NewFact)
	if newFact == "" {
		return false, errEmpty("new fact")
	}

	var target *store.Memory
	if key := strings.TrimSpace(uc.MemoryKey); key != "" {
		found, err := m.store.CurrentMemoryByKey(userID, key)
		if err != nil {
			return false, err
		}
		target = found
	}
	if target == nil && uc.OldFactContains != "" {
		if matches := searchByText(existing, uc.OldFactContains); len(matches) > 0 {
			target = matches[0]
		}
	}
	if target == nil {
		m.log.Debug().Int64("user_id", userID).
			Str("key", uc.MemoryKey).
			Str("old_fact_contains", uc.OldFactContains).
			Msg("update target not found, dropped")
		return false, nil
	}

	if err := m.store.UpdateMemoryFact(target.ID, newFact); err != nil {
		return false, err
	}
	m.log.Info().Int64("user_id", userID).
		Str("old", truncate(target.Fact, 50)).
		Str("new", truncate(newFact, 50)).
		Msg("memory updated")
	return true, nil
}

// searchByTags returns memories sharing at least one tag with the
// keywords, preserving store order.
func searchByTags(memories []*store.Memory, keywords []string) []*store.Memory {
	wanted := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		wanted[strings.ToLower(k)] = struct{}{}
	}

	var matched []*store.Memory
	for _, m := range memories {
		for _, tag := range m.Tags {
			if _, ok := wanted[strings.ToLower(tag)]; ok {
				matched = append(matched, m)
				break
			}
		}
	}
	return matched
}

// searchByText returns memories whose fact contains the needle,
// case-insensitively.
func searchByText(memories []*store.Memory, needle string) []*store.Memory {
	lower := strings.ToLower(needle)
	var matched []*store.Memory
	for _, m := range memories {
		if strings.Contains(strings.ToLower(m.Fact), lower) {
			matched = append(matched, m)
		}
	}
	return matched
}

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:имя|зовут|называть)\s*[:\-]?\s*([А-ЯЁA-Z][а-яёa-z]+)`),
	regexp.MustCompile(`([А-ЯЁA-Z][а-яёa-z]+)`),
}

var genericNames = map[string]struct{}{
	"друг": {}, "человек": {}, "пользователь": {}, "имя": {},
}

// extractNameFromFact pulls a name out of wordings like "Имя: Игорь"
// or "Зовут Игорь", falling back to any capitalized token.
func extractNameFromFact(fact string) string {
	for _, pattern := range namePatterns {
		match := pattern.FindStringSubmatch(fact)
		if match == nil {
			continue
		}
		name := strings.TrimSpace(match[1])
		if _, generic := genericNames[strings.ToLower(name)]; generic {
			continue
		}
		return capitalize(name)
	}
	return ""
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

type errEmpty string

func (e errEmpty) Error() string { return "empty " + string(e) }
