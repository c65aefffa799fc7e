package services

import (
	"context"
	"time"

	"devquest/logger"
	"devquest/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeCriteria maps a badge criteria type to the user counter it is
// compared against. Every badge check goes through this table.
var BadgeCriteria = map[models.CriteriaType]func(u *models.User) int64{
	models.CriteriaTasksCompleted: func(u *models.User) int64 { return u.TasksCompleted },
	models.CriteriaLevel:          func(u *models.User) int64 { return int64(u.Level) },
	models.CriteriaXP:             func(u *models.User) int64 { return u.XP },
}

// LevelPolicy derives a user's level from their badge count.
type LevelPolicy struct {
	Name string
	// Next returns the level after one evaluation.
	Next func(level, badges int) int
	// ToNext reports how many more badges the next level needs.
	ToNext func(level, badges int) int
	// Idempotent policies are iterated to a fixed point and are safe to re-run
	// from the sweep.
	Idempotent bool
}

const badgesPerLevel = 3

// BadgeTierLevel: level = max(level, 1 + badges/3).
var BadgeTierLevel = LevelPolicy{
	Name: "badge_tiers",
	Next: func(level, badges int) int {
		return max(level, 1+badges/badgesPerLevel)
	},
	ToNext: func(level, badges int) int {
		return max(0, level*badgesPerLevel-badges)
	},
	Idempotent: true,
}

// LegacyLevel adds one level on every evaluation that sees at least three
// badges, so repeated completions keep raising the level.
var LegacyLevel = LevelPolicy{
	Name: "legacy",
	Next: func(level, badges int) int {
		if badges >= badgesPerLevel {
			return level + 1
		}
		return level
	},
	ToNext: func(_, badges int) int {
		return max(0, badgesPerLevel-badges)
	},
}

var LevelPolicies = map[string]LevelPolicy{
	BadgeTierLevel.Name: BadgeTierLevel,
	LegacyLevel.Name:    LegacyLevel,
}

type ProgressionService struct {
	DB     *gorm.DB
	Policy LevelPolicy
	Now    func() time.Time
}

func NewProgressionService(db *gorm.DB, policy string) *ProgressionService {
	p, ok := LevelPolicies[policy]
	if !ok {
		p = BadgeTierLevel
	}
	return &ProgressionService{DB: db, Policy: p, Now: time.Now}
}

// ProgressUpdate describes what one UpdateProgress call changed.
type ProgressUpdate struct {
	UserID        string         `json:"user_id"`
	XP            int64          `json:"xp"`
	PreviousLevel int            `json:"previous_level"`
	Level         int            `json:"level"`
	Unlocked      []models.Badge `json:"unlocked"`
}

func (u *ProgressUpdate) LeveledUp() bool { return u.Level > u.PreviousLevel }

// AwardXP adds xp to the user inside tx. The increment happens in SQL so
// concurrent awards are not lost.
func (s *ProgressionService) AwardXP(tx *gorm.DB, userID string, xp int64) error {
	return s.credit(tx, userID, map[string]interface{}{
		"xp": gorm.Expr("xp + ?", xp),
	}, xp)
}

// CreditTask adds a completed task's xp and bumps tasks_completed.
func (s *ProgressionService) CreditTask(tx *gorm.DB, userID string, xp int64) error {
	return s.credit(tx, userID, map[string]interface{}{
		"xp":              gorm.Expr("xp + ?", xp),
		"tasks_completed": gorm.Expr("tasks_completed + ?", 1),
	}, xp)
}

func (s *ProgressionService) credit(tx *gorm.DB, userID string, cols map[string]interface{}, xp int64) error {
	if xp < 0 {
		return ValidationError("XP cannot be negative.")
	}
	res := tx.Model(&models.User{}).Where("id = ?", userID).UpdateColumns(cols)
	if res.Error != nil {
		return InternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return NotFoundError("User not found.")
	}
	return nil
}

// UpdateProgress unlocks every badge the user now qualifies for, applies the
// level policy and re-checks level badges, all in one transaction.
func (s *ProgressionService) UpdateProgress(ctx context.Context, userID string) (*ProgressUpdate, error) {
	return s.evaluate(ctx, userID, true)
}

// UpdateProgressSafe runs UpdateProgress and logs failures instead of
// returning them. Completion endpoints call it after their commit.
func (s *ProgressionService) UpdateProgressSafe(ctx context.Context, userID string) *ProgressUpdate {
	update, err := s.UpdateProgress(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("progress update failed")
		return nil
	}
	if len(update.Unlocked) > 0 || update.LeveledUp() {
		logger.Info().
			Str("user_id", userID).
			Int("badges_unlocked", len(update.Unlocked)).
			Int("level", update.Level).
			Msg("progress updated")
	}
	return update
}

func (s *ProgressionService) evaluate(ctx context.Context, userID string, applyLevel bool) (*ProgressUpdate, error) {
	var update *ProgressUpdate
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, "id = ?", userID).Error; err != nil {
			return storeError(err, "User not found.")
		}

		var catalog []models.Badge
		if err := tx.Order("criteria_value ASC").Order("created_at ASC").Find(&catalog).Error; err != nil {
			return InternalError(err)
		}

		var heldIDs []string
		if err := tx.Model(&models.UserBadge{}).
			Where("user_id = ?", user.ID).
			Pluck("badge_id", &heldIDs).Error; err != nil {
			return InternalError(err)
		}
		held := make(map[string]bool, len(heldIDs))
		for _, id := range heldIDs {
			held[id] = true
		}

		update = &ProgressUpdate{UserID: user.ID, XP: user.XP, PreviousLevel: user.Level, Level: user.Level}

		unlocked, err := s.unlock(tx, &user, catalog, held)
		if err != nil {
			return err
		}
		update.Unlocked = append(update.Unlocked, unlocked...)

		if applyLevel {
			user.Level = s.Policy.Next(user.Level, len(held))
			for {
				// a level change can satisfy level-criteria badges
				more, err := s.unlock(tx, &user, catalog, held)
				if err != nil {
					return err
				}
				update.Unlocked = append(update.Unlocked, more...)
				if !s.Policy.Idempotent || len(more) == 0 {
					break
				}
				next := s.Policy.Next(user.Level, len(held))
				if next == user.Level {
					break
				}
				user.Level = next
			}
		}

		if user.Level != update.PreviousLevel {
			now := s.Now()
			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumns(map[string]interface{}{
				"level":            user.Level,
				"last_level_up_at": now,
			}).Error; err != nil {
				return InternalError(err)
			}
		}
		update.Level = user.Level
		return nil
	})
	if err != nil {
		return nil, err
	}
	if update.Unlocked == nil {
		update.Unlocked = []models.Badge{}
	}
	return update, nil
}

// unlock awards every catalog badge not in held whose counter has reached
// its threshold. held is updated in place.
func (s *ProgressionService) unlock(tx *gorm.DB, user *models.User, catalog []models.Badge, held map[string]bool) ([]models.Badge, error) {
	var unlocked []models.Badge
	for _, badge := range catalog {
		if held[badge.ID] {
			continue
		}
		selector, ok := BadgeCriteria[badge.CriteriaType]
		if !ok || selector(user) < badge.CriteriaValue {
			continue
		}

		ub := models.UserBadge{UserID: user.ID, BadgeID: badge.ID, AwardedAt: s.Now()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ub).Error; err != nil {
			return nil, InternalError(err)
		}
		held[badge.ID] = true
		unlocked = append(unlocked, badge)
	}
	return unlocked, nil
}

// ProgressReport is the caller's progression snapshot.
type ProgressReport struct {
	XP             int64              `json:"xp"`
	Level          int                `json:"level"`
	TasksCompleted int64              `json:"tasks_completed"`
	LastLevelUpAt  *time.Time         `json:"last_level_up_at"`
	Badges         []models.UserBadge `json:"badges"`
	BadgesToNext   int                `json:"badges_to_next_level"`
	LevelPolicy    string             `json:"level_policy"`
	NextBadges     []models.Badge     `json:"next_badges"`
}

func (s *ProgressionService) Progress(ctx context.Context, userID string) (*ProgressReport, error) {
	db := s.DB.WithContext(ctx)

	var user models.User
	if err := db.Scopes(withEarnedBadges).First(&user, "id = ?", userID).Error; err != nil {
		return nil, storeError(err, "User not found.")
	}

	held := make([]string, 0, len(user.Badges))
	for _, ub := range user.Badges {
		held = append(held, ub.BadgeID)
	}

	next := []models.Badge{}
	q := db.Order("criteria_value ASC")
	if len(held) > 0 {
		q = q.Where("id NOT IN ?", held)
	}
	if err := q.Find(&next).Error; err != nil {
		return nil, InternalError(err)
	}

	return &ProgressReport{
		XP:             user.XP,
		Level:          user.Level,
		TasksCompleted: user.TasksCompleted,
		LastLevelUpAt:  user.LastLevelUpAt,
		Badges:         user.Badges,
		BadgesToNext:   s.Policy.ToNext(user.Level, len(user.Badges)),
		LevelPolicy:    s.Policy.Name,
		NextBadges:     next,
	}, nil
}

// Sweep re-evaluates every user so that progress updates lost after a
// completion are eventually applied. Non-idempotent level policies only get
// their badges repaired.
func (s *ProgressionService) Sweep(ctx context.Context) (users, unlocked int, err error) {
	var batch []models.User
	res := s.DB.WithContext(ctx).Select("id").FindInBatches(&batch, 100, func(tx *gorm.DB, _ int) error {
		for _, u := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			update, err := s.evaluate(ctx, u.ID, s.Policy.Idempotent)
			if err != nil {
				logger.Warn().Err(err).Str("user_id", u.ID).Msg("sweep: progress update failed")
				continue
			}
			users++
			unlocked += len(update.Unlocked)
		}
		return nil
	})
	return users, unlocked, res.Error
}
