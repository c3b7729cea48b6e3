package database

import (
	_ "embed"
	"errors"
	"fmt"
	"io"

	"game-mission-service/models"

	"github.com/gosimple/slug"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed seed.yaml
var defaultSeed []byte

// DefaultSeed returns the catalog shipped with the binary.
func DefaultSeed() []byte {
	return defaultSeed
}

type Catalog struct {
	Levels   []models.Level `yaml:"levels"`
	Titles   []SeedTitle    `yaml:"titles"`
	Missions []SeedMission  `yaml:"missions"`
	Users    []SeedUser     `yaml:"users"`
}

type SeedTitle struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	Rarity      string `yaml:"rarity"`
}

type SeedRequirement struct {
	Strategy    string `yaml:"strategy"`
	Goal        int64  `yaml:"goal"`
	Description string `yaml:"description"`
}

type SeedMission struct {
	Title        string            `yaml:"title"`
	Description  string            `yaml:"description"`
	Coins        int64             `yaml:"coins"`
	Experience   int64             `yaml:"experience"`
	Frequency    string            `yaml:"frequency"`
	Status       string            `yaml:"status"`
	Targets      []string          `yaml:"targets"` // user ids; empty means everyone
	Requirements []SeedRequirement `yaml:"requirements"`
	Titles       []string          `yaml:"titles"` // title slugs granted on completion
}

type SeedUser struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
}

type SeedResult struct {
	Levels   int
	Titles   int
	Missions int
	Users    int
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &cat, nil
}

// Seed upserts levels and titles and creates missions that do not exist yet
// (matched by slug). Existing missions are left untouched.
func Seed(db *gorm.DB, cat *Catalog) (SeedResult, error) {
	var res SeedResult
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, u := range cat.Users {
			user := models.User{UUIDModel: models.UUIDModel{ID: u.ID}, Username: u.Username}
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
			if result.Error != nil {
				return fmt.Errorf("seed user %s: %w", u.Username, result.Error)
			}
			wallet := models.Wallet{UserID: user.ID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&wallet).Error; err != nil {
				return fmt.Errorf("seed wallet %s: %w", u.Username, err)
			}
			res.Users += int(result.RowsAffected)
		}

		for _, lvl := range cat.Levels {
			lvl := lvl
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "level"}},
				DoUpdates: clause.AssignmentColumns([]string{"experience", "coins"}),
			}).Create(&lvl).Error; err != nil {
				return fmt.Errorf("seed level %d: %w", lvl.Level, err)
			}
			res.Levels++
		}

		titleIDs := make(map[string]string, len(cat.Titles))
		for _, t := range cat.Titles {
			title := models.Title{
				Name:        t.Name,
				Slug:        t.Slug,
				Description: t.Description,
				Icon:        t.Icon,
				Rarity:      t.Rarity,
			}
			if title.Slug == "" {
				title.Slug = slug.Make(t.Name)
			}
			if title.Rarity == "" {
				title.Rarity = "common"
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "description", "icon", "rarity"}),
			}).Create(&title).Error; err != nil {
				return fmt.Errorf("seed title %s: %w", t.Name, err)
			}
			// On conflict the generated id is not the stored one.
			var stored models.Title
			if err := tx.Where("slug = ?", title.Slug).First(&stored).Error; err != nil {
				return err
			}
			titleIDs[stored.Slug] = stored.ID
			res.Titles++
		}

		for _, m := range cat.Missions {
			created, err := seedMission(tx, m, titleIDs)
			if err != nil {
				return err
			}
			if created {
				res.Missions++
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}

	log.WithFields(log.Fields{
		"levels":   res.Levels,
		"titles":   res.Titles,
		"missions": res.Missions,
		"users":    res.Users,
	}).Info("🌱 Catalog seeded")
	return res, nil
}

func seedMission(tx *gorm.DB, m SeedMission, titleIDs map[string]string) (bool, error) {
	missionSlug := slug.Make(m.Title)

	var count int64
	if err := tx.Model(&models.Mission{}).Where("slug = ?", missionSlug).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	mission := models.Mission{
		Title:       m.Title,
		Slug:        missionSlug,
		Description: m.Description,
		Coins:       m.Coins,
		Experience:  m.Experience,
		Frequency:   models.FrequencyOnce,
		ForAll:      len(m.Targets) == 0,
		Status:      models.MissionAvailable,
	}
	if m.Frequency != "" {
		mission.Frequency = models.MissionFrequency(m.Frequency)
	}
	if m.Status != "" {
		mission.Status = models.MissionStatus(m.Status)
	}
	if !mission.Frequency.Valid() {
		return false, fmt.Errorf("mission %s: unknown frequency %q", m.Title, m.Frequency)
	}
	if !mission.Status.Valid() {
		return false, fmt.Errorf("mission %s: unknown status %q", m.Title, m.Status)
	}
	for i, r := range m.Requirements {
		mission.Requirements = append(mission.Requirements, models.MissionRequirement{
			StrategyKey: r.Strategy,
			Goal:        r.Goal,
			Description: r.Description,
			Position:    i,
		})
	}
	if err := tx.Create(&mission).Error; err != nil {
		return false, fmt.Errorf("seed mission %s: %w", m.Title, err)
	}

	for i, titleSlug := range m.Titles {
		titleID, ok := titleIDs[titleSlug]
		if !ok {
			var title models.Title
			if err := tx.Where("slug = ?", titleSlug).First(&title).Error; err != nil {
				return false, fmt.Errorf("mission %s references unknown title %q", m.Title, titleSlug)
			}
			titleID = title.ID
		}
		link := models.Reward{
			SourceableType: models.SourceMission,
			SourceableID:   mission.ID,
			RewardableType: models.RewardableTitle,
			RewardableID:   titleID,
			Position:       i,
		}
		if err := tx.Create(&link).Error; err != nil {
			return false, err
		}
	}

	if len(m.Targets) > 0 {
		var targets []models.User
		if err := tx.Where("id IN ?", m.Targets).Find(&targets).Error; err != nil {
			return false, err
		}
		if len(targets) != len(m.Targets) {
			return false, fmt.Errorf("mission %s targets unknown users", m.Title)
		}
		if err := tx.Model(&mission).Association("TargetUsers").Append(targets); err != nil {
			return false, fmt.Errorf("seed mission targets %s: %w", m.Title, err)
		}
	}
	return true, nil
}
