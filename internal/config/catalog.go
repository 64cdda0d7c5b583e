package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"guildboard/internal/domain"
)

// Catalog models achievements.yml, the global achievement catalogue.
type Catalog struct {
	Achievements []domain.AchievementDefinition `yaml:"achievements"`
}

// Validate checks ids are unique and every definition is usable. Requirement
// types are not checked against the registry; unknown types are skipped at
// evaluation time.
func (c *Catalog) Validate() error {
	if len(c.Achievements) == 0 {
		return fmt.Errorf("catalog.achievements is required")
	}
	seen := make(map[string]struct{}, len(c.Achievements))
	for i, a := range c.Achievements {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("achievement #%d has empty id", i+1)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("duplicate achievement id %s", a.ID)
		}
		seen[a.ID] = struct{}{}
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("achievement %s has empty name", a.ID)
		}
		if strings.TrimSpace(a.RequirementType) == "" {
			return fmt.Errorf("achievement %s has empty requirement_type", a.ID)
		}
		if a.RequirementValue < 0 {
			return fmt.Errorf("achievement %s has negative requirement_value", a.ID)
		}
	}
	return nil
}

// CatalogFromYAML parses and validates a catalogue.
func CatalogFromYAML(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// CatalogFromFile reads a YAML catalogue from path.
func CatalogFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return CatalogFromYAML(data)
}

// DefaultCatalog returns the built-in catalogue covering every registered
// requirement type.
func DefaultCatalog() *Catalog {
	var c Catalog
	_ = yaml.Unmarshal([]byte(DefaultCatalogYAML), &c)
	return &c
}

const DefaultCatalogYAML = `achievements:
  - id: full-roster
    name: Full Roster
    description: "Grow the guild to 50 members"
    category: social
    requirement_type: member_count
    requirement_value: 50
  - id: siege-breakers
    name: Siege Breakers
    description: "Win 10 sieges"
    category: warfare
    requirement_type: siege_wins
    requirement_value: 10
  - id: deep-coffers
    name: Deep Coffers
    description: "Record 100 deposits in the guild bank"
    category: economy
    requirement_type: bank_deposits
    requirement_value: 100
  - id: trade-routes
    name: Trade Routes
    description: "Complete 25 caravans"
    category: economy
    requirement_type: caravan_complete
    requirement_value: 25
  - id: hall-of-grandmasters
    name: Hall of Grandmasters
    description: "Have 5 characters holding a grandmaster title"
    category: crafting
    requirement_type: grandmaster_count
    requirement_value: 5
  - id: event-hosts
    name: Event Hosts
    description: "Host 20 guild events"
    category: social
    requirement_type: events_hosted
    requirement_value: 20
  - id: bustling-hall
    name: Bustling Hall
    description: "30 members active in the last week"
    category: social
    requirement_type: weekly_active
    requirement_value: 30
  - id: gathering-journeymen
    name: Gathering Journeymen
    description: "Every gathering skill at journeyman"
    category: crafting
    requirement_type: gathering_journeyman
    requirement_value: 1
  - id: gathering-masters
    name: Gathering Masters
    description: "Every gathering skill at master"
    category: crafting
    requirement_type: gathering_master
    requirement_value: 1
  - id: gathering-grandmasters
    name: Gathering Grandmasters
    description: "Every gathering skill at grandmaster"
    category: crafting
    requirement_type: gathering_grandmaster
    requirement_value: 1
  - id: processing-journeymen
    name: Processing Journeymen
    description: "Every processing skill at journeyman"
    category: crafting
    requirement_type: processing_journeyman
    requirement_value: 1
  - id: processing-masters
    name: Processing Masters
    description: "Every processing skill at master"
    category: crafting
    requirement_type: processing_master
    requirement_value: 1
  - id: processing-grandmasters
    name: Processing Grandmasters
    description: "Every processing skill at grandmaster"
    category: crafting
    requirement_type: processing_grandmaster
    requirement_value: 1
  - id: crafting-journeymen
    name: Crafting Journeymen
    description: "Every crafting skill at journeyman"
    category: crafting
    requirement_type: crafting_journeyman
    requirement_value: 1
  - id: crafting-masters
    name: Crafting Masters
    description: "Every crafting skill at master"
    category: crafting
    requirement_type: crafting_master
    requirement_value: 1
  - id: crafting-grandmasters
    name: Crafting Grandmasters
    description: "Every crafting skill at grandmaster"
    category: crafting
    requirement_type: crafting_grandmaster
    requirement_value: 1
  - id: jack-of-all-trades
    name: Jack of All Trades
    description: "Every skill in every tier at grandmaster"
    category: crafting
    requirement_type: jack_of_all_trades
    requirement_value: 1
  - id: master-of-all-trades
    name: Master of All Trades
    description: "Three master skills in each tier"
    category: crafting
    requirement_type: master_of_all_trades
    requirement_value: 1
`
