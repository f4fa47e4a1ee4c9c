// Package schema maps numeric item attributes to display names. The
// name tables ship embedded so lookups never need the network.
package schema

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

//go:embed items.yaml
var itemsYAML []byte

type tables struct {
	Weapons  map[int32]string `yaml:"weapons"`
	Paints   map[int32]string `yaml:"paints"`
	Rarities map[int32]string `yaml:"rarities"`
	Origins  map[int32]string `yaml:"origins"`
}

// Schema resolves display names for inspected items.
type Schema struct {
	t tables
}

// Load parses the embedded name tables.
func Load() (*Schema, error) {
	var t tables
	if err := yaml.Unmarshal(itemsYAML, &t); err != nil {
		return nil, fmt.Errorf("op=schema.Load: %w", err)
	}
	return &Schema{t: t}, nil
}

// WeaponName returns the weapon name for defIndex, or "" when unknown.
func (s *Schema) WeaponName(defIndex int32) string { return s.t.Weapons[defIndex] }

// PaintName returns the finish name for paintIndex, or "" when unknown.
func (s *Schema) PaintName(paintIndex int32) string { return s.t.Paints[paintIndex] }

// RarityName returns the rarity tier name, or "" when unknown.
func (s *Schema) RarityName(rarity int32) string { return s.t.Rarities[rarity] }

// OriginName returns the acquisition origin name, or "" when unknown.
func (s *Schema) OriginName(origin int32) string { return s.t.Origins[origin] }

// WearName buckets a float wear value into its market category.
func WearName(wear float64) string {
	switch {
	case wear < 0.07:
		return "Factory New"
	case wear < 0.15:
		return "Minimal Wear"
	case wear < 0.38:
		return "Field-Tested"
	case wear < 0.45:
		return "Well-Worn"
	default:
		return "Battle-Scarred"
	}
}

// ItemName composes the market-style display name, e.g.
// "AK-47 | Fire Serpent (Field-Tested)". Unknown parts are omitted.
func (s *Schema) ItemName(info *domain.ItemInfo) string {
	weapon := s.WeaponName(info.DefIndex)
	if weapon == "" {
		return ""
	}
	name := weapon
	if info.PaintIndex != nil {
		if paint := s.PaintName(*info.PaintIndex); paint != "" {
			name += " | " + paint
		}
	}
	if info.PaintWear != nil {
		name += " (" + WearName(*info.PaintWear) + ")"
	}
	return name
}
