// Package format defines the debate format catalog and role expansion.
package format

import (
	"fmt"
	"strconv"

	"github.com/satoruisaka/TwistedDebate/internal/core"
)

// ID identifies a debate format.
type ID string

const (
	OneToOne   ID = "one-to-one"
	CrossExam  ID = "cross-exam"
	ManyOnOne  ID = "many-on-one"
	Panel      ID = "panel"
	RoundRobin ID = "round-robin"
)

// RoleSpec describes one role slot in a format. A singular role
// (Min == Max == 1) keeps its base name; a group role expands into
// numbered roles base1..baseN.
type RoleSpec struct {
	Base         string `json:"base"`
	Min          int    `json:"min"`
	Max          int    `json:"max"`
	HumanAllowed bool   `json:"human_allowed"`
}

// Singular reports whether the role expands to exactly one seat.
func (r RoleSpec) Singular() bool {
	return r.Min == 1 && r.Max == 1
}

// Spec describes a debate format: its roles in speaking order and
// whether the format opens with a pre-round statement.
type Spec struct {
	ID          ID         `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Roles       []RoleSpec `json:"roles"`
	HasOpening  bool       `json:"has_opening"`
}

// Role is one expanded seat with its human-allowance carried over.
type Role struct {
	Name         string `json:"name"`
	HumanAllowed bool   `json:"human_allowed"`
}

var catalog = []Spec{
	{
		ID:          OneToOne,
		Name:        "One-to-One",
		Description: "Two debaters take alternating turns on the topic",
		Roles: []RoleSpec{
			{Base: "debater1", Min: 1, Max: 1, HumanAllowed: true},
			{Base: "debater2", Min: 1, Max: 1, HumanAllowed: true},
		},
	},
	{
		ID:          CrossExam,
		Name:        "Cross-Examination",
		Description: "An examiner interrogates an examinee round by round",
		Roles: []RoleSpec{
			{Base: "examiner", Min: 1, Max: 1},
			{Base: "examinee", Min: 1, Max: 1},
		},
	},
	{
		ID:          ManyOnOne,
		Name:        "Many-on-One",
		Description: "One examinee opens, then a bench of examiners presses them each round",
		Roles: []RoleSpec{
			{Base: "examinee", Min: 1, Max: 1},
			{Base: "examiner", Min: 2, Max: 6},
		},
		HasOpening: true,
	},
	{
		ID:          Panel,
		Name:        "Panel",
		Description: "A moderator leads panelists and closes with a synthesis",
		Roles: []RoleSpec{
			{Base: "moderator", Min: 1, Max: 1, HumanAllowed: true},
			{Base: "panelist", Min: 1, Max: 6},
		},
	},
	{
		ID:          RoundRobin,
		Name:        "Round-Robin",
		Description: "Every participant speaks once per round in fixed order",
		Roles: []RoleSpec{
			{Base: "participant", Min: 2, Max: 6},
		},
	},
}

// Catalog returns every format in display order.
func Catalog() []Spec {
	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out
}

// Get returns the format with the given ID.
func Get(id ID) (Spec, error) {
	for _, s := range catalog {
		if s.ID == id {
			return s, nil
		}
	}
	return Spec{}, fmt.Errorf("unknown format %q", id)
}

// IDs returns every format ID in display order.
func IDs() []ID {
	ids := make([]ID, len(catalog))
	for i, s := range catalog {
		ids[i] = s.ID
	}
	return ids
}

// ExpandRoles materializes the format's roles into concrete seat names.
// counts sets the size of each group role by base name; omitted group
// roles default to their minimum. Counts for singular roles must be
// absent or 1.
func (s Spec) ExpandRoles(counts map[string]int) ([]Role, error) {
	var roles []Role
	for _, rs := range s.Roles {
		n, set := counts[rs.Base]
		if !set {
			n = rs.Min
		}
		if n < rs.Min || n > rs.Max {
			return nil, fmt.Errorf("format %s: role %q takes %d-%d seats, got %d",
				s.ID, rs.Base, rs.Min, rs.Max, n)
		}
		if rs.Singular() {
			roles = append(roles, Role{Name: rs.Base, HumanAllowed: rs.HumanAllowed})
			continue
		}
		for i := 1; i <= n; i++ {
			roles = append(roles, Role{
				Name:         rs.Base + strconv.Itoa(i),
				HumanAllowed: rs.HumanAllowed,
			})
		}
	}
	return roles, nil
}

// Validate checks a participant list against the format: roles must
// match an expansion of the format's role specs in order, group sizes
// must stay within bounds, and human seats are only allowed where the
// format permits them.
func (s Spec) Validate(participants []core.Participant) error {
	i := 0
	for _, rs := range s.Roles {
		var taken int
		if rs.Singular() {
			if i >= len(participants) || participants[i].Role != rs.Base {
				return fmt.Errorf("format %s: expected role %q at position %d", s.ID, rs.Base, i)
			}
			taken = 1
		} else {
			for taken < rs.Max && i+taken < len(participants) &&
				participants[i+taken].Role == rs.Base+strconv.Itoa(taken+1) {
				taken++
			}
			if taken < rs.Min {
				return fmt.Errorf("format %s: role %q needs at least %d seats, got %d",
					s.ID, rs.Base, rs.Min, taken)
			}
		}
		for j := i; j < i+taken; j++ {
			p := participants[j]
			if p.Actor == "" {
				return fmt.Errorf("participant %q has no actor", p.Role)
			}
			if p.IsHuman() && !rs.HumanAllowed {
				return fmt.Errorf("format %s: role %q cannot be human", s.ID, p.Role)
			}
			if !p.IsHuman() {
				if p.Mode != "" && !p.Mode.Valid() {
					return fmt.Errorf("participant %q: unknown mode %q", p.Role, p.Mode)
				}
				if p.Tone != "" && !p.Tone.Valid() {
					return fmt.Errorf("participant %q: unknown tone %q", p.Role, p.Tone)
				}
			}
		}
		i += taken
	}
	if i != len(participants) {
		return fmt.Errorf("format %s: unexpected participant %q", s.ID, participants[i].Role)
	}
	return nil
}
