// Package character holds the canonical in-memory shape of a character
// document, its flat storage codec and the pure mutation operations applied
// to it.
package character

// Attribute groups and their fixed keys. Every decoded document carries all
// of them, whatever the stored payload contained.
const (
	GroupBasic = "basicAttributes"
	GroupMagic = "magicAttributes"
)

var (
	BasicAttributeKeys = []string{"forca", "destreza", "agilidade", "constituicao", "inteligencia", "sabedoria", "carisma"}
	MagicAttributeKeys = []string{"arcano", "elemental", "espiritual", "ki"}
	CapacityKeys       = []string{"vida", "energia"}
	CombatKeys         = []string{"iniciativa", "defesa", "esquiva", "bloqueio"}
)

// List names, as used in mutation paths and in storage.
const (
	ListInventory       = "inventory"
	ListAdvantages      = "advantages"
	ListDisadvantages   = "disadvantages"
	ListAbilities       = "abilities"
	ListSpecializations = "specializations"
	ListEquippedItems   = "equippedItems"
	ListHistory         = "history"
)

const (
	DefaultXP       = 100
	HistoryTypeText = "text"
)

type Attribute struct {
	Base      int `json:"base"`
	PermBonus int `json:"permBonus"`
	CondBonus int `json:"condBonus"`
	Total     int `json:"total"`
}

func (a *Attribute) recompute() {
	a.Total = a.Base + a.PermBonus + a.CondBonus
}

type Capacity struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

type MainAttributes struct {
	Vida       Capacity `json:"vida"`
	Energia    Capacity `json:"energia"`
	Iniciativa int      `json:"iniciativa"`
	Defesa     int      `json:"defesa"`
	Esquiva    int      `json:"esquiva"`
	Bloqueio   int      `json:"bloqueio"`
}

type Wallet struct {
	Zeni int `json:"zeni"`
}

type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsCollapsed bool   `json:"isCollapsed"`
}

type Origin struct {
	Class  bool `json:"class"`
	Race   bool `json:"race"`
	Manual bool `json:"manual"`
}

// Perk is an advantage or a disadvantage.
type Perk struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Value       int    `json:"value"`
	Origin      Origin `json:"origin"`
	IsCollapsed bool   `json:"isCollapsed"`
}

// Ability is used for both abilities and specializations.
type Ability struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsCollapsed bool   `json:"isCollapsed"`
}

// HistoryEntry is a tagged union; only HistoryTypeText is defined.
type HistoryEntry struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	IsCollapsed bool   `json:"isCollapsed"`
}

type Document struct {
	ID       string `json:"id"`
	OwnerID  string `json:"ownerId"`
	Name     string `json:"name"`
	Race     string `json:"race"`
	Age      int    `json:"age"`
	Level    int    `json:"level"`
	XP       int    `json:"xp"`
	PhotoURI string `json:"photoUri"`
	Notes    string `json:"notes"`
	Deleted  bool   `json:"deleted"`

	MainAttributes  MainAttributes       `json:"mainAttributes"`
	BasicAttributes map[string]Attribute `json:"basicAttributes"`
	MagicAttributes map[string]Attribute `json:"magicAttributes"`
	Wallet          Wallet               `json:"wallet"`

	Inventory       []Item         `json:"inventory"`
	Advantages      []Perk         `json:"advantages"`
	Disadvantages   []Perk         `json:"disadvantages"`
	Abilities       []Ability      `json:"abilities"`
	Specializations []Ability      `json:"specializations"`
	EquippedItems   []Item         `json:"equippedItems"`
	History         []HistoryEntry `json:"history"`
}

// ListEntry is the projection shown in character lists.
type ListEntry struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Race    string `json:"race"`
	Level   int    `json:"level"`
	Deleted bool   `json:"deleted"`
}

// New returns a document with every field at its schema default.
func New(id, ownerID, name string) Document {
	doc := Document{
		ID:      id,
		OwnerID: ownerID,
		Name:    name,
		XP:      DefaultXP,
	}
	doc.BasicAttributes = defaultGroup(BasicAttributeKeys)
	doc.MagicAttributes = defaultGroup(MagicAttributeKeys)
	doc.ensureLists()
	return doc
}

func (d Document) Entry() ListEntry {
	return ListEntry{
		ID:      d.ID,
		OwnerID: d.OwnerID,
		Name:    d.Name,
		Race:    d.Race,
		Level:   d.Level,
		Deleted: d.Deleted,
	}
}

// Clone returns a deep copy so mutations never alias the receiver.
func (d Document) Clone() Document {
	out := d
	out.BasicAttributes = cloneGroup(d.BasicAttributes)
	out.MagicAttributes = cloneGroup(d.MagicAttributes)
	out.Inventory = append([]Item{}, d.Inventory...)
	out.Advantages = append([]Perk{}, d.Advantages...)
	out.Disadvantages = append([]Perk{}, d.Disadvantages...)
	out.Abilities = append([]Ability{}, d.Abilities...)
	out.Specializations = append([]Ability{}, d.Specializations...)
	out.EquippedItems = append([]Item{}, d.EquippedItems...)
	out.History = append([]HistoryEntry{}, d.History...)
	return out
}

// group returns the attribute map for name, or nil when unknown.
func (d *Document) group(name string) (map[string]Attribute, []string) {
	switch name {
	case GroupBasic:
		return d.BasicAttributes, BasicAttributeKeys
	case GroupMagic:
		return d.MagicAttributes, MagicAttributeKeys
	default:
		return nil, nil
	}
}

func (d *Document) ensureLists() {
	if d.Inventory == nil {
		d.Inventory = []Item{}
	}
	if d.Advantages == nil {
		d.Advantages = []Perk{}
	}
	if d.Disadvantages == nil {
		d.Disadvantages = []Perk{}
	}
	if d.Abilities == nil {
		d.Abilities = []Ability{}
	}
	if d.Specializations == nil {
		d.Specializations = []Ability{}
	}
	if d.EquippedItems == nil {
		d.EquippedItems = []Item{}
	}
	if d.History == nil {
		d.History = []HistoryEntry{}
	}
}

func defaultGroup(keys []string) map[string]Attribute {
	out := make(map[string]Attribute, len(keys))
	for _, key := range keys {
		out[key] = Attribute{}
	}
	return out
}

// backfillGroup adds the missing fixed keys and re-derives every total.
func backfillGroup(group map[string]Attribute, keys []string) map[string]Attribute {
	if group == nil {
		group = make(map[string]Attribute, len(keys))
	}
	for _, key := range keys {
		attr := group[key]
		attr.recompute()
		group[key] = attr
	}
	return group
}

func cloneGroup(group map[string]Attribute) map[string]Attribute {
	if group == nil {
		return nil
	}
	out := make(map[string]Attribute, len(group))
	for key, value := range group {
		out[key] = value
	}
	return out
}

func isFixedKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
