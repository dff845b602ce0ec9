package character

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrUnknownField = errors.New("unknown field")

// Mutation is a pure transformation of a document. Mutations never perform
// I/O and never look at who is editing; permission is enforced when the
// result is persisted.
type Mutation interface {
	apply(*Document)
}

// Apply returns a copy of d with every mutation applied in order.
func Apply(d Document, mutations ...Mutation) Document {
	out := d.Clone()
	for _, m := range mutations {
		m.apply(&out)
	}
	return out
}

type SetScalar struct {
	Field string
	Value string
}

func (m SetScalar) apply(d *Document) {
	switch m.Field {
	case "name":
		d.Name = m.Value
	case "race":
		d.Race = m.Value
	case "notes":
		d.Notes = m.Value
	case "photoUri":
		d.PhotoURI = m.Value
	case "age":
		d.Age = CoerceInt(m.Value)
	case "level":
		d.Level = CoerceInt(m.Value)
	case "xp":
		d.XP = CoerceInt(m.Value)
	}
}

// SetAttribute rewrites one input component of an attribute and recomputes
// its total. Other keys are left untouched.
type SetAttribute struct {
	Group     string
	Key       string
	Component string
	Value     string
}

func (m SetAttribute) apply(d *Document) {
	group, keys := d.group(m.Group)
	if keys == nil || !isFixedKey(keys, m.Key) {
		return
	}
	if group == nil {
		group = defaultGroup(keys)
		if m.Group == GroupBasic {
			d.BasicAttributes = group
		} else {
			d.MagicAttributes = group
		}
	}
	attr := group[m.Key]
	value := CoerceInt(m.Value)
	switch m.Component {
	case "base":
		attr.Base = value
	case "permBonus":
		attr.PermBonus = value
	case "condBonus":
		attr.CondBonus = value
	default:
		return
	}
	attr.recompute()
	group[m.Key] = attr
}

// SetVital edits mainAttributes. Capacity keys take a component
// ("current" or "max"); combat keys take none.
type SetVital struct {
	Key       string
	Component string
	Value     string
}

func (m SetVital) apply(d *Document) {
	value := CoerceInt(m.Value)
	main := &d.MainAttributes
	var capacity *Capacity
	switch m.Key {
	case "vida":
		capacity = &main.Vida
	case "energia":
		capacity = &main.Energia
	case "iniciativa":
		main.Iniciativa = value
		return
	case "defesa":
		main.Defesa = value
		return
	case "esquiva":
		main.Esquiva = value
		return
	case "bloqueio":
		main.Bloqueio = value
		return
	default:
		return
	}
	switch m.Component {
	case "current":
		capacity.Current = value
	case "max":
		capacity.Max = value
	}
}

type SetZeni struct {
	Value string
}

func (m SetZeni) apply(d *Document) {
	d.Wallet.Zeni = max(CoerceInt(m.Value), 0)
}

type Credit struct {
	Amount int
}

func (m Credit) apply(d *Document) {
	if m.Amount <= 0 {
		return
	}
	d.Wallet.Zeni += m.Amount
}

// Debit subtracts from the wallet, flooring the balance at zero.
type Debit struct {
	Amount int
}

func (m Debit) apply(d *Document) {
	if m.Amount <= 0 {
		return
	}
	d.Wallet.Zeni = max(d.Wallet.Zeni-m.Amount, 0)
}

// AddItem appends an empty element carrying ID to List.
type AddItem struct {
	List string
	ID   string
}

// NewAddItem generates the element id up front so applying stays
// deterministic.
func NewAddItem(list string) AddItem {
	return AddItem{List: list, ID: newItemID()}
}

func (m AddItem) apply(d *Document) {
	switch m.List {
	case ListInventory:
		d.Inventory = append(d.Inventory, Item{ID: m.ID})
	case ListEquippedItems:
		d.EquippedItems = append(d.EquippedItems, Item{ID: m.ID})
	case ListAdvantages:
		d.Advantages = append(d.Advantages, Perk{ID: m.ID})
	case ListDisadvantages:
		d.Disadvantages = append(d.Disadvantages, Perk{ID: m.ID})
	case ListAbilities:
		d.Abilities = append(d.Abilities, Ability{ID: m.ID})
	case ListSpecializations:
		d.Specializations = append(d.Specializations, Ability{ID: m.ID})
	case ListHistory:
		d.History = append(d.History, HistoryEntry{ID: m.ID, Type: HistoryTypeText})
	}
}

type RemoveItem struct {
	List string
	ID   string
}

func (m RemoveItem) apply(d *Document) {
	switch m.List {
	case ListInventory:
		d.Inventory = removeByID(d.Inventory, m.ID, itemID)
	case ListEquippedItems:
		d.EquippedItems = removeByID(d.EquippedItems, m.ID, itemID)
	case ListAdvantages:
		d.Advantages = removeByID(d.Advantages, m.ID, perkID)
	case ListDisadvantages:
		d.Disadvantages = removeByID(d.Disadvantages, m.ID, perkID)
	case ListAbilities:
		d.Abilities = removeByID(d.Abilities, m.ID, abilityID)
	case ListSpecializations:
		d.Specializations = removeByID(d.Specializations, m.ID, abilityID)
	case ListHistory:
		d.History = removeByID(d.History, m.ID, historyID)
	}
}

// EditItem rewrites one field of the element with ID. A missing id is a
// no-op.
type EditItem struct {
	List  string
	ID    string
	Field string
	Value string
}

func (m EditItem) apply(d *Document) {
	switch m.List {
	case ListInventory:
		editByID(d.Inventory, m.ID, itemID, func(it *Item) { editItem(it, m.Field, m.Value) })
	case ListEquippedItems:
		editByID(d.EquippedItems, m.ID, itemID, func(it *Item) { editItem(it, m.Field, m.Value) })
	case ListAdvantages:
		editByID(d.Advantages, m.ID, perkID, func(p *Perk) { editPerk(p, m.Field, m.Value) })
	case ListDisadvantages:
		editByID(d.Disadvantages, m.ID, perkID, func(p *Perk) { editPerk(p, m.Field, m.Value) })
	case ListAbilities:
		editByID(d.Abilities, m.ID, abilityID, func(a *Ability) { editAbility(a, m.Field, m.Value) })
	case ListSpecializations:
		editByID(d.Specializations, m.ID, abilityID, func(a *Ability) { editAbility(a, m.Field, m.Value) })
	case ListHistory:
		editByID(d.History, m.ID, historyID, func(h *HistoryEntry) {
			if m.Field == "value" {
				h.Value = m.Value
			}
		})
	}
}

// ToggleOrigin flips one origin flag of an advantage or disadvantage.
type ToggleOrigin struct {
	List string
	ID   string
	Flag string
}

func (m ToggleOrigin) apply(d *Document) {
	toggle := func(p *Perk) {
		switch m.Flag {
		case "class":
			p.Origin.Class = !p.Origin.Class
		case "race":
			p.Origin.Race = !p.Origin.Race
		case "manual":
			p.Origin.Manual = !p.Origin.Manual
		}
	}
	switch m.List {
	case ListAdvantages:
		editByID(d.Advantages, m.ID, perkID, toggle)
	case ListDisadvantages:
		editByID(d.Disadvantages, m.ID, perkID, toggle)
	}
}

type ToggleCollapsed struct {
	List string
	ID   string
}

func (m ToggleCollapsed) apply(d *Document) {
	switch m.List {
	case ListInventory:
		editByID(d.Inventory, m.ID, itemID, func(it *Item) { it.IsCollapsed = !it.IsCollapsed })
	case ListEquippedItems:
		editByID(d.EquippedItems, m.ID, itemID, func(it *Item) { it.IsCollapsed = !it.IsCollapsed })
	case ListAdvantages:
		editByID(d.Advantages, m.ID, perkID, func(p *Perk) { p.IsCollapsed = !p.IsCollapsed })
	case ListDisadvantages:
		editByID(d.Disadvantages, m.ID, perkID, func(p *Perk) { p.IsCollapsed = !p.IsCollapsed })
	case ListAbilities:
		editByID(d.Abilities, m.ID, abilityID, func(a *Ability) { a.IsCollapsed = !a.IsCollapsed })
	case ListSpecializations:
		editByID(d.Specializations, m.ID, abilityID, func(a *Ability) { a.IsCollapsed = !a.IsCollapsed })
	case ListHistory:
		editByID(d.History, m.ID, historyID, func(h *HistoryEntry) { h.IsCollapsed = !h.IsCollapsed })
	}
}

// ParseMutation maps a dotted field path and a raw value to a mutation:
//
//	name | race | age | level | xp | notes | photoUri
//	basicAttributes.<key>.<base|permBonus|condBonus>
//	mainAttributes.<vida|energia>.<current|max>, mainAttributes.<combat key>
//	wallet.zeni
//	<list>.<id>.<field>, <list>.<id>.isCollapsed, <advantages|disadvantages>.<id>.origin.<flag>
func ParseMutation(path, value string) (Mutation, error) {
	parts := strings.Split(strings.TrimSpace(path), ".")
	switch parts[0] {
	case "name", "race", "age", "level", "xp", "notes", "photoUri":
		if len(parts) == 1 {
			return SetScalar{Field: parts[0], Value: value}, nil
		}
	case GroupBasic, GroupMagic:
		keys := BasicAttributeKeys
		if parts[0] == GroupMagic {
			keys = MagicAttributeKeys
		}
		if len(parts) == 3 && isFixedKey(keys, parts[1]) && isAttributeInput(parts[2]) {
			return SetAttribute{Group: parts[0], Key: parts[1], Component: parts[2], Value: value}, nil
		}
	case "mainAttributes":
		if len(parts) == 3 && isFixedKey(CapacityKeys, parts[1]) && (parts[2] == "current" || parts[2] == "max") {
			return SetVital{Key: parts[1], Component: parts[2], Value: value}, nil
		}
		if len(parts) == 2 && isFixedKey(CombatKeys, parts[1]) {
			return SetVital{Key: parts[1], Value: value}, nil
		}
	case "wallet":
		if len(parts) == 2 && parts[1] == "zeni" {
			return SetZeni{Value: value}, nil
		}
	case ListInventory, ListEquippedItems, ListAdvantages, ListDisadvantages, ListAbilities, ListSpecializations, ListHistory:
		return parseListMutation(parts, value)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownField, path)
}

func parseListMutation(parts []string, value string) (Mutation, error) {
	path := strings.Join(parts, ".")
	if len(parts) < 3 || parts[1] == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	list, id, field := parts[0], parts[1], parts[2]
	if field == "isCollapsed" && len(parts) == 3 {
		return ToggleCollapsed{List: list, ID: id}, nil
	}
	if field == "origin" && len(parts) == 4 && (list == ListAdvantages || list == ListDisadvantages) {
		switch parts[3] {
		case "class", "race", "manual":
			return ToggleOrigin{List: list, ID: id, Flag: parts[3]}, nil
		}
	}
	if len(parts) == 3 && isListField(list, field) {
		return EditItem{List: list, ID: id, Field: field, Value: value}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownField, path)
}

// IsList reports whether name is one of the document lists.
func IsList(name string) bool {
	switch name {
	case ListInventory, ListEquippedItems, ListAdvantages, ListDisadvantages, ListAbilities, ListSpecializations, ListHistory:
		return true
	}
	return false
}

func isListField(list, field string) bool {
	switch list {
	case ListInventory, ListEquippedItems:
		return field == "name" || field == "description"
	case ListAdvantages, ListDisadvantages:
		return field == "name" || field == "description" || field == "value"
	case ListAbilities, ListSpecializations:
		return field == "title" || field == "description"
	case ListHistory:
		return field == "value"
	}
	return false
}

func isAttributeInput(component string) bool {
	return component == "base" || component == "permBonus" || component == "condBonus"
}

func editItem(it *Item, field, value string) {
	switch field {
	case "name":
		it.Name = value
	case "description":
		it.Description = value
	}
}

func editPerk(p *Perk, field, value string) {
	switch field {
	case "name":
		p.Name = value
	case "description":
		p.Description = value
	case "value":
		p.Value = CoerceInt(value)
	}
}

func editAbility(a *Ability, field, value string) {
	switch field {
	case "title":
		a.Title = value
	case "description":
		a.Description = value
	}
}

func itemID(it Item) string           { return it.ID }
func perkID(p Perk) string            { return p.ID }
func abilityID(a Ability) string      { return a.ID }
func historyID(h HistoryEntry) string { return h.ID }

func removeByID[T any](list []T, id string, idOf func(T) string) []T {
	out := make([]T, 0, len(list))
	for _, el := range list {
		if idOf(el) != id {
			out = append(out, el)
		}
	}
	return out
}

func editByID[T any](list []T, id string, idOf func(T) string, edit func(*T)) {
	for i := range list {
		if idOf(list[i]) == id {
			edit(&list[i])
			return
		}
	}
}

// CoerceInt parses the leading integer of s the way form inputs are read:
// surrounding space is ignored, an optional sign is accepted and parsing
// stops at the first non-digit. Anything without leading digits is 0 and
// values beyond the int32 range clamp to its bounds.
func CoerceInt(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	n := 0
	digits := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		digits++
		d := int(r - '0')
		if n > (math.MaxInt32-d)/10 {
			n = math.MaxInt32
			continue
		}
		n = n*10 + d
	}
	if digits == 0 {
		return 0
	}
	if negative {
		return -n
	}
	return n
}
