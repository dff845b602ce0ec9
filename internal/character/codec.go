package character

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Compound fields are stored as JSON-encoded strings so the document stays
// flat for the backing store.
var CompoundFields = []string{
	"mainAttributes",
	GroupBasic,
	GroupMagic,
	ListInventory,
	"wallet",
	ListAdvantages,
	ListDisadvantages,
	ListAbilities,
	ListSpecializations,
	ListEquippedItems,
	ListHistory,
}

// DecodeError reports a compound field whose stored string could not be
// parsed. The field is replaced by its default; the rest of the document
// still loads.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode serializes the document into its flat storage form.
func Encode(d Document) (map[string]any, error) {
	d.ensureLists()
	fields := map[string]any{
		"id":       d.ID,
		"ownerId":  d.OwnerID,
		"name":     d.Name,
		"race":     d.Race,
		"age":      d.Age,
		"level":    d.Level,
		"xp":       d.XP,
		"photoUri": d.PhotoURI,
		"notes":    d.Notes,
		"deleted":  d.Deleted,
	}
	compound := map[string]any{
		"mainAttributes":    d.MainAttributes,
		GroupBasic:          backfillGroup(cloneGroup(d.BasicAttributes), BasicAttributeKeys),
		GroupMagic:          backfillGroup(cloneGroup(d.MagicAttributes), MagicAttributeKeys),
		ListInventory:       d.Inventory,
		"wallet":            d.Wallet,
		ListAdvantages:      d.Advantages,
		ListDisadvantages:   d.Disadvantages,
		ListAbilities:       d.Abilities,
		ListSpecializations: d.Specializations,
		ListEquippedItems:   d.EquippedItems,
		ListHistory:         d.History,
	}
	for name, value := range compound {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		fields[name] = string(raw)
	}
	return fields, nil
}

// Decode builds the canonical document from stored fields. id and ownerID
// come from the resolved address, never from the payload. The returned
// error, when non-nil, joins one *DecodeError per unreadable field; the
// document is complete and usable either way.
func Decode(id, ownerID string, fields map[string]any) (Document, error) {
	doc := New(id, ownerID, stringValue(fields["name"]))
	doc.Race = stringValue(fields["race"])
	doc.PhotoURI = stringValue(fields["photoUri"])
	doc.Notes = stringValue(fields["notes"])
	doc.Deleted = boolValue(fields["deleted"])
	if v, ok := intValue(fields["age"]); ok {
		doc.Age = v
	}
	if v, ok := intValue(fields["level"]); ok {
		doc.Level = v
	}
	if v, ok := intValue(fields["xp"]); ok {
		doc.XP = v
	}

	var errs []error
	decodeField := func(name string, target any) {
		if err := decodeCompound(fields[name], target); err != nil {
			errs = append(errs, &DecodeError{Field: name, Err: err})
		}
	}

	var main MainAttributes
	decodeField("mainAttributes", &main)
	doc.MainAttributes = main

	var basic, magic map[string]Attribute
	decodeField(GroupBasic, &basic)
	decodeField(GroupMagic, &magic)
	doc.BasicAttributes = backfillGroup(basic, BasicAttributeKeys)
	doc.MagicAttributes = backfillGroup(magic, MagicAttributeKeys)

	var wallet Wallet
	decodeField("wallet", &wallet)
	if wallet.Zeni < 0 {
		wallet.Zeni = 0
	}
	doc.Wallet = wallet

	var inventory, equipped []Item
	decodeField(ListInventory, &inventory)
	decodeField(ListEquippedItems, &equipped)
	doc.Inventory = withItemIDs(ListInventory, inventory)
	doc.EquippedItems = withItemIDs(ListEquippedItems, equipped)

	var advantages, disadvantages []Perk
	decodeField(ListAdvantages, &advantages)
	decodeField(ListDisadvantages, &disadvantages)
	doc.Advantages = withPerkIDs(ListAdvantages, advantages)
	doc.Disadvantages = withPerkIDs(ListDisadvantages, disadvantages)

	var abilities, specializations []Ability
	decodeField(ListAbilities, &abilities)
	decodeField(ListSpecializations, &specializations)
	doc.Abilities = withAbilityIDs(ListAbilities, abilities)
	doc.Specializations = withAbilityIDs(ListSpecializations, specializations)

	var history []HistoryEntry
	decodeField(ListHistory, &history)
	doc.History = withHistoryIDs(ListHistory, history)

	doc.ensureLists()
	return doc, errors.Join(errs...)
}

// DecodeEntry projects stored fields to a list entry without touching the
// compound fields.
func DecodeEntry(id, ownerID string, fields map[string]any) ListEntry {
	entry := ListEntry{
		ID:      id,
		OwnerID: ownerID,
		Name:    stringValue(fields["name"]),
		Race:    stringValue(fields["race"]),
		Deleted: boolValue(fields["deleted"]),
	}
	if v, ok := intValue(fields["level"]); ok {
		entry.Level = v
	}
	return entry
}

// decodeCompound leaves target untouched when the field is absent or blank.
// A partially parsed value is discarded so the field falls back cleanly.
func decodeCompound(value any, target any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		// Some writers store the nested value natively.
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = encoded
	}
	if string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		resetTarget(target)
		return err
	}
	return nil
}

func resetTarget(target any) {
	switch t := target.(type) {
	case *MainAttributes:
		*t = MainAttributes{}
	case *map[string]Attribute:
		*t = nil
	case *Wallet:
		*t = Wallet{}
	case *[]Item:
		*t = nil
	case *[]Perk:
		*t = nil
	case *[]Ability:
		*t = nil
	case *[]HistoryEntry:
		*t = nil
	}
}

func withItemIDs(list string, items []Item) []Item {
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = storedItemID(list, i)
		}
	}
	return items
}

func withPerkIDs(list string, perks []Perk) []Perk {
	for i := range perks {
		if perks[i].ID == "" {
			perks[i].ID = storedItemID(list, i)
		}
	}
	return perks
}

func withAbilityIDs(list string, abilities []Ability) []Ability {
	for i := range abilities {
		if abilities[i].ID == "" {
			abilities[i].ID = storedItemID(list, i)
		}
	}
	return abilities
}

func withHistoryIDs(list string, entries []HistoryEntry) []HistoryEntry {
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = storedItemID(list, i)
		}
		if entries[i].Type == "" {
			entries[i].Type = HistoryTypeText
		}
	}
	return entries
}

// storedItemID names a stored element that has no id yet by its list and
// position, so every decode of the same payload agrees on it.
func storedItemID(list string, index int) string {
	return fmt.Sprintf("%s-%d", list, index)
}

func newItemID() string {
	return uuid.NewString()
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func boolValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		parsed, err := strconv.ParseBool(t)
		return err == nil && parsed
	default:
		return false
	}
}

func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		if f, err := t.Float64(); err == nil {
			return int(f), true
		}
		return 0, false
	case string:
		return CoerceInt(t), true
	default:
		return 0, false
	}
}
