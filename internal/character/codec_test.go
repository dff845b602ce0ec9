package character

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func sampleDocument() Document {
	doc := New("chr_1", "user-1", "Goku")
	doc.Race = "Saiyajin"
	doc.Age = 18
	doc.Level = 3
	doc.Notes = "likes food"
	doc.MainAttributes.Vida = Capacity{Current: 10, Max: 12}
	doc.MainAttributes.Defesa = 4
	doc = Apply(doc,
		SetAttribute{Group: GroupBasic, Key: "forca", Component: "base", Value: "5"},
		SetAttribute{Group: GroupMagic, Key: "ki", Component: "permBonus", Value: "2"},
		Credit{Amount: 40},
		AddItem{List: ListInventory, ID: "inv-1"},
		EditItem{List: ListInventory, ID: "inv-1", Field: "name", Value: "Senzu"},
		AddItem{List: ListAdvantages, ID: "adv-1"},
		ToggleOrigin{List: ListAdvantages, ID: "adv-1", Flag: "race"},
		AddItem{List: ListHistory, ID: "his-1"},
		EditItem{List: ListHistory, ID: "his-1", Field: "value", Value: "born on Vegeta"},
		ToggleCollapsed{List: ListHistory, ID: "his-1"},
	)
	return doc
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		doc  Document
	}{
		{name: "defaults", doc: New("chr_0", "user-0", "")},
		{name: "populated", doc: sampleDocument()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields, err := Encode(tc.doc)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			for _, name := range CompoundFields {
				if _, ok := fields[name].(string); !ok {
					t.Fatalf("compound field %s stored as %T, want string", name, fields[name])
				}
			}
			got, err := Decode(tc.doc.ID, tc.doc.OwnerID, fields)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.doc) {
				t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v", got, tc.doc)
			}
		})
	}
}

func TestDecodeBackfillsMissingFields(t *testing.T) {
	doc, err := Decode("chr_2", "user-2", map[string]any{
		"name":            "Bulma",
		"basicAttributes": `{"destreza":{"base":3,"permBonus":1,"condBonus":0,"total":99}}`,
	})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if doc.Wallet.Zeni != 0 {
		t.Fatalf("wallet zeni = %d, want 0", doc.Wallet.Zeni)
	}
	if doc.XP != DefaultXP {
		t.Fatalf("xp = %d, want %d", doc.XP, DefaultXP)
	}
	for _, key := range BasicAttributeKeys {
		if _, ok := doc.BasicAttributes[key]; !ok {
			t.Fatalf("basic attribute %s missing", key)
		}
	}
	for _, key := range MagicAttributeKeys {
		if _, ok := doc.MagicAttributes[key]; !ok {
			t.Fatalf("magic attribute %s missing", key)
		}
	}
	if got := doc.BasicAttributes["forca"]; got != (Attribute{}) {
		t.Fatalf("forca = %+v, want zero attribute", got)
	}
	if got := doc.BasicAttributes["destreza"].Total; got != 4 {
		t.Fatalf("destreza total = %d, want recomputed 4", got)
	}
	if doc.Inventory == nil || doc.History == nil || doc.Advantages == nil {
		t.Fatal("expected empty, non-nil lists")
	}
}

func TestDecodeFieldScopedFailure(t *testing.T) {
	doc, err := Decode("chr_3", "user-3", map[string]any{
		"name":      "Vegeta",
		"level":     float64(7),
		"wallet":    `{"zeni":`,
		"inventory": `[{"id":"a","name":"Scouter"}]`,
	})
	if err == nil {
		t.Fatal("expected decode error for wallet")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Field != "wallet" {
		t.Fatalf("expected DecodeError for wallet, got %v", err)
	}
	if doc.Wallet.Zeni != 0 {
		t.Fatalf("wallet zeni = %d, want default 0", doc.Wallet.Zeni)
	}
	if doc.Level != 7 || doc.Name != "Vegeta" {
		t.Fatalf("scalars not loaded: %+v", doc)
	}
	if len(doc.Inventory) != 1 || doc.Inventory[0].Name != "Scouter" {
		t.Fatalf("inventory = %+v, want one Scouter", doc.Inventory)
	}
}

func TestDecodeUsesAddressIdentity(t *testing.T) {
	doc, _ := Decode("chr_4", "user-4", map[string]any{"id": "forged", "ownerId": "someone-else"})
	if doc.ID != "chr_4" || doc.OwnerID != "user-4" {
		t.Fatalf("identity = %s/%s, want chr_4/user-4", doc.OwnerID, doc.ID)
	}
}

func TestDecodeLegacyHistoryWithoutType(t *testing.T) {
	doc, err := Decode("chr_5", "user-5", map[string]any{"history": `[{"value":"old entry"}]`})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(doc.History) != 1 {
		t.Fatalf("history len = %d, want 1", len(doc.History))
	}
	if doc.History[0].Type != HistoryTypeText || doc.History[0].ID == "" {
		t.Fatalf("history entry not backfilled: %+v", doc.History[0])
	}
}

func TestDecodeEntryIgnoresCompoundFields(t *testing.T) {
	entry := DecodeEntry("chr_1", "user-1", map[string]any{
		"name":            "Goku",
		"race":            "Saiyan",
		"level":           json.Number("12"),
		"deleted":         true,
		"basicAttributes": "{broken",
	})
	want := ListEntry{ID: "chr_1", OwnerID: "user-1", Name: "Goku", Race: "Saiyan", Level: 12, Deleted: true}
	if entry != want {
		t.Fatalf("DecodeEntry() = %+v, want %+v", entry, want)
	}
}

func TestDecodeGivesStoredElementsStableIDs(t *testing.T) {
	fields := map[string]any{
		"inventory":  `[{"name":"rope"},{"id":"kept","name":"bag"},{"name":"lamp"}]`,
		"advantages": `[{"name":"brave"}]`,
	}
	first, err := Decode("chr_6", "user-6", fields)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	second, err := Decode("chr_6", "user-6", fields)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(first.Inventory, second.Inventory) || !reflect.DeepEqual(first.Advantages, second.Advantages) {
		t.Fatalf("ids differ between decodes:\n%+v\n%+v", first.Inventory, second.Inventory)
	}
	got := []string{first.Inventory[0].ID, first.Inventory[1].ID, first.Inventory[2].ID, first.Advantages[0].ID}
	want := []string{"inventory-0", "kept", "inventory-2", "advantages-0"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}

	edited := Apply(first, RemoveItem{List: ListInventory, ID: second.Inventory[2].ID})
	if len(edited.Inventory) != 2 || edited.Inventory[1].ID != "kept" {
		t.Fatalf("remove by id from an earlier decode: %+v", edited.Inventory)
	}
}
