package inventory

// SampleCatalog returns a small survival-flavored catalog covering every rule
// the inventory enforces: stackable perishables with a decay product,
// ammunition for tag filters, durable single items, a rotatable long item
// and an item that provides a pocket.
func SampleCatalog() *Registry {
	return NewRegistry(
		ItemDetails{ID: "apple", NumericID: 1, Name: "Apple", Category: "consumable", Tags: []string{"consumable", "food"},
			MaxStack: 5, Footprint: Size{W: 1, H: 1}, Perishable: true, PerishSeconds: 600, PerishTo: "rotten_apple"},
		ItemDetails{ID: "rotten_apple", NumericID: 2, Name: "Rotten Apple", Category: "junk", Tags: []string{"junk"},
			MaxStack: 10, Footprint: Size{W: 1, H: 1}},
		ItemDetails{ID: "bread", NumericID: 3, Name: "Bread Loaf", Category: "consumable", Tags: []string{"consumable", "food"},
			MaxStack: 3, Footprint: Size{W: 2, H: 1}, Perishable: true, PerishSeconds: 1800},
		ItemDetails{ID: "arrow", NumericID: 4, Name: "Arrow", Category: "ammunition", Tags: []string{"ammunition"},
			MaxStack: 20, Footprint: Size{W: 1, H: 1}},
		ItemDetails{ID: "sword", NumericID: 5, Name: "Iron Sword", Category: "weapon", Tags: []string{"weapon"},
			MaxStack: 1, Footprint: Size{W: 1, H: 3}, MaxDurability: 100, MaxWear: 0.5},
		ItemDetails{ID: "shield", NumericID: 6, Name: "Round Shield", Category: "armor", Tags: []string{"armor"},
			MaxStack: 1, Footprint: Size{W: 2, H: 2}, MaxDurability: 80, MaxWear: 1},
		ItemDetails{ID: "amulet", NumericID: 7, Name: "Family Amulet", Category: "trinket", Tags: []string{"trinket"},
			MaxStack: 1, Footprint: Size{W: 1, H: 1}, Bind: BindOnPickup},
		ItemDetails{ID: "quiver", NumericID: 8, Name: "Quiver", Category: "container", Tags: []string{"container"},
			MaxStack: 1, Footprint: Size{W: 1, H: 2},
			Pocket: &PocketSpec{Grid: Size{W: 2, H: 3}, PerishMultiplier: 1, Whitelist: []string{"ammunition"}}},
		ItemDetails{ID: "cool_pouch", NumericID: 9, Name: "Insulated Pouch", Category: "container", Tags: []string{"container"},
			MaxStack: 1, Footprint: Size{W: 2, H: 2},
			Pocket: &PocketSpec{Grid: Size{W: 3, H: 2}, PerishMultiplier: 0.5, Whitelist: []string{"consumable"}, FiltersEditable: true}},
	)
}
