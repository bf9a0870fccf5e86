// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package knowledge loads and holds the restaurant knowledge base.
//
// The knowledge base is a static nested structure (restaurant info, payment
// methods, menu, deals) loaded from JSON at startup. Missing or unreadable
// files degrade to built-in defaults; startup never hard-fails on
// configuration absence.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Item is a single menu or deals entry. Entries in the source JSON are either
// a structured {name, description} object or a bare string; bare strings
// carry only a Description.
type Item struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UnmarshalJSON accepts both the structured and the bare-string form.
func (i *Item) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = Item{Description: s}
		return nil
	}

	type itemAlias Item
	var a itemAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("menu item is neither string nor object: %w", err)
	}
	*i = Item(a)
	return nil
}

// Line renders the entry as a context bullet.
func (i Item) Line() string {
	if i.Name != "" {
		return "- " + i.Name + ": " + i.Description
	}
	return "- " + i.Description
}

// Section is one menu category. A category is either grouped into named
// subcategories (the pizza menu) or a flat item list (everything else).
type Section struct {
	Groups map[string][]Item
	Items  []Item
}

// UnmarshalJSON accepts both the grouped-object and the flat-array form.
func (s *Section) UnmarshalJSON(data []byte) error {
	var items []Item
	if err := json.Unmarshal(data, &items); err == nil {
		*s = Section{Items: items}
		return nil
	}

	var groups map[string][]Item
	if err := json.Unmarshal(data, &groups); err != nil {
		return fmt.Errorf("menu section is neither array nor object: %w", err)
	}
	*s = Section{Groups: groups}
	return nil
}

// GroupNames returns the subcategory names in sorted order. Sorted so that
// rendered context is deterministic across runs.
func (s Section) GroupNames() []string {
	names := make([]string, 0, len(s.Groups))
	for name := range s.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Restaurant holds the top-level restaurant facts.
type Restaurant struct {
	Name     string   `json:"name"`
	Country  string   `json:"country"`
	Services []string `json:"services"`
}

// Base is the full knowledge base. Read-mostly: shared across concurrent
// requests without locking, replaced wholesale on reload (see Store).
type Base struct {
	Restaurant     Restaurant         `json:"restaurant"`
	PaymentMethods []string           `json:"payment_methods"`
	Menu           map[string]Section `json:"menu"`
	Deals          map[string][]Item  `json:"deals"`
}

// MenuCategories returns the menu category names in sorted order.
func (b *Base) MenuCategories() []string {
	cats := make([]string, 0, len(b.Menu))
	for cat := range b.Menu {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

// DealCategories returns the deals category names in sorted order.
func (b *Base) DealCategories() []string {
	cats := make([]string, 0, len(b.Deals))
	for cat := range b.Deals {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

// Load reads the knowledge base from a JSON file. A missing or malformed
// file returns the built-in default base together with the load error so the
// caller can log the degradation.
func Load(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultBase(), fmt.Errorf("failed to read knowledge base %s: %w", path, err)
	}

	var base Base
	if err := json.Unmarshal(data, &base); err != nil {
		return DefaultBase(), fmt.Errorf("failed to parse knowledge base %s: %w", path, err)
	}
	return &base, nil
}

// LoadPersona reads the waiter persona prompt from a text file, falling back
// to the built-in persona for the given base.
func LoadPersona(path string, base *Base) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultPersona(base), fmt.Errorf("failed to read persona prompt %s: %w", path, err)
	}
	persona := strings.TrimSpace(string(data))
	if persona == "" {
		return DefaultPersona(base), fmt.Errorf("persona prompt %s is empty", path)
	}
	return persona, nil
}

// DefaultPersona builds the fallback waiter persona.
func DefaultPersona(base *Base) string {
	name := base.Restaurant.Name
	if name == "" {
		name = "Pizza Alchemy"
	}
	return fmt.Sprintf(`You are Daniel Siddiqui, the friendly waiter at %s.
You have access to the restaurant's knowledge base.
Relevant information will be provided to you based on the customer's query.
Use this information to assist the customer.
Be concise and friendly.`, name)
}

// DefaultBase returns the built-in knowledge base used when no KB file is
// configured or the configured file cannot be loaded.
func DefaultBase() *Base {
	return &Base{
		Restaurant: Restaurant{
			Name:     "Pizza Alchemy",
			Country:  "Pakistan",
			Services: []string{"Dine-in", "Takeaway", "Delivery"},
		},
		PaymentMethods: []string{"Cash", "Credit Card", "Debit Card", "Mobile Wallet"},
		Menu: map[string]Section{
			"Pizza": {Groups: map[string][]Item{
				"Classic Flavors": {
					{Name: "Margherita", Description: "Classic cheese and tomato pizza"},
					{Name: "Chicken Tikka", Description: "Spicy chicken tikka chunks with onions"},
				},
				"Special Flavors": {
					{Name: "Alchemy Special", Description: "House special with four kinds of meat"},
					{Name: "Crown Crust", Description: "Crust ringed with cheese-stuffed pockets"},
				},
			}},
			"Appetizers & Starters": {Items: []Item{
				{Name: "Garlic Bread", Description: "Oven-baked bread with garlic butter"},
				{Name: "Potato Wedges", Description: "Seasoned crispy wedges"},
			}},
			"Chicken Wings": {Items: []Item{
				{Name: "BBQ Wings", Description: "Smoky barbecue glazed wings"},
				{Name: "Buffalo Wings", Description: "Hot buffalo sauce wings"},
			}},
			"Beverages & Sides": {Items: []Item{
				{Description: "Soft Drinks"},
				{Description: "Mineral Water"},
				{Name: "Dips", Description: "Garlic, chilli and ranch dips"},
			}},
			"Desserts": {Items: []Item{
				{Name: "Molten Lava Cake", Description: "Chocolate cake with a molten center"},
			}},
		},
		Deals: map[string][]Item{
			"Family Deals": {
				{Name: "Family Deal", Description: "2 large pizzas + drinks"},
			},
			"Solo Deals": {
				{Name: "Lunch Deal", Description: "1 personal pizza + drink"},
			},
		},
	}
}
