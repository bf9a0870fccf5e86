// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"strings"

	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/datatypes"
	"github.com/PizzaAlchemy/AlchemyChat/services/orchestrator/knowledge"
)

// Topic keyword sets. Sets are OR'd and non-exclusive: one query can trigger
// several topic blocks, always emitted in the same order.
var (
	restaurantKeywords = []string{
		"restaurant", "location", "address", "time", "open", "close",
		"contact", "service", "delivery", "dine", "takeaway",
	}
	paymentKeywords = []string{"pay", "card", "cash", "money", "wallet"}
	dealKeywords    = []string{"deal", "offer", "promo", "discount", "price", "cost"}
)

// categoryLookup maps a trigger keyword to its menu category. Order matters:
// lookups run in this sequence so output is stable.
var categoryLookup = []struct {
	keyword  string
	category string
}{
	{"appetizer", "Appetizers & Starters"},
	{"starter", "Appetizers & Starters"},
	{"wing", "Chicken Wings"},
	{"calzone", "Calzones"},
	{"pasta", "Pastas"},
	{"kid", "Kids Meal"},
	{"dessert", "Desserts"},
	{"cake", "Desserts"},
	{"drink", "Beverages & Sides"},
	{"beverage", "Beverages & Sides"},
	{"side", "Beverages & Sides"},
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// KeywordContext maps a customer query to a knowledge-base context block.
//
// Matching runs over the lowercased query concatenated with all prior turn
// contents, so a follow-up like "what's in it" still hits the category named
// two turns earlier. Pure and idempotent: identical inputs always produce an
// identical block. Returns "" when nothing matches, which is a normal
// outcome, not an error.
func KeywordContext(kb *knowledge.Base, query string, history []datatypes.Message) string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(query))
	for _, turn := range history {
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(turn.Content))
	}
	combined := sb.String()

	var context []string

	// 1. Restaurant info and services
	if containsAny(combined, restaurantKeywords) {
		r := kb.Restaurant
		context = append(context, "Restaurant: "+r.Name+" ("+r.Country+")")
		context = append(context, "Services: "+strings.Join(r.Services, ", "))
	}

	// 2. Payment
	if containsAny(combined, paymentKeywords) {
		context = append(context, "Payment Methods: "+strings.Join(kb.PaymentMethods, ", "))
	}

	// 3. Menu categories
	if strings.Contains(combined, "menu") {
		context = append(context, "Available Menu Categories: "+strings.Join(kb.MenuCategories(), ", "))
	}

	// Pizza gets its own bordered section with subcategory groups.
	if strings.Contains(combined, "pizza") {
		context = append(context, "=== PIZZA MENU ===")
		pizza := kb.Menu["Pizza"]
		for _, subcat := range pizza.GroupNames() {
			context = append(context, "["+subcat+"]")
			for _, item := range pizza.Groups[subcat] {
				context = append(context, item.Line())
			}
		}
	}

	// Named category lookups, deduplicated so "appetizers and starters"
	// does not emit the section twice.
	seen := make(map[string]bool)
	for _, lookup := range categoryLookup {
		if !strings.Contains(combined, lookup.keyword) || seen[lookup.category] {
			continue
		}
		seen[lookup.category] = true
		context = append(context, "\n["+lookup.category+"]")
		for _, item := range kb.Menu[lookup.category].Items {
			context = append(context, item.Line())
		}
	}

	// 4. Deals
	if containsAny(combined, dealKeywords) {
		context = append(context, "\n=== DEALS & OFFERS ===")
		for _, cat := range kb.DealCategories() {
			context = append(context, "["+cat+"]")
			for _, item := range kb.Deals[cat] {
				context = append(context, item.Line())
			}
		}
	}

	return strings.Join(context, "\n")
}
