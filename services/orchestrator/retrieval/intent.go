// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import "strings"

// Intent labels. These strings double as the category taxonomy stored on
// ingested knowledge chunks: a classifier label is passed verbatim to the
// vector index as a hard category filter, so any drift between the two
// silently yields zero semantic results (handled by the keyword fallback,
// never treated as an error).
const (
	IntentDeals       = "deals"
	IntentPizzaMenu   = "pizza menu"
	IntentAppetizers  = "appetizers"
	IntentGeneralInfo = "general info"
)

// intentRule is one ordered classification rule.
type intentRule struct {
	keywords []string
	label    string
}

// intentRules are evaluated top to bottom; the first match wins.
var intentRules = []intentRule{
	{[]string{"deal", "offer", "promo", "discount"}, IntentDeals},
	{[]string{"pizza", "flavor", "crust", "topping", "menu"}, IntentPizzaMenu},
	{[]string{"starter", "appetizer", "wing", "garlic", "potato", "bite", "roll"}, IntentAppetizers},
	{[]string{"restaurant", "location", "address", "time", "open", "close",
		"contact", "service", "dine", "takeaway", "pay", "method"}, IntentGeneralInfo},
	{[]string{"order", "deliver", "online", "website", "app"}, IntentGeneralInfo},
}

// ClassifyIntent maps a query to a coarse category label used to pre-filter
// semantic search. Returns "" when no rule matches, meaning search runs
// unfiltered.
func ClassifyIntent(query string) string {
	query = strings.ToLower(query)
	for _, rule := range intentRules {
		if containsAny(query, rule.keywords) {
			return rule.label
		}
	}
	return ""
}
