package extract

import "strings"

// CategoryRule assigns Category to any description containing one of Keywords.
type CategoryRule struct {
	Category string
	Keywords []string
}

// Categorizer infers a category from description keywords.
// Rules are checked in order and the first matching keyword wins.
type Categorizer struct {
	rules []CategoryRule
}

// NewCategorizer builds a categorizer over rules, lower-casing keywords once.
func NewCategorizer(rules []CategoryRule) *Categorizer {
	c := &Categorizer{rules: make([]CategoryRule, len(rules))}
	for i, rule := range rules {
		keywords := make([]string, len(rule.Keywords))
		for j, kw := range rule.Keywords {
			keywords[j] = strings.ToLower(kw)
		}
		c.rules[i] = CategoryRule{Category: rule.Category, Keywords: keywords}
	}
	return c
}

// Categorize returns the category for description, or "" when no rule matches.
func (c *Categorizer) Categorize(description string) string {
	if c == nil {
		return ""
	}
	desc := strings.ToLower(description)
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(desc, kw) {
				return rule.Category
			}
		}
	}
	return ""
}

// DefaultCategoryRules is the built-in keyword table.
// Fees sit last so merchant names containing "fee" (coffee) land elsewhere first.
func DefaultCategoryRules() []CategoryRule {
	return []CategoryRule{
		{Category: "Income", Keywords: []string{"payroll", "salary", "direct dep", "interest paid"}},
		{Category: "Transfers", Keywords: []string{"transfer", "zelle", "venmo", "paypal"}},
		{Category: "Groceries", Keywords: []string{"grocery", "safeway", "kroger", "whole foods", "trader joe", "aldi", "costco"}},
		{Category: "Dining", Keywords: []string{"restaurant", "cafe", "coffee", "starbucks", "doordash", "grubhub", "pizza", "mcdonald"}},
		{Category: "Transportation", Keywords: []string{"uber", "lyft", "shell", "chevron", "exxon", "fuel", "parking", "transit"}},
		{Category: "Shopping", Keywords: []string{"amazon", "amzn", "target", "walmart", "best buy", "etsy"}},
		{Category: "Entertainment", Keywords: []string{"netflix", "spotify", "hulu", "disney", "steam", "cinema"}},
		{Category: "Utilities", Keywords: []string{"electric", "water bill", "gas co", "comcast", "verizon", "at&t", "t-mobile", "internet"}},
		{Category: "Housing", Keywords: []string{"rent payment", "mortgage", "hoa"}},
		{Category: "Healthcare", Keywords: []string{"pharmacy", "cvs", "walgreens", "medical", "dental", "clinic"}},
		{Category: "Travel", Keywords: []string{"airline", "airbnb", "hotel", "marriott", "delta air", "united air"}},
		{Category: "Fees", Keywords: []string{"fee", "overdraft", "service charge"}},
	}
}
