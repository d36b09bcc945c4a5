package registry

import "fmt"

// Category is the commercial classification of a metering point.
type Category string

const (
	CategorySupply   Category = "supply"
	CategoryPurchase Category = "purchase"
	CategorySupport  Category = "support"
)

// Categories lists categories in lookup precedence order.
var Categories = []Category{CategorySupply, CategoryPurchase, CategorySupport}

var categorySheets = map[Category]string{
	CategorySupply:   "dobava",
	CategoryPurchase: "odkup",
	CategorySupport:  "obratovalna_podpora",
}

var categoryWorkbooks = map[Category]string{
	CategorySupply:   "Odjem.xlsx",
	CategoryPurchase: "Oddaja.xlsx",
	CategorySupport:  "Obratovalna_podpora.xlsx",
}

// SheetName returns the registry sheet holding the category.
func (c Category) SheetName() string {
	return categorySheets[c]
}

// WorkbookName returns the output workbook file name of the category.
func (c Category) WorkbookName() string {
	return categoryWorkbooks[c]
}

// Precedence returns the lookup rank of the category, lower wins.
func (c Category) Precedence() int {
	for i, category := range Categories {
		if category == c {
			return i
		}
	}
	return len(Categories)
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categorySheets[c]
	return ok
}

// ParseCategory accepts a category or its registry sheet name.
func ParseCategory(value string) (Category, error) {
	for _, category := range Categories {
		if value == string(category) || value == category.SheetName() {
			return category, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, value)
}
