package book

// Filter selects which books a listing shows. Each variant carries only the
// data it needs, so unhandled cases surface in the repository's type switch
// instead of hiding behind string comparisons.
type Filter interface {
	isFilter()
}

// FilterRecent is the default listing: the 8 most recently added books,
// newest first.
type FilterRecent struct{}

// FilterAll lists every book, by title.
type FilterAll struct{}

// FilterMine lists books lent by the given user, by title.
type FilterMine struct {
	UserID string
}

// FilterFavorites lists books the given user marked as favorites, by title.
type FilterFavorites struct {
	UserID string
}

// FilterCategory lists books in the named category, by title. An unknown
// category name yields ErrNotFound.
type FilterCategory struct {
	Name string
}

func (FilterRecent) isFilter()    {}
func (FilterAll) isFilter()       {}
func (FilterMine) isFilter()      {}
func (FilterFavorites) isFilter() {}
func (FilterCategory) isFilter()  {}

// ParseFilter maps a URL filter key to its variant. Unrecognized keys fall
// back to the recent listing, matching the catalog's default page.
func ParseFilter(key, categoryName, userID string) Filter {
	switch key {
	case "mybooks":
		return FilterMine{UserID: userID}
	case "favorites":
		return FilterFavorites{UserID: userID}
	case "category":
		return FilterCategory{Name: categoryName}
	case "all":
		return FilterAll{}
	default:
		return FilterRecent{}
	}
}
