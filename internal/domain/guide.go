package domain

// Guide is the directory read model for a local guide.
type Guide struct {
	ID           string
	UserID       string
	Active       bool
	PricePerHour float64
	Languages    []string
	RatingScore  float64
	Province     string
	Lat          float64
	Lng          float64
	TripCount    int
}

// SpeaksLanguage reports whether the guide lists the given language.
func (g *Guide) SpeaksLanguage(lang string) bool {
	for _, l := range g.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// User is the directory read model for an account.
type User struct {
	ID   string
	Name string
	Role string
}
