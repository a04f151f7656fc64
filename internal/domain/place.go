package domain

// Place is the catalog read model for a visitable place.
type Place struct {
	ID          string
	Name        string
	Province    string
	TicketPrice float64
	Lat         float64
	Lng         float64
}
