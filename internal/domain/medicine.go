package domain

type Medicine struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Category     string       `json:"category"`
	Description  string       `json:"description,omitempty"`
	Price        float64      `json:"price"`
	Image        string       `json:"image"`
	Availability Availability `json:"availability"`
}

// LineItem turns the medicine into a cart entry with quantity 1.
func (m Medicine) LineItem() LineItem {
	return LineItem{
		Name:         m.Name,
		Price:        m.Price,
		Image:        m.Image,
		Quantity:     1,
		Availability: m.Availability,
	}
}
