package repository

// ItemsResponse is the top-level structure of a collection listing.
type ItemsResponse struct {
	Collection string `json:"collection"`
	Items      []Item `json:"items"`
}

// Item is one deposited thesis or dissertation record.
type Item struct {
	Author struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"author"`
	Institution string   `json:"institution"`
	Year        int      `json:"year"`
	Degree      string   `json:"degree"`
	Title       string   `json:"title"`
	Program     string   `json:"program"`
	Abstract    string   `json:"abstract"`
	Advisor     string   `json:"advisor"`
	Subjects    []string `json:"subjects"`
	Handle      string   `json:"handle"`
}
