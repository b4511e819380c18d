package spotify

type searchResponse struct {
	Artists struct {
		Items []artist `json:"items"`
	} `json:"artists"`
}

type artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Images     []image  `json:"images"`
	Popularity int      `json:"popularity"`
}

type image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}
