package deezer

// searchResponse is the JSON response from the Deezer artist search endpoint.
// Deezer reports failures in-band through Error with a 200 status.
type searchResponse struct {
	Data  []artistResult `json:"data"`
	Total int            `json:"total"`
	Error *apiError      `json:"error,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// artistResult is a single artist entry from a Deezer search.
type artistResult struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Link          string `json:"link"`
	Picture       string `json:"picture"`
	PictureSmall  string `json:"picture_small"`
	PictureMedium string `json:"picture_medium"`
	PictureBig    string `json:"picture_big"`
	PictureXL     string `json:"picture_xl"`
	NbFan         int    `json:"nb_fan"`
}

// images lists the picture variants smallest first, with the size names
// PickImage understands.
func (r *artistResult) images() []sizedPicture {
	return []sizedPicture{
		{"small", r.PictureSmall},
		{"medium", r.PictureMedium},
		{"large", r.PictureBig},
		{"extralarge", r.PictureXL},
	}
}

type sizedPicture struct {
	size string
	url  string
}

// Deezer quota error code.
const errQuotaExceeded = 4
