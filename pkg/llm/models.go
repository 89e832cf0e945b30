package llm

// Model is a catalog entry served by GET /v1/models.
type Model struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Context int    `json:"context"`
}

// ModelList is the GET /v1/models response body.
type ModelList struct {
	Data []Model `json:"data"`
}

// Catalog returns the static model catalog.
func Catalog() ModelList {
	return ModelList{
		Data: []Model{
			{ID: "gpt-4", Name: "gpt-4-turbo-2024-0409", Context: 128000},
			{ID: "gpt-4o", Name: "gpt-4o", Context: 128000},
		},
	}
}
