// Package recipe implements the recipe catalog on top of a key-value bucket:
// the record codec, the ID index and the CRUD store that keeps them in step.
package recipe

// Recipe is the persisted entity. Field order matches the stored record layout.
type Recipe struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  *string      `json:"description"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []Step       `json:"instructions"`
	Servings     uint8        `json:"servings"`
	PrepTimeMins uint32       `json:"prep_time_mins"`
	CookTimeMins uint32       `json:"cook_time_mins"`
	Difficulty   string       `json:"difficulty"`
	Tags         []string     `json:"tags"`
	DietaryInfo  []string     `json:"dietary_info"`
	CreatedAt    uint64       `json:"created_at"`
	UpdatedAt    uint64       `json:"updated_at"`
}

type Ingredient struct {
	Name     string  `json:"name"`
	Amount   float32 `json:"amount"`
	Unit     string  `json:"unit"`
	Optional bool    `json:"optional"`
	Notes    *string `json:"notes"`
}

type Step struct {
	Order        uint8   `json:"order"`
	Instruction  string  `json:"instruction"`
	DurationMins *uint32 `json:"duration_mins"`
}

// MarshalJSON writes nil sequences as [] so the record never carries null lists.
func (r Recipe) MarshalJSON() ([]byte, error) {
	type plain Recipe
	p := plain(r)
	if p.Ingredients == nil {
		p.Ingredients = []Ingredient{}
	}
	if p.Instructions == nil {
		p.Instructions = []Step{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.DietaryInfo == nil {
		p.DietaryInfo = []string{}
	}
	return marshal(p)
}
