package model

type RecipeComponent struct {
	Form  FormID
	Count uint32
}

// Recipe is a constructible object: Created is either an item or a FLST of
// alternative items.
type Recipe struct {
	ID         FormID
	Created    FormID
	Components []RecipeComponent
}

type ComponentCount struct {
	Form  FormID `json:"form"`
	Count uint32 `json:"count"`
}
