package model

// Media kinds produced by effects
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// EffectInfo describes an effect and its accepted parameters
type EffectInfo struct {
	Name    string       `json:"name"`
	Media   MediaKind    `json:"media"`
	Inputs  []InputInfo  `json:"inputs"`
	Options []OptionInfo `json:"options,omitempty"`
	Ranges  []RangeInfo  `json:"ranges,omitempty"`
	Texts   []TextInfo   `json:"texts,omitempty"`
}

// InputInfo describes a source media URL field
type InputInfo struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// OptionInfo describes an enum parameter
type OptionInfo struct {
	Name    string   `json:"name"`
	Allowed []string `json:"allowed"`
	Default string   `json:"default,omitempty"`
}

// RangeInfo describes a bounded numeric parameter
type RangeInfo struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// TextInfo describes a free-text parameter
type TextInfo struct {
	Name      string `json:"name"`
	Required  bool   `json:"required"`
	MaxLength int    `json:"maxLength"`
}

// EffectListResponse represents the effect catalogue
type EffectListResponse struct {
	Success bool         `json:"success"`
	Effects []EffectInfo `json:"effects"`
}
