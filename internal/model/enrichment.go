package model

// Field identifies one of the generated enrichment slots
type Field int

const (
	FieldName Field = iota
	FieldHistory
	FieldImportance
	FieldDiscovery
	FieldImpact
	FieldVelocity
	FieldEnergy
	FieldLinks
	FieldPhotos
	FieldVideos
)

// FieldSpec describes how a field is presented to the model and stored
type FieldSpec struct {
	Field Field
	// Label is the line label requested in the prompt
	Label string
	// Key is the JSON key on the persisted record
	Key string
	// Aliases are extra labels accepted when parsing responses
	Aliases []string
}

var fieldSpecs = []FieldSpec{
	{FieldName, "name", "ai_name", []string{"nombre"}},
	{FieldHistory, "history", "ai_history", []string{"historia"}},
	{FieldImportance, "importance", "ai_importance", []string{"importancia"}},
	{FieldDiscovery, "discovery", "ai_discovery", []string{"descubrimiento"}},
	{FieldImpact, "impact", "ai_impact", []string{"impacto"}},
	{FieldVelocity, "velocity (km/s)", "ai_velocity", []string{"velocidad (km/s)"}},
	{FieldEnergy, "energy (kilotons)", "ai_energy", []string{"energía (kilotones)", "energia (kilotones)"}},
	{FieldLinks, "links", "ai_links", []string{"enlaces", "references"}},
	{FieldPhotos, "photos", "ai_photos", []string{"fotos"}},
	{FieldVideos, "videos", "ai_videos", nil},
}

// Fields returns the enrichment field table in prompt order
func Fields() []FieldSpec {
	return fieldSpecs
}

// Spec returns the table entry for f
func (f Field) Spec() FieldSpec {
	return fieldSpecs[f]
}

// String returns the storage key
func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldSpecs) {
		return "unknown"
	}
	return fieldSpecs[f].Key
}

// Enrichment holds the generated fields. A nil pointer means the field has
// not been computed yet; NoInformation means it was computed and is unknown.
type Enrichment struct {
	AIName       *string `json:"ai_name,omitempty"`
	AIHistory    *string `json:"ai_history,omitempty"`
	AIImportance *string `json:"ai_importance,omitempty"`
	AIDiscovery  *string `json:"ai_discovery,omitempty"`
	AIImpact     *string `json:"ai_impact,omitempty"`
	AIVelocity   *string `json:"ai_velocity,omitempty"`
	AIEnergy     *string `json:"ai_energy,omitempty"`
	AILinks      *string `json:"ai_links,omitempty"`
	AIPhotos     *string `json:"ai_photos,omitempty"`
	AIVideos     *string `json:"ai_videos,omitempty"`
}

func (e *Enrichment) slot(f Field) **string {
	switch f {
	case FieldName:
		return &e.AIName
	case FieldHistory:
		return &e.AIHistory
	case FieldImportance:
		return &e.AIImportance
	case FieldDiscovery:
		return &e.AIDiscovery
	case FieldImpact:
		return &e.AIImpact
	case FieldVelocity:
		return &e.AIVelocity
	case FieldEnergy:
		return &e.AIEnergy
	case FieldLinks:
		return &e.AILinks
	case FieldPhotos:
		return &e.AIPhotos
	case FieldVideos:
		return &e.AIVideos
	}
	return nil
}

// Get returns the field value and whether it is present
func (e Enrichment) Get(f Field) (string, bool) {
	p := e.slot(f)
	if p == nil || *p == nil {
		return "", false
	}
	return **p, true
}

// Set stores v in field f
func (e *Enrichment) Set(f Field, v string) {
	if p := e.slot(f); p != nil {
		*p = &v
	}
}

// Finalize fills absent or empty fields with NoInformation
func (e *Enrichment) Finalize() {
	for _, spec := range fieldSpecs {
		if v, ok := e.Get(spec.Field); !ok || v == "" {
			e.Set(spec.Field, NoInformation)
		}
	}
}

// Complete reports whether every field holds a non-empty value
func (e Enrichment) Complete() bool {
	for _, spec := range fieldSpecs {
		if v, ok := e.Get(spec.Field); !ok || v == "" {
			return false
		}
	}
	return true
}

// Filled counts fields holding something other than NoInformation
func (e Enrichment) Filled() int {
	n := 0
	for _, spec := range fieldSpecs {
		if v, ok := e.Get(spec.Field); ok && v != "" && v != NoInformation {
			n++
		}
	}
	return n
}

// Clone copies the pointed-to values
func (e Enrichment) Clone() Enrichment {
	var out Enrichment
	for _, spec := range fieldSpecs {
		if v, ok := e.Get(spec.Field); ok {
			out.Set(spec.Field, v)
		}
	}
	return out
}
