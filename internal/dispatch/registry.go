// File: internal/dispatch/registry.go
package dispatch

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mverte/visor-cli/api/schemas"
)

// Verb is the input gesture a visual execution performs once its target is
// resolved to a screen point.
type Verb string

const (
	VerbClick       Verb = "click"
	VerbDoubleClick Verb = "double_click"
	VerbType        Verb = "type"
	VerbKey         Verb = "key"
)

// OpSpec classifies one operation: which modality carries it, which input
// verb a visual execution uses, how long to let the UI settle before
// verification, and the default expected-effect predicate. Settle delay and
// predicate are operation-specific; a zero SettleDelay falls back to the
// verifier's configured default.
type OpSpec struct {
	Name        string
	Modality    schemas.Modality
	Verb        Verb
	SettleDelay time.Duration
	Effect      schemas.EffectSpec
}

// Registry maps operation names to their specs. Classification is total:
// unknown names default to Hybrid.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]OpSpec
}

// NewRegistry creates an empty operation registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]OpSpec)}
}

// Register adds an operation spec. Names are unique.
func (r *Registry) Register(spec OpSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("operation spec name cannot be empty")
	}
	switch spec.Modality {
	case schemas.ModalityStructured, schemas.ModalityVisual, schemas.ModalityHybrid:
	default:
		return fmt.Errorf("operation %q has invalid modality %q", spec.Name, spec.Modality)
	}
	if spec.Verb == "" {
		spec.Verb = VerbClick
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("operation %q already registered", spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

// Spec returns the registered spec for an operation name.
func (r *Registry) Spec(name string) (OpSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// NamesByModality returns the sorted names of all operations carried by the
// given modality.
func (r *Registry) NamesByModality(m schemas.Modality) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, spec := range r.specs {
		if spec.Modality == m {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Classify returns the execution modality for an operation name. The
// mapping is total and deterministic: every name maps to exactly one
// modality, and unregistered names default to Hybrid.
func (r *Registry) Classify(name string) schemas.Modality {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if spec, ok := r.specs[name]; ok {
		return spec.Modality
	}
	return schemas.ModalityHybrid
}

// DefaultRegistry seeds the operation sets known for the target CAD
// application: parametric creation/modification operations carried by the
// structured backend, free-form UI interaction carried visually, and
// document-level operations tried structured-first.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	structured := []string{
		"create_part", "create_sketch", "create_rectangle", "create_circle",
		"create_line", "create_spline", "create_point", "create_plane",
		"create_pad", "create_pocket", "create_fillet", "create_chamfer",
		"boolean_join", "boolean_split", "boolean_trim",
		"mirror", "translate", "rotate", "scale",
		"set_parameter", "get_parameter", "save_part", "export_part",
	}
	for _, name := range structured {
		// Structured calls are verified by the backend's own result.
		_ = r.Register(OpSpec{Name: name, Modality: schemas.ModalityStructured})
	}

	visual := []OpSpec{
		{Name: "click_toolbar", Verb: VerbClick},
		{Name: "click_menu", Verb: VerbClick},
		{Name: "click_button", Verb: VerbClick},
		{Name: "confirm_dialog", Verb: VerbClick,
			Effect: schemas.EffectSpec{Kind: schemas.EffectElementVanishes, Label: "dialog"}},
		{Name: "dismiss_dialog", Verb: VerbClick,
			Effect: schemas.EffectSpec{Kind: schemas.EffectElementVanishes, Label: "dialog"}},
		{Name: "select_tree_node", Verb: VerbClick},
		{Name: "expand_tree_node", Verb: VerbDoubleClick},
		{Name: "input_dialog_text", Verb: VerbType},
		{Name: "press_shortcut", Verb: VerbKey},
	}
	for _, spec := range visual {
		spec.Modality = schemas.ModalityVisual
		_ = r.Register(spec)
	}

	hybrid := []string{
		"open_file", "close_file", "new_document",
		"undo", "redo", "zoom_fit", "zoom_in", "zoom_out",
		"select_body", "select_feature",
	}
	for _, name := range hybrid {
		_ = r.Register(OpSpec{Name: name, Modality: schemas.ModalityHybrid})
	}

	return r
}
