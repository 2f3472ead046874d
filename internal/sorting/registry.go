package sorting

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"catalog/api/internal/collection"
)

type Option func(*registryOptions)

type registryOptions struct {
	tag language.Tag
}

// WithLanguage selects the collation locale for string fields.
func WithLanguage(tag language.Tag) Option {
	return func(o *registryOptions) {
		o.tag = tag
	}
}

// Registry maps declared fields to comparison functions.
type Registry struct {
	fields map[string]Field
	order  []Field

	// collators keep internal buffers and are not safe for concurrent use
	mu   sync.Mutex
	fold *collate.Collator
	full *collate.Collator
}

func NewRegistry(fields []Field, opts ...Option) (*Registry, error) {
	o := registryOptions{tag: language.Und}
	for _, opt := range opts {
		opt(&o)
	}
	if len(fields) == 0 {
		return nil, configError("", "no sortable fields declared")
	}

	r := &Registry{
		fields: make(map[string]Field, len(fields)),
		order:  make([]Field, 0, len(fields)),
		fold:   collate.New(o.tag, collate.IgnoreCase),
		full:   collate.New(o.tag),
	}
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		switch {
		case name == "":
			return nil, configError(f.Name, "empty field name")
		case name == "id":
			return nil, configError(name, "id is the identity field and cannot be declared sortable")
		case f.Kind != KindString && f.Kind != KindNumeric:
			return nil, configError(name, "unknown value kind "+string(f.Kind))
		}
		if _, dup := r.fields[name]; dup {
			return nil, configError(name, "declared twice")
		}
		f.Name = name
		r.fields[name] = f
		r.order = append(r.order, f)
	}
	return r, nil
}

func (r *Registry) Fields() []Field {
	out := make([]Field, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the declared field called name.
func (r *Registry) Lookup(name string) (Field, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// Default is the first declared field, ascending.
func (r *Registry) Default() Spec {
	return Spec{Field: r.order[0].Name, Direction: Ascending}
}

func (r *Registry) Validate(spec Spec) error {
	if _, ok := r.Lookup(spec.Field); !ok {
		return configError(spec.Field, "not a declared sortable field")
	}
	if !spec.Direction.Valid() {
		return configError(spec.Field, "invalid direction "+spec.Direction.String())
	}
	return nil
}

// Compare orders a and b under spec: negative when a sorts first. Fields
// outside the registry compare equal; Validate guards that earlier.
func (r *Registry) Compare(a, b collection.Item, spec Spec) int {
	f, ok := r.Lookup(spec.Field)
	if !ok {
		return 0
	}
	var c int
	switch f.Kind {
	case KindString:
		c = r.compareStrings(a, b, f.Name)
	case KindNumeric:
		c = compareNumbers(a, b, f.Name)
	}
	return c * int(spec.Direction)
}

// Sort returns a stably sorted copy of items.
func (r *Registry) Sort(items []collection.Item, spec Spec) []collection.Item {
	out := make([]collection.Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return r.Compare(out[i], out[j], spec) < 0
	})
	return out
}

// Ordered reports whether items already follow spec.
func (r *Registry) Ordered(items []collection.Item, spec Spec) bool {
	for i := 1; i < len(items); i++ {
		if r.Compare(items[i-1], items[i], spec) > 0 {
			return false
		}
	}
	return true
}

func (r *Registry) compareStrings(a, b collection.Item, field string) int {
	av, aok := a.String(field)
	bv, bok := b.String(field)
	if c, done := comparePresence(aok, bok); done {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.fold.CompareString(av, bv); c != 0 {
		return c
	}
	if c := upperFirst(av, bv); c != 0 {
		return c
	}
	return r.full.CompareString(av, bv)
}

// upperFirst breaks a case-insensitive tie: at the first letter differing
// only by case, the uppercase one sorts first.
func upperFirst(a, b string) int {
	ar, br := []rune(a), []rune(b)
	for i := 0; i < len(ar) && i < len(br); i++ {
		if ar[i] == br[i] {
			continue
		}
		if unicode.ToLower(ar[i]) != unicode.ToLower(br[i]) {
			return 0
		}
		if unicode.IsUpper(ar[i]) {
			return -1
		}
		return 1
	}
	return 0
}

func compareNumbers(a, b collection.Item, field string) int {
	av, aok := a.Number(field)
	bv, bok := b.Number(field)
	if c, done := comparePresence(aok, bok); done {
		return c
	}
	switch d := av - bv; {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

// missing values sort before present ones
func comparePresence(aok, bok bool) (int, bool) {
	switch {
	case aok && bok:
		return 0, false
	case !aok && !bok:
		return 0, true
	case !aok:
		return -1, true
	default:
		return 1, true
	}
}
