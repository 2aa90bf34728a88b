package inventory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// BindRule controls when an instance becomes bound to its holder.
type BindRule string

const (
	BindNone     BindRule = ""
	BindOnPickup BindRule = "pickup"
	BindOnEquip  BindRule = "equip"
)

// PocketSpec describes the pocket an item provides when equipped as a
// container (pouches, quivers, ...).
type PocketSpec struct {
	Grid             Size     `json:"grid" yaml:"grid"`
	PerishMultiplier float64  `json:"perishMultiplier,omitempty" yaml:"perish_multiplier"`
	Whitelist        []string `json:"whitelist,omitempty" yaml:"whitelist"`
	Blacklist        []string `json:"blacklist,omitempty" yaml:"blacklist"`
	FiltersEditable  bool     `json:"filtersEditable,omitempty" yaml:"filters_editable"`
}

// Meta converts the spec into container metadata. A zero multiplier means
// the pocket does not change decay speed.
func (p PocketSpec) Meta() ContainerMeta {
	mult := p.PerishMultiplier
	if mult == 0 {
		mult = 1
	}
	return ContainerMeta{
		Grid:             p.Grid.normalized(),
		PerishMultiplier: mult,
		Whitelist:        p.Whitelist,
		Blacklist:        p.Blacklist,
		FiltersEditable:  p.FiltersEditable,
	}.normalized()
}

// ItemDetails captures the catalog definition of an item.
type ItemDetails struct {
	ID            ItemID      `json:"id" yaml:"id"`
	NumericID     RegistryID  `json:"numericId,omitempty" yaml:"numeric_id"`
	Name          string      `json:"name,omitempty" yaml:"name"`
	Category      string      `json:"category,omitempty" yaml:"category"`
	Description   string      `json:"description,omitempty" yaml:"description"`
	Tags          []string    `json:"tags,omitempty" yaml:"tags"`
	MaxStack      int         `json:"maxStack,omitempty" yaml:"max_stack"`
	Footprint     Size        `json:"footprint" yaml:"footprint"`
	Perishable    bool        `json:"perishable,omitempty" yaml:"perishable"`
	PerishSeconds float64     `json:"perishSeconds,omitempty" yaml:"perish_seconds"`
	PerishTo      ItemID      `json:"perishTo,omitempty" yaml:"perish_to"`
	MaxDurability int         `json:"maxDurability,omitempty" yaml:"max_durability"`
	MaxWear       float64     `json:"maxWear,omitempty" yaml:"max_wear"`
	Bind          BindRule    `json:"bind,omitempty" yaml:"bind"`
	Pocket        *PocketSpec `json:"pocket,omitempty" yaml:"pocket"`
}

// StackLimit returns the maximum stack size, at least 1.
func (d ItemDetails) StackLimit() int {
	if d.MaxStack < 1 {
		return 1
	}
	return d.MaxStack
}

// CanPerish reports whether instances of the item decay over time.
func (d ItemDetails) CanPerish() bool {
	return d.Perishable && d.PerishSeconds > 0
}

// Size returns the unrotated footprint, at least 1x1.
func (d ItemDetails) Size() Size { return d.Footprint.normalized() }

// HasTag reports whether the item carries tag (case-insensitive).
func (d ItemDetails) HasTag(tag string) bool {
	tag = strings.ToLower(tag)
	for _, t := range d.Tags {
		if strings.ToLower(t) == tag {
			return true
		}
	}
	return false
}

// Catalog resolves item definitions. Implementations must be safe for
// concurrent readers; the inventory never mutates what it gets back.
type Catalog interface {
	Lookup(id ItemID) (ItemDetails, bool)
}

// Registry stores item details keyed by ItemID and provides numeric handles for
// compact storage.
type Registry struct {
	mu     sync.RWMutex
	items  map[ItemID]ItemDetails
	byID   map[RegistryID]ItemID
	nextID RegistryID
}

// NewRegistry constructs an empty registry and optionally seeds it with
// initial item details.
func NewRegistry(details ...ItemDetails) *Registry {
	r := &Registry{
		items: make(map[ItemID]ItemDetails, len(details)),
		byID:  make(map[RegistryID]ItemID, len(details)),
	}
	for _, d := range details {
		_ = r.RegisterDetails(d) // ignore duplicates during seed
	}
	return r
}

// RegisterDetails inserts or updates metadata for an item. The ID must be
// non-empty.
func (r *Registry) RegisterDetails(details ItemDetails) error {
	if details.ID == "" {
		return errors.New("inventory: item details missing id")
	}
	if details.MaxStack < 0 {
		return fmt.Errorf("inventory: item %s has negative max stack", details.ID)
	}
	details.Tags = normalizeTags(details.Tags)

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.items[details.ID]
	if exists {
		if details.NumericID == 0 {
			details.NumericID = existing.NumericID
		} else if existing.NumericID != 0 && existing.NumericID != details.NumericID {
			return errors.New("inventory: numeric id mismatch for existing item")
		}
	}

	if details.NumericID == 0 {
		r.nextID++
		details.NumericID = r.nextID
	} else {
		if details.NumericID < 0 {
			return errors.New("inventory: numeric id must be positive")
		}
		if owner, collision := r.byID[details.NumericID]; collision && owner != details.ID {
			return errors.New("inventory: numeric id already assigned to another item")
		}
		if details.NumericID > r.nextID {
			r.nextID = details.NumericID
		}
	}

	r.items[details.ID] = details
	r.byID[details.NumericID] = details.ID
	return nil
}

// Lookup returns details for the provided ID, if present.
func (r *Registry) Lookup(id ItemID) (ItemDetails, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	details, ok := r.items[id]
	return details, ok
}

// LookupByRegistryID returns item details using the numeric registry ID.
func (r *Registry) LookupByRegistryID(id RegistryID) (ItemDetails, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byID[id]
	if !ok {
		return ItemDetails{}, false
	}
	details, exists := r.items[key]
	return details, exists
}

// Len returns the number of registered items.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Export copies registry contents into a slice sorted by NumericID, suitable
// for sending to clients.
func (r *Registry) Export() []ItemDetails {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.items) == 0 {
		return nil
	}
	out := make([]ItemDetails, 0, len(r.items))
	for _, d := range r.items {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NumericID != out[j].NumericID {
			return out[i].NumericID < out[j].NumericID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type catalogFile struct {
	Items []ItemDetails `yaml:"items"`
}

// LoadRegistry decodes a YAML catalog of the form `items: [...]`.
func LoadRegistry(r io.Reader) (*Registry, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse item catalog: %w", err)
	}
	reg := NewRegistry()
	for _, d := range file.Items {
		if err := reg.RegisterDetails(d); err != nil {
			return nil, fmt.Errorf("failed to register item %q: %w", d.ID, err)
		}
	}
	for _, d := range file.Items {
		if d.PerishTo != "" {
			if _, ok := reg.Lookup(d.PerishTo); !ok {
				return nil, fmt.Errorf("item %q perishes into unknown item %q", d.ID, d.PerishTo)
			}
		}
	}
	return reg, nil
}

// LoadRegistryFile reads a YAML catalog from disk.
func LoadRegistryFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open item catalog: %w", err)
	}
	defer f.Close()
	return LoadRegistry(f)
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
