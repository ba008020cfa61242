package forecast

import (
	"fmt"
	"sort"
)

// Catalog is the set of known stations. Station ids and names are a bijection.
type Catalog struct {
	stations []Station
	byID     map[string]Station
	byName   map[string]Station
}

// NewCatalog indexes stations, rejecting duplicate ids or names.
func NewCatalog(stations []Station) (*Catalog, error) {
	c := &Catalog{
		stations: make([]Station, 0, len(stations)),
		byID:     make(map[string]Station, len(stations)),
		byName:   make(map[string]Station, len(stations)),
	}
	for _, s := range stations {
		if s.ID == "" || s.Name == "" {
			return nil, fmt.Errorf("station %q has an empty id or name", s.ID+s.Name)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %q", s.ID)
		}
		if _, dup := c.byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate station name %q", s.Name)
		}
		c.byID[s.ID] = s
		c.byName[s.Name] = s
		c.stations = append(c.stations, s)
	}
	return c, nil
}

// All returns a copy of the stations in catalog order.
func (c *Catalog) All() []Station {
	out := make([]Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// Len returns the number of stations.
func (c *Catalog) Len() int {
	return len(c.stations)
}

// Get returns the station with the given id.
func (c *Catalog) Get(id string) (Station, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Name returns the display name of a station id, or the id itself when unknown.
func (c *Catalog) Name(id string) string {
	if s, ok := c.byID[id]; ok {
		return s.Name
	}
	return id
}

// Subset restricts the catalog to ids, keeping the order of ids.
func (c *Catalog) Subset(ids []string) (*Catalog, error) {
	stations, err := c.Resolve(ids)
	if err != nil {
		return nil, err
	}
	return NewCatalog(stations)
}

// Resolve looks up every id; any unknown id is an error.
func (c *Catalog) Resolve(ids []string) ([]Station, error) {
	out := make([]Station, 0, len(ids))
	var unknown []string
	for _, id := range ids {
		s, ok := c.byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		out = append(out, s)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %v", ErrUnknownStation, unknown)
	}
	return out, nil
}

// IDsForNames maps display names back to station ids.
func (c *Catalog) IDsForNames(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	var unknown []string
	for _, n := range names {
		s, ok := c.byName[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, s.ID)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownStation, unknown)
	}
	return out, nil
}
