// Package imaristest provides an in-memory imaris.Backend for tests.
package imaristest

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/pkg/imaris"
)

// Dataset is a recorded dataset write
type Dataset struct {
	Dims []uint64
	Data interface{}
}

// Store records groups, attributes and datasets
type Store struct {
	Path       string
	Groups     map[string]bool
	Attributes map[string]map[string]string
	Datasets   map[string]Dataset
	Closed     int

	// FailOn makes any operation on a path containing this string fail
	FailOn string
}

// Backend hands out Stores and remembers them
type Backend struct {
	Stores []*Store

	// FailOn is copied into every created store
	FailOn string

	// CreateErr, when set, is returned by Create
	CreateErr error
}

// Create implements imaris.Backend
func (b *Backend) Create(path string) (imaris.Store, error) {
	if b.CreateErr != nil {
		return nil, b.CreateErr
	}
	s := &Store{
		Path:       path,
		Groups:     map[string]bool{"/": true},
		Attributes: map[string]map[string]string{},
		Datasets:   map[string]Dataset{},
		FailOn:     b.FailOn,
	}
	b.Stores = append(b.Stores, s)
	return s, nil
}

// Last returns the most recently created store
func (b *Backend) Last() *Store {
	if len(b.Stores) == 0 {
		return nil
	}
	return b.Stores[len(b.Stores)-1]
}

func (s *Store) check(path string) error {
	if s.FailOn != "" && strings.Contains(path, s.FailOn) {
		return errors.Errorf("injected failure at %s", path)
	}
	return nil
}

func parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// CreateGroup implements imaris.Store
func (s *Store) CreateGroup(path string) error {
	if err := s.check(path); err != nil {
		return err
	}
	if !s.Groups[parent(path)] {
		return errors.Errorf("parent of %s does not exist", path)
	}
	if s.Groups[path] {
		return errors.Errorf("group %s already exists", path)
	}
	s.Groups[path] = true
	return nil
}

// SetAttribute implements imaris.Store
func (s *Store) SetAttribute(objectPath, name, value string) error {
	if err := s.check(objectPath); err != nil {
		return err
	}
	if _, ok := s.Datasets[objectPath]; !ok && !s.Groups[objectPath] {
		return errors.Errorf("attribute on unknown object %s", objectPath)
	}
	if s.Attributes[objectPath] == nil {
		s.Attributes[objectPath] = map[string]string{}
	}
	s.Attributes[objectPath][name] = value
	return nil
}

// WriteDataset implements imaris.Store
func (s *Store) WriteDataset(path string, dims []uint64, data interface{}) error {
	if err := s.check(path); err != nil {
		return err
	}
	if !s.Groups[parent(path)] {
		return errors.Errorf("parent of %s does not exist", path)
	}
	s.Datasets[path] = Dataset{Dims: dims, Data: data}
	return nil
}

// Close implements imaris.Store
func (s *Store) Close() error {
	s.Closed++
	return nil
}

// Attr returns a recorded attribute or the empty string
func (s *Store) Attr(path, name string) string {
	return s.Attributes[path][name]
}
