package imaris

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/scigolib/hdf5"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
)

// Backend creates the hierarchical store an .ims file is written into
type Backend interface {
	Create(path string) (Store, error)
}

// Store is the minimal hierarchical container surface the layout needs.
// Paths are absolute, e.g. "/DataSet/ResolutionLevel 0".
type Store interface {
	CreateGroup(path string) error
	SetAttribute(objectPath, name, value string) error
	WriteDataset(path string, dims []uint64, data interface{}) error
	Close() error
}

// HDF5Backend writes real HDF5 files.
//
// scigolib/hdf5 has no attribute writer for the root group, so attributes set
// on "/" are written to the top-level group RootAttributeGroup instead.
type HDF5Backend struct{}

// RootAttributeGroup holds the attributes an .ims file carries on its root group
// TODO: write them on "/" once scigolib/hdf5 exposes a GroupWriter for the root group.
const RootAttributeGroup = "/ImarisRoot"

// attributeWriter is the attribute surface of scigolib writer objects
type attributeWriter interface {
	WriteAttribute(name string, value interface{}) error
}

// Create implements Backend
func (HDF5Backend) Create(path string) (Store, error) {
	fw, err := hdf5.CreateForWrite(path, hdf5.CreateTruncate)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", path)
	}

	return &hdf5Store{
		objects: map[string]interface{}{},
		createGroup: func(p string) (interface{}, error) {
			return fw.CreateGroup(p)
		},
		createDataset: func(p string, dims []uint64, data interface{}) (interface{}, error) {
			switch v := data.(type) {
			case []uint8:
				ds, err := fw.CreateDataset(p, hdf5.Uint8, dims)
				if err != nil {
					return nil, err
				}
				return ds, ds.Write(v)
			case []uint16:
				ds, err := fw.CreateDataset(p, hdf5.Uint16, dims)
				if err != nil {
					return nil, err
				}
				return ds, ds.Write(v)
			case []float32:
				ds, err := fw.CreateDataset(p, hdf5.Float32, dims)
				if err != nil {
					return nil, err
				}
				return ds, ds.Write(v)
			case []uint64:
				ds, err := fw.CreateDataset(p, hdf5.Uint64, dims)
				if err != nil {
					return nil, err
				}
				return ds, ds.Write(v)
			}
			return nil, errors.Errorf("unsupported dataset element type %T", data)
		},
		close: fw.Close,
	}, nil
}

// hdf5Store binds one open scigolib file writer
type hdf5Store struct {
	objects       map[string]interface{}
	createGroup   func(path string) (interface{}, error)
	createDataset func(path string, dims []uint64, data interface{}) (interface{}, error)
	close         func() error
}

func (s *hdf5Store) CreateGroup(path string) error {
	g, err := s.createGroup(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create group %s", path)
	}
	s.objects[path] = g
	return nil
}

func (s *hdf5Store) SetAttribute(objectPath, name, value string) error {
	if objectPath == "/" {
		objectPath = RootAttributeGroup
		if _, ok := s.objects[objectPath]; !ok {
			if err := s.CreateGroup(objectPath); err != nil {
				return err
			}
		}
	}

	obj, ok := s.objects[objectPath]
	if !ok {
		return errors.Errorf("attribute %s on unknown object %s", name, objectPath)
	}
	aw, ok := obj.(attributeWriter)
	if !ok {
		return errors.Errorf("hdf5 object %s (%T) cannot hold attributes", objectPath, obj)
	}
	if err := aw.WriteAttribute(name, value); err != nil {
		return errors.Wrapf(err, "failed to write attribute %s on %s", name, objectPath)
	}
	return nil
}

func (s *hdf5Store) WriteDataset(path string, dims []uint64, data interface{}) error {
	ds, err := s.createDataset(path, dims, data)
	if err != nil {
		return errors.Wrapf(err, "failed to write dataset %s", path)
	}
	s.objects[path] = ds
	return nil
}

func (s *hdf5Store) Close() error {
	return s.close()
}

// typedSamples converts little-endian sample bytes into the slice type a Store expects
func typedSamples(dtype models.DType, data []byte) (interface{}, error) {
	switch dtype {
	case models.Uint8:
		return data, nil
	case models.Uint16:
		out := make([]uint16, len(data)/2)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(data[2*i:])
		}
		return out, nil
	case models.Float32:
		out := make([]float32, len(data)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return out, nil
	}
	return nil, errors.Errorf("unsupported sample dtype %v", dtype)
}

// Probe writes and removes a scratch file in dir exercising every Store
// operation the layout uses. A failure means the backend cannot produce .ims files.
func Probe(backend Backend, dir string) error {
	f, err := os.CreateTemp(dir, "czi2ims-probe-*.ims")
	if err != nil {
		return errors.Wrap(err, "failed to create probe file")
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	store, err := backend.Create(filepath.Clean(path))
	if err != nil {
		return err
	}

	steps := []func() error{
		func() error { return store.SetAttribute("/", "ImarisVersion", imarisVersion) },
		func() error { return store.CreateGroup("/DataSet") },
		func() error { return store.SetAttribute("/DataSet", "Probe", "1") },
		func() error { return store.WriteDataset("/DataSet/Data", []uint64{1, 1, 2}, []uint16{1, 2}) },
		func() error { return store.SetAttribute("/DataSet/Data", "Probe", "1") },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			store.Close()
			return err
		}
	}
	return store.Close()
}
