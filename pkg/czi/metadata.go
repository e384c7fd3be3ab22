package czi

import (
	"encoding/binary"
	"encoding/xml"
	"io"

	"github.com/pkg/errors"
)

// PhysicalSize holds the physical pixel pitch per axis in micrometers.
// A zero value means the file does not record that axis.
type PhysicalSize struct {
	X, Y, Z float64
}

// Known reports whether at least X and Y are recorded
func (p PhysicalSize) Known() bool {
	return p.X > 0 && p.Y > 0
}

type imageDocument struct {
	XMLName   xml.Name `xml:"ImageDocument"`
	Distances []struct {
		ID    string  `xml:"Id,attr"`
		Value float64 `xml:"Value"`
	} `xml:"Metadata>Scaling>Items>Distance"`
}

// readMetadataXML returns the XML document of the ZISRAWMETADATA segment at off
func readMetadataXML(r io.ReaderAt, off int64) ([]byte, error) {
	if _, err := expectSegment(r, off, SegmentMetadata); err != nil {
		return nil, err
	}

	head := make([]byte, 8)
	if _, err := r.ReadAt(head, off+SegmentHeaderSize); err != nil {
		return nil, errors.Wrap(err, "failed to read metadata header")
	}
	size := int64(int32(binary.LittleEndian.Uint32(head)))
	if size < 0 {
		return nil, errors.Errorf("invalid metadata size %d", size)
	}

	doc := make([]byte, size)
	if _, err := r.ReadAt(doc, off+SegmentHeaderSize+MetadataHeaderSize); err != nil {
		return nil, errors.Wrap(err, "failed to read metadata document")
	}
	return doc, nil
}

// parsePhysicalSize extracts Scaling/Items/Distance values, stored in meters
func parsePhysicalSize(doc []byte) (PhysicalSize, error) {
	var d imageDocument
	if err := xml.Unmarshal(doc, &d); err != nil {
		return PhysicalSize{}, errors.Wrap(err, "failed to parse metadata XML")
	}

	var p PhysicalSize
	for _, dist := range d.Distances {
		um := dist.Value * 1e6
		switch dist.ID {
		case "X":
			p.X = um
		case "Y":
			p.Y = um
		case "Z":
			p.Z = um
		}
	}
	return p, nil
}
