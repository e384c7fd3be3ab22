package ometiff

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
)

const (
	omeNamespace = "http://www.openmicroscopy.org/Schemas/OME/2016-06"

	// DimensionOrder lists axes fastest first; pages follow Z, then C, then T
	DimensionOrder = "XYZCT"
)

type omeDocument struct {
	XMLName xml.Name `xml:"OME"`
	Xmlns   string   `xml:"xmlns,attr"`
	Creator string   `xml:"Creator,attr,omitempty"`
	Image   omeImage `xml:"Image"`
}

type omeImage struct {
	ID     string    `xml:"ID,attr"`
	Name   string    `xml:"Name,attr,omitempty"`
	Pixels omePixels `xml:"Pixels"`
}

type omePixels struct {
	ID             string       `xml:"ID,attr"`
	DimensionOrder string       `xml:"DimensionOrder,attr"`
	Type           string       `xml:"Type,attr"`
	BigEndian      bool         `xml:"BigEndian,attr"`
	SizeX          int          `xml:"SizeX,attr"`
	SizeY          int          `xml:"SizeY,attr"`
	SizeZ          int          `xml:"SizeZ,attr"`
	SizeC          int          `xml:"SizeC,attr"`
	SizeT          int          `xml:"SizeT,attr"`
	PhysicalSizeX  float64      `xml:"PhysicalSizeX,attr,omitempty"`
	PhysicalSizeY  float64      `xml:"PhysicalSizeY,attr,omitempty"`
	PhysicalSizeZ  float64      `xml:"PhysicalSizeZ,attr,omitempty"`
	Channels       []omeChannel `xml:"Channel"`
	TiffData       omeTiffData  `xml:"TiffData"`
}

type omeChannel struct {
	ID              string `xml:"ID,attr"`
	Name            string `xml:"Name,attr,omitempty"`
	SamplesPerPixel int    `xml:"SamplesPerPixel,attr"`
}

type omeTiffData struct {
	IFD        int `xml:"IFD,attr"`
	PlaneCount int `xml:"PlaneCount,attr"`
}

// omeType maps a sample type onto the OME pixel type name
func omeType(d models.DType) (string, error) {
	switch d {
	case models.Uint8:
		return "uint8", nil
	case models.Uint16:
		return "uint16", nil
	case models.Float32:
		return "float", nil
	}
	return "", errors.Errorf("no OME pixel type for %v", d)
}

func parseOMEType(s string) (models.DType, error) {
	switch s {
	case "uint8":
		return models.Uint8, nil
	case "uint16":
		return models.Uint16, nil
	case "float":
		return models.Float32, nil
	}
	return models.Invalid, errors.Errorf("unsupported OME pixel type %q", s)
}

// buildOMEXML describes vol as a single OME image stored in consecutive IFDs
func buildOMEXML(vol *models.Volume, name, creator string, px models.VoxelSize) (string, error) {
	typ, err := omeType(vol.DType)
	if err != nil {
		return "", err
	}

	pixels := omePixels{
		ID:             "Pixels:0",
		DimensionOrder: DimensionOrder,
		Type:           typ,
		SizeT:          vol.Shape[models.AxisT],
		SizeC:          vol.Shape[models.AxisC],
		SizeZ:          vol.Shape[models.AxisZ],
		SizeY:          vol.Shape[models.AxisY],
		SizeX:          vol.Shape[models.AxisX],
		TiffData:       omeTiffData{IFD: 0, PlaneCount: vol.PlaneCount()},
	}
	if px.Validate() == nil {
		pixels.PhysicalSizeX, pixels.PhysicalSizeY, pixels.PhysicalSizeZ = px.X, px.Y, px.Z
	}
	for c := 0; c < pixels.SizeC; c++ {
		pixels.Channels = append(pixels.Channels, omeChannel{
			ID:              fmt.Sprintf("Channel:0:%d", c),
			Name:            fmt.Sprintf("Channel %d", c),
			SamplesPerPixel: 1,
		})
	}

	doc := omeDocument{
		Xmlns:   omeNamespace,
		Creator: creator,
		Image:   omeImage{ID: "Image:0", Name: name, Pixels: pixels},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to encode OME-XML")
	}
	return xml.Header + string(out), nil
}

// parseOMEXML reads the pixel description back from an ImageDescription
func parseOMEXML(desc string) (omePixels, error) {
	var doc omeDocument
	if err := xml.NewDecoder(strings.NewReader(desc)).Decode(&doc); err != nil {
		return omePixels{}, errors.Wrap(err, "ImageDescription is not OME-XML")
	}
	return doc.Image.Pixels, nil
}

// axesOf turns a DimensionOrder (fastest first) into an axis string (slowest
// first), e.g. XYZCT gives TCZYX. X and Y must be the two fastest axes.
func axesOf(order string) (string, error) {
	if len(order) != 5 || !strings.HasPrefix(order, "XY") {
		return "", errors.Errorf("unsupported dimension order %q", order)
	}
	rest := order[2:]
	for _, a := range "ZCT" {
		if strings.Count(rest, string(a)) != 1 {
			return "", errors.Errorf("unsupported dimension order %q", order)
		}
	}

	axes := []byte(order)
	for i, j := 0, len(axes)-1; i < j; i, j = i+1, j-1 {
		axes[i], axes[j] = axes[j], axes[i]
	}
	return string(axes), nil
}

// planeOf returns the (t, c, z) position of page i under order
func planeOf(order string, i int, px omePixels) (t, c, z int) {
	sizes := map[byte]int{'Z': px.SizeZ, 'C': px.SizeC, 'T': px.SizeT}
	pos := map[byte]int{}
	for _, a := range []byte(order[2:]) {
		pos[a] = i % sizes[a]
		i /= sizes[a]
	}
	return pos['T'], pos['C'], pos['Z']
}
