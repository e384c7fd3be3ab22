package imaris

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

const (
	imarisVersion = "5.5.0"
	timeLayout    = "2006-01-02 15:04:05.000"
)

// Group paths of the Imaris 5.5 layout
const (
	pathDataSet     = "/DataSet"
	pathResolution  = "/DataSet/ResolutionLevel 0"
	pathDataSetInfo = "/DataSetInfo"
	pathImage       = "/DataSetInfo/Image"
	pathImaris      = "/DataSetInfo/Imaris"
	pathImarisDS    = "/DataSetInfo/ImarisDataSet"
	pathTimeInfo    = "/DataSetInfo/TimeInfo"
	pathThumbnail   = "/Thumbnail"
)

func channelSection(c int) string {
	return fmt.Sprintf("Channel %d", c)
}

// TimePointPath returns the group of time point t at full resolution
func TimePointPath(t int) string {
	return fmt.Sprintf("%s/TimePoint %d", pathResolution, t)
}

// ChannelPath returns the group holding the Data and Histogram datasets of (t, c)
func ChannelPath(t, c int) string {
	return fmt.Sprintf("%s/%s", TimePointPath(t), channelSection(c))
}

// ChannelInfoPath returns the display settings group of channel c
func ChannelInfoPath(c int) string {
	return fmt.Sprintf("%s/%s", pathDataSetInfo, channelSection(c))
}

// layoutWriter emits the group tree of a single resolution .ims file
type layoutWriter struct {
	store      Store
	imageSize  ImageSize
	appName    string
	appVersion string
}

// attrs sets several string attributes on one object in a stable order
func (w *layoutWriter) attrs(path string, values map[string]string) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := w.store.SetAttribute(path, name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// group creates a group and sets its attributes
func (w *layoutWriter) group(path string, values map[string]string) error {
	if err := w.store.CreateGroup(path); err != nil {
		return err
	}
	return w.attrs(path, values)
}

// writeHeader writes the root attributes and the DataSet skeleton
func (w *layoutWriter) writeHeader() error {
	err := w.attrs("/", map[string]string{
		"DataSetDirectoryName":     "DataSet",
		"DataSetInfoDirectoryName": "DataSetInfo",
		"ImarisDataSet":            "ImarisDataSet",
		"ImarisVersion":            imarisVersion,
		"NumberOfDataSets":         "1",
		"ThumbnailDirectoryName":   "Thumbnail",
	})
	if err != nil {
		return err
	}

	for _, p := range []string{pathDataSet, pathResolution} {
		if err := w.group(p, nil); err != nil {
			return err
		}
	}
	for t := 0; t < w.imageSize.T; t++ {
		if err := w.group(TimePointPath(t), nil); err != nil {
			return err
		}
	}
	return nil
}

// writeStack writes the Z×Y×X data and histogram of one (t, c) pair
func (w *layoutWriter) writeStack(t, c int, samples interface{}, hist stackHistogram) error {
	path := ChannelPath(t, c)
	err := w.group(path, map[string]string{
		"ImageSizeX":      strconv.Itoa(w.imageSize.X),
		"ImageSizeY":      strconv.Itoa(w.imageSize.Y),
		"ImageSizeZ":      strconv.Itoa(w.imageSize.Z),
		"ImageBlockSizeX": strconv.Itoa(w.imageSize.X),
		"ImageBlockSizeY": strconv.Itoa(w.imageSize.Y),
		"ImageBlockSizeZ": strconv.Itoa(w.imageSize.Z),
		"HistogramMin":    formatFloat(hist.min),
		"HistogramMax":    formatFloat(hist.max),
	})
	if err != nil {
		return err
	}

	dims := []uint64{uint64(w.imageSize.Z), uint64(w.imageSize.Y), uint64(w.imageSize.X)}
	if err := w.store.WriteDataset(path+"/Data", dims, samples); err != nil {
		return err
	}
	return w.store.WriteDataset(path+"/Histogram", []uint64{uint64(len(hist.counts))}, hist.counts)
}

// writeInfo writes the DataSetInfo tree: image geometry, channels, time points and custom parameters
func (w *layoutWriter) writeInfo(extents ImageExtents, params *Parameters, times []time.Time, colors []ColorInfo) error {
	if err := w.group(pathDataSetInfo, nil); err != nil {
		return err
	}

	err := w.group(pathImage, map[string]string{
		"X":             strconv.Itoa(w.imageSize.X),
		"Y":             strconv.Itoa(w.imageSize.Y),
		"Z":             strconv.Itoa(w.imageSize.Z),
		"Noc":           strconv.Itoa(w.imageSize.C),
		"Unit":          "um",
		"ExtMin0":       formatFloat(extents.MinX),
		"ExtMin1":       formatFloat(extents.MinY),
		"ExtMin2":       formatFloat(extents.MinZ),
		"ExtMax0":       formatFloat(extents.MaxX),
		"ExtMax1":       formatFloat(extents.MaxY),
		"ExtMax2":       formatFloat(extents.MaxZ),
		"RecordingDate": times[0].Format(timeLayout),
	})
	if err != nil {
		return err
	}

	err = w.group(pathImaris, map[string]string{
		"Version":       "5.5",
		"ThumbnailMode": "thumbnailMIP",
	})
	if err != nil {
		return err
	}

	err = w.group(pathImarisDS, map[string]string{
		"Creator":        w.appName,
		"Version":        w.appVersion,
		"NumberOfImages": "1",
	})
	if err != nil {
		return err
	}

	for c, col := range colors {
		values := map[string]string{
			"Name":            fmt.Sprintf("Channel %d", c),
			"Color":           fmt.Sprintf("%.3f %.3f %.3f", col.BaseColor.R, col.BaseColor.G, col.BaseColor.B),
			"ColorMode":       "BaseColor",
			"ColorOpacity":    formatFloat(col.Opacity * col.BaseColor.A),
			"ColorRange":      fmt.Sprintf("%s %s", formatFloat(col.RangeMin), formatFloat(col.RangeMax)),
			"GammaCorrection": formatFloat(col.GammaValue),
		}
		// Parameters override defaults, e.g. a channel name
		for name, v := range params.sections[channelSection(c)] {
			values[name] = v
		}
		if err := w.group(ChannelInfoPath(c), values); err != nil {
			return err
		}
	}

	timeValues := map[string]string{
		"DatasetTimePoints": strconv.Itoa(w.imageSize.T),
		"FileTimePoints":    strconv.Itoa(w.imageSize.T),
	}
	for t := 0; t < w.imageSize.T; t++ {
		ts := times[min(t, len(times)-1)]
		timeValues[fmt.Sprintf("TimePoint%d", t+1)] = ts.Format(timeLayout)
	}
	if err := w.group(pathTimeInfo, timeValues); err != nil {
		return err
	}

	// Remaining parameter sections extend existing groups or become new ones
	sections := make([]string, 0, len(params.sections))
	for s := range params.sections {
		if !isChannelSection(s, len(colors)) {
			sections = append(sections, s)
		}
	}
	sort.Strings(sections)
	for _, s := range sections {
		path := pathDataSetInfo + "/" + s
		switch path {
		case pathImage, pathImaris, pathImarisDS, pathTimeInfo:
			err = w.attrs(path, params.sections[s])
		default:
			err = w.group(path, params.sections[s])
		}
		if err != nil {
			return err
		}
	}

	return w.store.CreateGroup(pathThumbnail)
}

func isChannelSection(s string, channels int) bool {
	for c := 0; c < channels; c++ {
		if s == channelSection(c) {
			return true
		}
	}
	return false
}
