package dataset

import (
	"bufio"
	"encoding/xml"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvr-ai/go-ml-eval/models"
	"github.com/pkg/errors"
)

type vocAnnotation struct {
	Filename string `xml:"filename"`
	Size     struct {
		Width  int `xml:"width"`
		Height int `xml:"height"`
	} `xml:"size"`
	Objects []struct {
		Name      string `xml:"name"`
		Difficult int    `xml:"difficult"`
		BndBox    struct {
			XMin float64 `xml:"xmin"`
			YMin float64 `xml:"ymin"`
			XMax float64 `xml:"xmax"`
			YMax float64 `xml:"ymax"`
		} `xml:"bndbox"`
	} `xml:"object"`
}

// IsVOC reports whether dir looks like a Pascal VOC devkit year directory.
func IsVOC(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "Annotations"))
	return err == nil && info.IsDir()
}

// LoadVOC converts a Pascal VOC directory into a manifest.
//
// Image names come from ImageSets/Main/<set>.txt when it exists, otherwise
// from every file in Annotations. Pixel boxes are normalized with the
// annotation's <size>; labels are indexed with models.PascalVOCClasses and
// unknown names map to -1. Difficult objects are kept.
func LoadVOC(dir, set string) (*Manifest, error) {
	names, err := vocImageNames(dir, set)
	if err != nil {
		return nil, err
	}

	m := &Manifest{Name: filepath.Base(dir), dir: dir}
	for _, name := range names {
		entry, err := loadVOCEntry(dir, name)
		if err != nil {
			return nil, err
		}
		m.Images = append(m.Images, entry)
	}
	return m, nil
}

func vocImageNames(dir, set string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, "ImageSets", "Main", set+".txt"))
	if err == nil {
		defer f.Close()

		var names []string
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) > 0 {
				names = append(names, fields[0])
			}
		}
		return names, errors.Wrap(scanner.Err(), "failed to read image set")
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to open image set")
	}

	files, err := os.ReadDir(filepath.Join(dir, "Annotations"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list annotations")
	}
	var names []string
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".xml" {
			continue
		}
		names = append(names, strings.TrimSuffix(file.Name(), ".xml"))
	}
	sort.Strings(names)
	return names, nil
}

func loadVOCEntry(dir, name string) (Entry, error) {
	data, err := os.ReadFile(filepath.Join(dir, "Annotations", name+".xml"))
	if err != nil {
		return Entry{}, errors.Wrapf(err, "failed to read annotation %s", name)
	}

	var ann vocAnnotation
	if err := xml.Unmarshal(data, &ann); err != nil {
		return Entry{}, errors.Wrapf(err, "failed to parse annotation %s", name)
	}
	if ann.Size.Width <= 0 || ann.Size.Height <= 0 {
		return Entry{}, errors.Errorf("annotation %s has no image size", name)
	}

	file := ann.Filename
	if file == "" {
		file = name + ".jpg"
	}

	w, h := float64(ann.Size.Width), float64(ann.Size.Height)
	entry := Entry{
		ID:     name,
		File:   filepath.Join("JPEGImages", file),
		Width:  ann.Size.Width,
		Height: ann.Size.Height,
	}
	for _, obj := range ann.Objects {
		label, ok := models.PascalVOCClasses.Index(obj.Name)
		if !ok {
			label = -1
		}
		entry.Objects = append(entry.Objects, Object{
			YMin:  obj.BndBox.YMin / h,
			XMin:  obj.BndBox.XMin / w,
			YMax:  obj.BndBox.YMax / h,
			XMax:  obj.BndBox.XMax / w,
			Label: label,
			Name:  obj.Name,
		})
	}
	return entry, nil
}
