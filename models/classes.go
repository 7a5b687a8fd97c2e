// Package models - label maps for detector outputs and dataset annotations.
package models

import (
	"fmt"
	"sort"
)

// ModelFamily identifies the naming convention / dataset a label index belongs to.
type ModelFamily string

const (
	// ModelFamilyCOCO is the TensorFlow COCO label map: 90 sparse ids, 1-indexed.
	ModelFamilyCOCO ModelFamily = "coco"
	// ModelFamilyVOC is the 20 Pascal VOC classes + background.
	ModelFamilyVOC ModelFamily = "voc"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a family to its full list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Family ModelFamily
	// Classes that are supported and mappable.
	Classes []OutputClass

	byIndex map[int]string
	byName  map[string]int
}

// NewOutputClassSet creates a class set and builds its lookup maps.
func NewOutputClassSet(family ModelFamily, classes []OutputClass) *OutputClassSet {
	s := &OutputClassSet{
		Family:  family,
		Classes: classes,
		byIndex: make(map[int]string, len(classes)),
		byName:  make(map[string]int, len(classes)),
	}
	for _, c := range classes {
		s.byIndex[c.Index] = c.Name
		s.byName[c.Name] = c.Index
	}
	return s
}

// NewOutputClassSetFromNames assigns indices to names in sorted order,
// starting at 0. Used for datasets that only carry label strings.
func NewOutputClassSetFromNames(family ModelFamily, names []string) *OutputClassSet {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	classes := make([]OutputClass, 0, len(sorted))
	for _, name := range sorted {
		if len(classes) > 0 && classes[len(classes)-1].Name == name {
			continue
		}
		classes = append(classes, OutputClass{Index: len(classes), Name: name})
	}
	return NewOutputClassSet(family, classes)
}

// Name returns the class name for idx and whether it is known.
func (s *OutputClassSet) Name(idx int) (string, bool) {
	name, ok := s.byIndex[idx]
	return name, ok
}

// Index returns the class index for name and whether it is known.
func (s *OutputClassSet) Index(name string) (int, bool) {
	idx, ok := s.byName[name]
	return idx, ok
}

// Label returns the class name for idx, or the bare index when the set does
// not know it. Used for captions.
func (s *OutputClassSet) Label(idx int) string {
	if s != nil {
		if name, ok := s.byIndex[idx]; ok {
			return name
		}
	}
	return fmt.Sprintf("%d", idx)
}

// Len returns the number of classes in the set.
func (s *OutputClassSet) Len() int {
	return len(s.Classes)
}

// COCOClasses is TensorFlow's COCO label map as emitted by TF Hub / TF Object
// Detection API models: 80 classes spread over ids 1..90.
var COCOClasses = NewOutputClassSet(ModelFamilyCOCO, []OutputClass{
	{1, "person"},
	{2, "bicycle"},
	{3, "car"},
	{4, "motorcycle"},
	{5, "airplane"},
	{6, "bus"},
	{7, "train"},
	{8, "truck"},
	{9, "boat"},
	{10, "traffic light"},
	{11, "fire hydrant"},
	{13, "stop sign"},
	{14, "parking meter"},
	{15, "bench"},
	{16, "bird"},
	{17, "cat"},
	{18, "dog"},
	{19, "horse"},
	{20, "sheep"},
	{21, "cow"},
	{22, "elephant"},
	{23, "bear"},
	{24, "zebra"},
	{25, "giraffe"},
	{27, "backpack"},
	{28, "umbrella"},
	{31, "handbag"},
	{32, "tie"},
	{33, "suitcase"},
	{34, "frisbee"},
	{35, "skis"},
	{36, "snowboard"},
	{37, "sports ball"},
	{38, "kite"},
	{39, "baseball bat"},
	{40, "baseball glove"},
	{41, "skateboard"},
	{42, "surfboard"},
	{43, "tennis racket"},
	{44, "bottle"},
	{46, "wine glass"},
	{47, "cup"},
	{48, "fork"},
	{49, "knife"},
	{50, "spoon"},
	{51, "bowl"},
	{52, "banana"},
	{53, "apple"},
	{54, "sandwich"},
	{55, "orange"},
	{56, "broccoli"},
	{57, "carrot"},
	{58, "hot dog"},
	{59, "pizza"},
	{60, "donut"},
	{61, "cake"},
	{62, "chair"},
	{63, "couch"},
	{64, "potted plant"},
	{65, "bed"},
	{67, "dining table"},
	{70, "toilet"},
	{72, "tv"},
	{73, "laptop"},
	{74, "mouse"},
	{75, "remote"},
	{76, "keyboard"},
	{77, "cell phone"},
	{78, "microwave"},
	{79, "oven"},
	{80, "toaster"},
	{81, "sink"},
	{82, "refrigerator"},
	{84, "book"},
	{85, "clock"},
	{86, "vase"},
	{87, "scissors"},
	{88, "teddy bear"},
	{89, "hair drier"},
	{90, "toothbrush"},
})

// PascalVOCClasses is the 20 Pascal VOC classes + "__background__" at index 0.
var PascalVOCClasses = NewOutputClassSet(ModelFamilyVOC, []OutputClass{
	{0, "__background__"},
	{1, "aeroplane"},
	{2, "bicycle"},
	{3, "bird"},
	{4, "boat"},
	{5, "bottle"},
	{6, "bus"},
	{7, "car"},
	{8, "cat"},
	{9, "chair"},
	{10, "cow"},
	{11, "diningtable"},
	{12, "dog"},
	{13, "horse"},
	{14, "motorbike"},
	{15, "person"},
	{16, "pottedplant"},
	{17, "sheep"},
	{18, "sofa"},
	{19, "train"},
	{20, "tvmonitor"},
})

// LookupSet returns the registered class set for a family, or nil.
func LookupSet(family ModelFamily) *OutputClassSet {
	switch family {
	case ModelFamilyCOCO:
		return COCOClasses
	case ModelFamilyVOC:
		return PascalVOCClasses
	default:
		return nil
	}
}
