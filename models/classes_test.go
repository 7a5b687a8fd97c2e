package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCOCOClasses(t *testing.T) {
	assert.Equal(t, 80, COCOClasses.Len())

	name, ok := COCOClasses.Name(1)
	assert.True(t, ok)
	assert.Equal(t, "person", name)

	name, ok = COCOClasses.Name(90)
	assert.True(t, ok)
	assert.Equal(t, "toothbrush", name)

	_, ok = COCOClasses.Name(12)
	assert.False(t, ok, "id 12 is unused in the TF label map")

	idx, ok := COCOClasses.Index("dog")
	assert.True(t, ok)
	assert.Equal(t, 18, idx)
}

func TestOutputClassSet_Label(t *testing.T) {
	assert.Equal(t, "car", COCOClasses.Label(3))
	assert.Equal(t, "12", COCOClasses.Label(12))

	var none *OutputClassSet
	assert.Equal(t, "7", none.Label(7))
}

func TestNewOutputClassSetFromNames(t *testing.T) {
	set := NewOutputClassSetFromNames("custom", []string{"dog", "cat", "dog", "bird"})

	assert.Equal(t, 3, set.Len())
	for want, name := range []string{"bird", "cat", "dog"} {
		idx, ok := set.Index(name)
		assert.True(t, ok)
		assert.Equal(t, want, idx)
	}
}

func TestLookupSet(t *testing.T) {
	assert.Same(t, COCOClasses, LookupSet(ModelFamilyCOCO))
	assert.Same(t, PascalVOCClasses, LookupSet(ModelFamilyVOC))
	assert.Nil(t, LookupSet("yolo"))
}
