package doctor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

func TestDefaultsAreValid(t *testing.T) {
	c, err := NewCatalog(Defaults())
	require.NoError(t, err)
	assert.Equal(t, 6, c.Len())

	d, ok := c.Get("dr-chen")
	require.True(t, ok)
	assert.Equal(t, "Gynecology", d.Department)
	assert.Equal(t, "09:30", d.WorkingHours[0].Start.String())
}

func TestByNameToleratesTitleAndCase(t *testing.T) {
	c, err := NewCatalog(Defaults())
	require.NoError(t, err)

	for _, name := range []string{"Dr. Sarah Smith", "dr. sarah  smith", "Sarah Smith"} {
		d, ok := c.ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, "dr-smith", d.ID)
	}

	_, ok := c.ByName("Dr. Who")
	assert.False(t, ok)
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	docs := Defaults()
	docs = append(docs, docs[0])
	_, err := NewCatalog(docs)
	assert.Error(t, err)
}

func TestNewCatalogRejectsBadWindows(t *testing.T) {
	_, err := NewCatalog([]model.Doctor{{
		ID:           "dr-x",
		WorkingHours: []model.WorkingWindow{{Start: model.MustTimeOfDay("12:00"), End: model.MustTimeOfDay("11:00")}},
	}})
	assert.Error(t, err)
}

func TestListReturnsCopy(t *testing.T) {
	c, err := NewCatalog(Defaults())
	require.NoError(t, err)

	list := c.List()
	list[0].Name = "changed"

	d, _ := c.Get(list[0].ID)
	assert.Equal(t, "Dr. Sarah Smith", d.Name)
}
