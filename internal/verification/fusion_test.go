package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventario-backend/internal/models"
)

func strPtr(s string) *string { return &s }

func scan(code string, qty int, area, location string) models.ScanRecord {
	s := models.ScanRecord{ProductCode: code, Quantity: qty}
	if area != "" {
		s.Area = strPtr(area)
	}
	if location != "" {
		s.Location = strPtr(location)
	}
	return s
}

func TestAggregate_SumsByCode(t *testing.T) {
	got := Aggregate([]models.ScanRecord{
		scan("P1", 1, "", "A1"),
		scan("P2", 1, "", "A1"),
		scan("P1", 1, "", "A1"),
		scan(" P1 ", 1, "", "A1"),
		scan("  ", 5, "", ""),
	})

	require.Len(t, got, 2)
	assert.Equal(t, CountedProduct{ProductCode: "P1", Counted: 3, Location: "A1"}, got[0])
	assert.Equal(t, CountedProduct{ProductCode: "P2", Counted: 1, Location: "A1"}, got[1])
}

func TestAggregate_LastNonEmptyLocationWins(t *testing.T) {
	got := Aggregate([]models.ScanRecord{
		scan("P1", 2, "Z1", "A1"),
		scan("P1", 1, "", "B7"),
		scan("P1", 1, "", ""),
	})

	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Counted)
	assert.Equal(t, "Z1", got[0].Area)
	assert.Equal(t, "B7", got[0].Location)
}

func TestFuse(t *testing.T) {
	master := map[string]models.MasterProduct{
		"P1": {ProductCode: "P1", Description: "Tornillo 3/8", Quantity: 3, Area: strPtr("Z9"), Location: strPtr("R2")},
		"P3": {ProductCode: "P3", Description: "Tuerca", Quantity: 10, Location: strPtr("R5")},
	}
	counted := []CountedProduct{
		{ProductCode: "P1", Counted: 3, Location: "A1"},
		{ProductCode: "P2", Counted: 1, Location: "A1"},
		{ProductCode: "P3", Counted: 8},
	}

	got := Fuse("M-001", counted, master)
	require.Len(t, got, 3)

	assert.Equal(t, FusionRecord{
		ControlBatchID:   "M-001",
		ProductCode:      "P1",
		Description:      "Tornillo 3/8",
		SystemQuantity:   3,
		CountedQuantity:  3,
		VerifiedQuantity: 3,
		Variance:         0,
		InMasterCatalog:  true,
		Area:             "Z9",
		Location:         "A1",
	}, got[0])

	// products missing from master are kept and flagged
	assert.False(t, got[1].InMasterCatalog)
	assert.Equal(t, NotInCatalog, got[1].Description)
	assert.Equal(t, 0, got[1].SystemQuantity)
	assert.Equal(t, 1, got[1].Variance)

	assert.Equal(t, "R5", got[2].Location)
	assert.Equal(t, -2, got[2].Variance)
}

func TestFuse_VarianceIdentity(t *testing.T) {
	master := map[string]models.MasterProduct{
		"A": {Quantity: 0},
		"B": {Quantity: 50},
		"C": {Quantity: 7},
	}
	counted := []CountedProduct{{ProductCode: "A", Counted: 4}, {ProductCode: "B", Counted: 0}, {ProductCode: "C", Counted: 7}, {ProductCode: "D", Counted: 2}}

	for _, rec := range Fuse("M-9", counted, master) {
		assert.Equal(t, rec.VerifiedQuantity-rec.SystemQuantity, rec.Variance, rec.ProductCode)
		assert.Equal(t, rec.CountedQuantity, rec.VerifiedQuantity, rec.ProductCode)
	}
}

func TestFuse_Empty(t *testing.T) {
	got := Fuse("M-1", nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
