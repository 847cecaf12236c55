package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCatalog = `
program: {
	id:   "main-street"
	name: "Main Street Rewards"
}

rewards: {
	free_coffee: {
		name:            "Free Coffee"
		points_cost:     100
		max_redemptions: 5
	}
	free_pastry: {
		name:            "Free Pastry"
		points_cost:     250
		max_redemptions: 2
		active:          false
	}
}
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.cue")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidCatalog(t *testing.T) {
	cat, err := Load(writeCatalog(t, validCatalog))
	require.NoError(t, err)

	assert.Equal(t, "main-street", cat.Program.ID)
	assert.Equal(t, "Main Street Rewards", cat.Program.Name)
	require.Len(t, cat.Rewards, 2)

	// Rewards are sorted by ID for deterministic seeding.
	assert.Equal(t, "free_coffee", cat.Rewards[0].ID)
	assert.Equal(t, "Free Coffee", cat.Rewards[0].Name)
	assert.Equal(t, int64(100), cat.Rewards[0].PointsCost)
	assert.Equal(t, int64(5), cat.Rewards[0].MaxRedemptions)
	assert.True(t, cat.Rewards[0].IsActive)
	assert.Equal(t, "main-street", cat.Rewards[0].ProgramID)

	assert.Equal(t, "free_pastry", cat.Rewards[1].ID)
	assert.False(t, cat.Rewards[1].IsActive)
}

func TestLoadActiveDefaultsTrue(t *testing.T) {
	cat, err := Load(writeCatalog(t, `
program: {id: "p", name: "P"}
rewards: r1: {name: "R", points_cost: 10, max_redemptions: 1}
`))
	require.NoError(t, err)
	require.Len(t, cat.Rewards, 1)
	assert.True(t, cat.Rewards[0].IsActive)
}

func TestLoadRejectsZeroPointsCost(t *testing.T) {
	_, err := Load(writeCatalog(t, `
program: {id: "p", name: "P"}
rewards: r1: {name: "R", points_cost: 0, max_redemptions: 1}
`))
	require.Error(t, err)
}

func TestLoadRejectsNegativeStock(t *testing.T) {
	_, err := Load(writeCatalog(t, `
program: {id: "p", name: "P"}
rewards: r1: {name: "R", points_cost: 10, max_redemptions: -1}
`))
	require.Error(t, err)
}

func TestLoadRejectsMissingProgram(t *testing.T) {
	_, err := Load(writeCatalog(t, `
rewards: r1: {name: "R", points_cost: 10, max_redemptions: 1}
`))
	require.Error(t, err)
}

func TestLoadRejectsEmptyRewards(t *testing.T) {
	_, err := Load(writeCatalog(t, `
program: {id: "p", name: "P"}
`))
	require.Error(t, err)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "rewards", cerr.Field)
}

func TestLoadRejectsMalformedCUE(t *testing.T) {
	_, err := Load(writeCatalog(t, `program: {id: `))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
}
