package plots

import (
	"database/sql"
	"testing"

	"github.com/jowabu/plotpay/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSchema(db))
	return db
}

func TestCreateAndGetByName(t *testing.T) {
	repo := NewRepository(setupTestDB(t), testLog())

	plot := &Plot{
		Name:            "Green Court",
		Location:        "Kisumu",
		Type:            TypeLumpsum,
		Units:           10,
		PayerKeyHash:    identity.Hash("254700000001"),
		LumpsumExpected: dec("5000"),
		PayoutMSISDN:    "254711111111",
	}
	require.NoError(t, repo.Create(plot))
	assert.NotEmpty(t, plot.ID, "Create assigns an id")

	got, err := repo.GetByName("Green Court")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, plot.ID, got.ID)
	assert.Equal(t, TypeLumpsum, got.Type)
	assert.True(t, got.LumpsumExpected.Equal(dec("5000")))
	assert.Equal(t, "254711111111", got.PayoutMSISDN)
}

func TestGetByName_Missing(t *testing.T) {
	repo := NewRepository(setupTestDB(t), testLog())

	got, err := repo.GetByName("Nowhere")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreate_IndividualPlotRoundTripsTenants(t *testing.T) {
	repo := NewRepository(setupTestDB(t), testLog())

	plot := &Plot{
		Name:     "Sunrise Flats",
		Location: "Nairobi",
		Type:     TypeIndividual,
		Units:    2,
		Tenants: []Tenant{
			{Name: "Alice", Phone: "254700000009", PayerKeyHash: identity.Hash("254700000009"), Expected: dec("1200")},
			{Name: "Brian", Phone: "254700000002", PayerKeyHash: identity.Hash("254700000002"), Expected: dec("1000")},
		},
	}
	require.NoError(t, repo.Create(plot))

	got, err := repo.GetByID(plot.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Tenants, 2)
	assert.Equal(t, "Alice", got.Tenants[0].Name)
	assert.Equal(t, identity.Hash("254700000002"), got.Tenants[1].PayerKeyHash)
	assert.True(t, got.Tenants[1].Expected.Equal(dec("1000")))
}

func TestListAll_OrderedByCreation(t *testing.T) {
	repo := NewRepository(setupTestDB(t), testLog())

	for _, name := range []string{"Plot A", "Plot B", "Plot C"} {
		require.NoError(t, repo.Create(&Plot{
			Name:            name,
			Location:        "Eldoret",
			Type:            TypeLumpsum,
			Units:           1,
			PayerKeyHash:    identity.Hash(name),
			LumpsumExpected: dec("100"),
		}))
	}

	all, err := repo.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Plot A", all[0].Name)
	assert.Equal(t, "Plot C", all[2].Name)
}

func TestResolverAgainstRepository(t *testing.T) {
	// Resolver over the real repository: the scan must see stored records.
	repo := NewRepository(setupTestDB(t), testLog())

	key := identity.Hash("254700000005")
	require.NoError(t, repo.Create(&Plot{
		Name:            "Lakeview",
		Location:        "Homa Bay",
		Type:            TypeLumpsum,
		Units:           4,
		PayerKeyHash:    key,
		LumpsumExpected: dec("2000"),
	}))

	res, err := NewResolver(repo, testLog()).Resolve(key)
	require.NoError(t, err)
	assert.True(t, res.Recognized)
	assert.Equal(t, "Lakeview", res.PlotName)
}
