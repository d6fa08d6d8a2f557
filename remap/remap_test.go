package remap

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/mdsync/mdsync/snapshot"
	"github.com/mdsync/mdsync/tablemeta"
	"github.com/stretchr/testify/require"
)

type sequenceGenerator struct {
	n int
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.n++
	return fmt.Sprintf("s%d", g.n), nil
}

type failingGenerator struct {
	after int
}

func (g *failingGenerator) Generate() (string, error) {
	if g.after == 0 {
		return "", errors.New("entropy source unavailable")
	}
	g.after--
	return "ok", nil
}

var shopTables = tablemeta.MustNewSet(
	tablemeta.Table{Name: "customers", PrimaryKey: []string{"id"}, Autoincrement: true, SecondaryKey: []string{"email"}},
	tablemeta.Table{
		Name:          "orders",
		PrimaryKey:    []string{"order_id"},
		Autoincrement: true,
		ForeignKeys: []tablemeta.ForeignKey{
			{Name: "fk_customer", Table: "orders", Column: "customer_id", RefTable: "customers", RefColumn: "id"},
		},
	},
	tablemeta.Table{Name: "countries", PrimaryKey: []string{"code"}},
)

func shopSnapshot() snapshot.Snapshot {
	return snapshot.Snapshot{
		"customers": {
			{"id": 1, "email": "a@x.com"},
			{"id": 2, "email": "b@x.com"},
		},
		"orders": {
			{"order_id": 10, "customer_id": 2},
			{"order_id": 11, "customer_id": 1},
			{"order_id": 12, "customer_id": 2},
			{"order_id": 13, "customer_id": nil},
		},
		"countries": {
			{"code": "NZ", "name": "New Zealand"},
		},
		"settings": {
			{"key": "currency", "value": "NZD"},
		},
	}
}

func TestRemapPropagatesToForeignKeys(t *testing.T) {
	ctx := context.Background()
	in := shopSnapshot()
	res, err := Remap(ctx, shopTables, in, WithGenerator(&sequenceGenerator{}))
	require.NoError(t, err)

	require.Equal(t, snapshot.Snapshot{
		"customers": {
			{"id": "s1", "email": "a@x.com"},
			{"id": "s2", "email": "b@x.com"},
		},
		"orders": {
			{"order_id": "s3", "customer_id": "s2"},
			{"order_id": "s4", "customer_id": "s1"},
			{"order_id": "s5", "customer_id": "s2"},
			{"order_id": "s6", "customer_id": nil},
		},
		"countries": {
			{"code": "NZ", "name": "New Zealand"},
		},
		"settings": {
			{"key": "currency", "value": "NZD"},
		},
	}, res.Snapshot)

	require.Equal(t, snapshot.Lookup{
		"customers": {{"s1", 1}, {"s2", 2}},
		"orders":    {{"s3", 10}, {"s4", 11}, {"s5", 12}, {"s6", 13}},
	}, res.Lookup)
	require.Equal(t, Stats{Pairs: 6, StagedFields: 9, Tables: []string{"customers", "orders"}}, res.Stats)

	// The input is left untouched.
	require.Equal(t, shopSnapshot(), in)
}

func TestRemapCustomerReferencesMatchLookup(t *testing.T) {
	ctx := context.Background()
	in := shopSnapshot()
	res, err := Remap(ctx, shopTables, in)
	require.NoError(t, err)

	surrogateFor := make(map[any]any)
	for _, p := range res.Lookup["customers"] {
		surrogateFor[p.Original()] = p.Surrogate()
		_, err := uuid.Parse(p.Surrogate().(string))
		require.NoError(t, err)
	}
	for i, row := range res.Snapshot["orders"] {
		orig := in["orders"][i]["customer_id"]
		if orig == nil {
			require.Nil(t, row["customer_id"])
			continue
		}
		require.Equal(t, surrogateFor[orig], row["customer_id"])
	}
}

func TestRemapSharedValueSpace(t *testing.T) {
	tables := tablemeta.MustNewSet(
		tablemeta.Table{Name: "brands", PrimaryKey: []string{"id"}, Autoincrement: true},
		tablemeta.Table{Name: "vendors", PrimaryKey: []string{"id"}, Autoincrement: true},
		tablemeta.Table{
			Name:       "products",
			PrimaryKey: []string{"sku"},
			ForeignKeys: []tablemeta.ForeignKey{
				{Name: "fk_vendor", Table: "products", Column: "vendor_id", RefTable: "vendors", RefColumn: "id"},
			},
		},
	)
	in := snapshot.Snapshot{
		"brands":   {{"id": 7}},
		"vendors":  {{"id": 7}, {"id": 8}},
		"products": {{"sku": "A-1", "vendor_id": 7}},
	}

	t.Run("column scoped", func(t *testing.T) {
		res, err := Remap(context.Background(), tables, in, WithGenerator(&sequenceGenerator{}))
		require.NoError(t, err)
		// Every occurrence of (id, 7) shares one surrogate.
		require.Equal(t, "s1", res.Snapshot["brands"][0]["id"])
		require.Equal(t, "s1", res.Snapshot["vendors"][0]["id"])
		require.Equal(t, "s2", res.Snapshot["vendors"][1]["id"])
		require.Equal(t, "s1", res.Snapshot["products"][0]["vendor_id"])
		require.Equal(t, 2, res.Stats.Pairs)
	})

	t.Run("table scoped", func(t *testing.T) {
		res, err := Remap(
			context.Background(), tables, in,
			WithGenerator(&sequenceGenerator{}),
			WithTableScopedReferences(true),
		)
		require.NoError(t, err)
		require.Equal(t, "s1", res.Snapshot["brands"][0]["id"])
		require.Equal(t, "s2", res.Snapshot["vendors"][0]["id"])
		require.Equal(t, "s3", res.Snapshot["vendors"][1]["id"])
		require.Equal(t, "s2", res.Snapshot["products"][0]["vendor_id"])
		require.Equal(t, 3, res.Stats.Pairs)
	})
}

func TestRemapFirstWriterWins(t *testing.T) {
	fkToA := tablemeta.ForeignKey{Name: "fk_a", Table: "links", Column: "ref", RefTable: "a", RefColumn: "id"}
	fkToB := tablemeta.ForeignKey{Name: "fk_b", Table: "links", Column: "ref", RefTable: "b", RefColumn: "num"}
	in := snapshot.Snapshot{
		"a":     {{"id": 5}},
		"b":     {{"num": 5}},
		"links": {{"ref": 5}},
	}
	for _, tc := range []struct {
		desc string
		fks  []tablemeta.ForeignKey
	}{
		{desc: "declared in pair order", fks: []tablemeta.ForeignKey{fkToA, fkToB}},
		{desc: "declared in reverse", fks: []tablemeta.ForeignKey{fkToB, fkToA}},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			tables := tablemeta.MustNewSet(
				tablemeta.Table{Name: "a", PrimaryKey: []string{"id"}, Autoincrement: true},
				tablemeta.Table{Name: "b", PrimaryKey: []string{"num"}, Autoincrement: true},
				tablemeta.Table{Name: "links", ForeignKeys: tc.fks},
			)
			res, err := Remap(context.Background(), tables, in, WithGenerator(&sequenceGenerator{}))
			require.NoError(t, err)
			require.Equal(t, "s1", res.Snapshot["a"][0]["id"])
			require.Equal(t, "s2", res.Snapshot["b"][0]["num"])
			require.Equal(t, "s1", res.Snapshot["links"][0]["ref"])
		})
	}
}

func TestRemapLooseValueMatch(t *testing.T) {
	tables := tablemeta.MustNewSet(
		tablemeta.Table{Name: "customers", PrimaryKey: []string{"id"}, Autoincrement: true},
		tablemeta.Table{
			Name: "notes",
			ForeignKeys: []tablemeta.ForeignKey{
				{Name: "fk_customer", Table: "notes", Column: "customer_id", RefTable: "customers", RefColumn: "id"},
			},
		},
	)
	in := snapshot.Snapshot{
		"customers": {{"id": int64(3)}},
		"notes":     {{"customer_id": "3"}},
	}
	res, err := Remap(context.Background(), tables, in, WithGenerator(&sequenceGenerator{}))
	require.NoError(t, err)
	require.Equal(t, "s1", res.Snapshot["notes"][0]["customer_id"])
}

func TestRemapConcurrencyIsDeterministic(t *testing.T) {
	ctx := context.Background()
	serial, err := Remap(ctx, shopTables, shopSnapshot(), WithGenerator(&sequenceGenerator{}), WithConcurrency(1))
	require.NoError(t, err)
	parallel, err := Remap(ctx, shopTables, shopSnapshot(), WithGenerator(&sequenceGenerator{}), WithConcurrency(8))
	require.NoError(t, err)
	require.Equal(t, serial, parallel)
}

func TestRemapGenerationFailure(t *testing.T) {
	_, err := Remap(
		context.Background(), shopTables, shopSnapshot(),
		WithGenerator(&failingGenerator{after: 2}),
	)
	require.Error(t, err)
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	require.Equal(t, "orders", genErr.Table)
	require.Equal(t, "order_id", genErr.Column)
	require.Equal(t, 10, genErr.Value)
	require.EqualError(t, err, "error generating surrogate for orders.order_id = 10: entropy source unavailable")
}

func TestUUIDGeneratorFromReader(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42, 0x17, 0x99, 0x03}, 16)
	a := NewUUIDGeneratorFromReader(bytes.NewReader(seed))
	b := NewUUIDGeneratorFromReader(bytes.NewReader(seed))
	for i := 0; i < 2; i++ {
		sa, err := a.Generate()
		require.NoError(t, err)
		sb, err := b.Generate()
		require.NoError(t, err)
		require.Equal(t, sa, sb)
		u, err := uuid.Parse(sa)
		require.NoError(t, err)
		require.Equal(t, uuid.Version(4), u.Version())
	}

	exhausted := NewUUIDGeneratorFromReader(bytes.NewReader(nil))
	_, err := exhausted.Generate()
	require.Error(t, err)
}

func TestRemapSelfReference(t *testing.T) {
	tables := tablemeta.MustNewSet(
		tablemeta.Table{
			Name:          "employees",
			PrimaryKey:    []string{"id"},
			Autoincrement: true,
			ForeignKeys: []tablemeta.ForeignKey{
				{Name: "fk_manager", Table: "employees", Column: "manager_id", RefTable: "employees", RefColumn: "id"},
			},
		},
	)
	in := snapshot.Snapshot{
		"employees": {
			{"id": 1, "manager_id": nil},
			{"id": 2, "manager_id": 1},
			{"id": 3, "manager_id": 2},
		},
	}
	expected := []snapshot.Row{
		{"id": "s1", "manager_id": nil},
		{"id": "s2", "manager_id": "s1"},
		{"id": "s3", "manager_id": "s2"},
	}
	for _, scoped := range []bool{false, true} {
		t.Run(fmt.Sprintf("table scoped=%t", scoped), func(t *testing.T) {
			res, err := Remap(
				context.Background(), tables, in,
				WithGenerator(&sequenceGenerator{}),
				WithTableScopedReferences(scoped),
			)
			require.NoError(t, err)
			require.Equal(t, expected, res.Snapshot["employees"])
			require.Equal(t, snapshot.Lookup{
				"employees": {{"s1", 1}, {"s2", 2}, {"s3", 3}},
			}, res.Lookup)
		})
	}
}
