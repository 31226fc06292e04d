package gormledger

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/doodlesbykumbi/phivault/pkg/ledger"
	"github.com/doodlesbykumbi/phivault/pkg/model"
)

func TestBackendAgainstPostgres(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("Skipping integration tests. Set INTEGRATION_TEST=1 to run.")
	}

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("phivault_test"),
		tcpostgres.WithUsername("phivault"),
		tcpostgres.WithPassword("phivault"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	connStr := fmt.Sprintf("postgres://phivault:phivault@%s:%s/phivault_test?sslmode=disable", host, port.Port())

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  connStr,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.StateEntry{}, &model.LedgerEvent{}))

	l := ledger.New(New(db), ledger.WithDurable("audit"))

	key := func(objectType string, attrs ...string) string {
		k, err := ledger.CreateCompositeKey(objectType, attrs)
		require.NoError(t, err)
		return k
	}

	require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
		require.NoError(t, st.PutState(key("owner~record", "P_1", "R1"), []byte("R1")))
		require.NoError(t, st.PutState(key("owner~record", "P_1", "R2"), []byte("R2")))
		require.NoError(t, st.PutState(key("owner~record", "P%2", "R3"), []byte("R3")))
		return st.SetEvent("MedicalDataStored", []byte(`{"recordId":"R1"}`))
	}))

	// overwrite goes through the upsert path
	require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
		return st.PutState(key("owner~record", "P_1", "R2"), []byte("R2b"))
	}))

	require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
		kvs, err := st.GetStateByPartialCompositeKey("owner~record", []string{"P_1"})
		require.NoError(t, err)
		require.Len(t, kvs, 2)
		assert.Equal(t, []byte("R1"), kvs[0].Value)
		assert.Equal(t, []byte("R2b"), kvs[1].Value)
		return nil
	}))

	// a second process over the same database commits between our read and our write
	other := ledger.New(New(db), ledger.WithDurable("audit"))
	head := key("audit~head", "chain")
	bump := func(st ledger.State) error {
		var n int
		if _, err := ledger.GetJSON(st, head, &n); err != nil {
			return err
		}
		return ledger.PutJSON(st, head, n+1)
	}
	first := true
	require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
		if err := bump(st); err != nil {
			return err
		}
		if first {
			first = false
			require.NoError(t, other.Invoke(ctx, bump))
		}
		return nil
	}))
	require.NoError(t, l.Invoke(ctx, func(st ledger.State) error {
		var n int
		_, err := ledger.GetJSON(st, head, &n)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		return nil
	}))

	events, err := New(db).Events(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "MedicalDataStored", events[0].Name)
}
