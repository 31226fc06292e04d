package gormledger

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

type Suite struct {
	suite.Suite
	DB      *gorm.DB
	mock    sqlmock.Sqlmock
	backend *Backend
}

func (s *Suite) SetupTest() {
	var (
		db  *sql.DB
		err error
	)

	db, s.mock, err = sqlmock.New()
	require.NoError(s.T(), err)

	s.DB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(s.T(), err)
	s.backend = New(s.DB)
}

func (s *Suite) TearDownTest() {
	require.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func TestBackend(t *testing.T) {
	suite.Run(t, new(Suite))
}

func (s *Suite) TestGet() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "world_state" WHERE key = $1`)).
		WithArgs("record\x1fR1\x1f").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "tx_id", "updated_at"}).
			AddRow("record\x1fR1\x1f", []byte(`{"a":1}`), "tx-1", time.Now()))

	kv, err := s.backend.Get(context.Background(), "record\x1fR1\x1f")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []byte(`{"a":1}`), kv.Value)
	assert.Equal(s.T(), "tx-1", kv.Version)
}

func (s *Suite) TestGetMissing() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "world_state" WHERE key = $1`)).
		WithArgs("record\x1fnope\x1f").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "tx_id", "updated_at"}))

	kv, err := s.backend.Get(context.Background(), "record\x1fnope\x1f")
	require.NoError(s.T(), err)
	assert.Nil(s.T(), kv.Value)
	assert.Empty(s.T(), kv.Version)
}

func (s *Suite) TestRangeEscapesPrefix() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "world_state" WHERE key LIKE $1 ESCAPE`)).
		WithArgs(`owner\_key` + "\x1fU1\x1f%").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "tx_id", "updated_at"}).
			AddRow("owner_key\x1fU1\x1fK2\x1f", []byte("K2"), "tx-2", time.Now()).
			AddRow("owner_key\x1fU1\x1fK1\x1f", []byte("K1"), "tx-1", time.Now()))

	kvs, err := s.backend.Range(context.Background(), "owner_key\x1fU1\x1f")
	require.NoError(s.T(), err)
	require.Len(s.T(), kvs, 2)
	assert.Equal(s.T(), []byte("K1"), kvs[0].Value)
	assert.Equal(s.T(), []byte("K2"), kvs[1].Value)
	assert.Equal(s.T(), "tx-1", kvs[0].Version)
}

func (s *Suite) expectCommitLock() {
	s.mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock($1)`)).
		WithArgs(commitLock).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func (s *Suite) TestCommit() {
	s.mock.ExpectBegin()
	s.expectCommitLock()
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT "key","tx_id" FROM "world_state" WHERE key IN ($1)`)).
		WithArgs("audit~head\x1fchain\x1f").
		WillReturnRows(sqlmock.NewRows([]string{"key", "tx_id"}).AddRow("audit~head\x1fchain\x1f", "tx-0"))
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "world_state"`)).
		WithArgs("record\x1fR1\x1f", []byte("v1"), "tx-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ledger_events"`)).
		WithArgs(sqlmock.AnyArg(), "tx-1", "MedicalDataStored", []byte(`{"recordId":"R1"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	err := s.backend.Commit(context.Background(), ledger.Changeset{
		TxID:   "tx-1",
		Reads:  map[string]string{"audit~head\x1fchain\x1f": "tx-0"},
		Writes: []ledger.KV{{Key: "record\x1fR1\x1f", Value: []byte("v1")}},
		Events: []ledger.Event{{Name: "MedicalDataStored", Payload: []byte(`{"recordId":"R1"}`), TxID: "tx-1", Timestamp: time.Now()}},
	})
	require.NoError(s.T(), err)
}

func (s *Suite) TestCommitRejectsStaleRead() {
	s.mock.ExpectBegin()
	s.expectCommitLock()
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT "key","tx_id" FROM "world_state" WHERE key IN ($1)`)).
		WithArgs("audit~head\x1fchain\x1f").
		WillReturnRows(sqlmock.NewRows([]string{"key", "tx_id"}).AddRow("audit~head\x1fchain\x1f", "tx-other"))
	s.mock.ExpectRollback()

	err := s.backend.Commit(context.Background(), ledger.Changeset{
		TxID:   "tx-1",
		Reads:  map[string]string{"audit~head\x1fchain\x1f": "tx-0"},
		Writes: []ledger.KV{{Key: "audit\x1f00000000000000000001\x1f", Value: []byte("entry")}},
	})
	assert.ErrorIs(s.T(), err, ledger.ErrConflict)
}

func (s *Suite) TestCommitRejectsPhantomInRange() {
	s.mock.ExpectBegin()
	s.expectCommitLock()
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT "key","tx_id" FROM "world_state" WHERE key LIKE $1 ESCAPE`)).
		WithArgs("consent~patient\x1fP1\x1f%").
		WillReturnRows(sqlmock.NewRows([]string{"key", "tx_id"}).AddRow("consent~patient\x1fP1\x1fC9\x1f", "tx-other"))
	s.mock.ExpectRollback()

	err := s.backend.Commit(context.Background(), ledger.Changeset{
		TxID:   "tx-1",
		Ranges: map[string]map[string]string{"consent~patient\x1fP1\x1f": {}},
		Writes: []ledger.KV{{Key: "k\x1f", Value: []byte("v")}},
	})
	assert.ErrorIs(s.T(), err, ledger.ErrConflict)
}

func (s *Suite) TestCommitRollsBackOnError() {
	s.mock.ExpectBegin()
	s.expectCommitLock()
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "world_state"`)).
		WillReturnError(sql.ErrConnDone)
	s.mock.ExpectRollback()

	err := s.backend.Commit(context.Background(), ledger.Changeset{
		TxID:   "tx-1",
		Writes: []ledger.KV{{Key: "k\x1f", Value: []byte("v")}},
	})
	assert.Error(s.T(), err)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
}

func TestCheckConnectivity(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, New(gdb).CheckConnectivity(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.ErrorIs(t, New(gdb).CheckConnectivity(context.Background()), sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func (s *Suite) TestEventsPagesAfterCursor() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "ledger_events" WHERE id > $1 ORDER BY id LIMIT 2`)).
		WithArgs("01A").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tx_id", "name", "payload", "created_at"}).
			AddRow("01B", "tx-2", "KeyRotated", []byte(`{"keyId":"K1"}`), time.Now()))

	rows, err := s.backend.Events(context.Background(), "01A", 2)
	require.NoError(s.T(), err)
	require.Len(s.T(), rows, 1)
	assert.Equal(s.T(), "KeyRotated", rows[0].Name)
}
