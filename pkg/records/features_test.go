package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/doodlesbykumbi/phivault/pkg/config"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
	"github.com/doodlesbykumbi/phivault/pkg/records"
	"github.com/doodlesbykumbi/phivault/pkg/records/recordstest"
)

func memoryContract(_ context.Context, now func() time.Time) (*records.Contract, error) {
	l := ledger.New(ledger.NewMemory(),
		ledger.WithDurable(records.DurableTypes()...),
		ledger.WithClock(now),
	)
	return records.New(l, []byte("0123456789abcdef0123456789abcdef"), config.Default())
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			recordstest.NewSteps(memoryContract).Register(sc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("Non-zero status returned, failed to run feature tests")
	}
}
