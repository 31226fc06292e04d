package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/phivault/pkg/model"
)

func TestPrintEvents(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := []model.LedgerEvent{
		{ID: "01A", TxID: "tx-1", Name: "MedicalDataStored", Payload: []byte(`{"recordId":"rec-1"}`), CreatedAt: created},
		{ID: "01B", TxID: "tx-2", Name: "KeyRotated", CreatedAt: created},
	}

	var text bytes.Buffer
	require.NoError(t, printEvents(&text, rows, "text"))
	lines := bytes.Split(bytes.TrimSpace(text.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[1]), "MedicalDataStored")
	assert.Contains(t, string(lines[1]), "2026-03-01T09:00:00Z")

	var out bytes.Buffer
	require.NoError(t, printEvents(&out, rows, "json"))
	var views []eventView
	require.NoError(t, json.Unmarshal(out.Bytes(), &views))
	require.Len(t, views, 2)
	assert.JSONEq(t, `{"recordId":"rec-1"}`, string(views[0].Payload))
	assert.Empty(t, views[1].Payload)
	assert.Equal(t, "tx-2", views[1].TxID)
}
