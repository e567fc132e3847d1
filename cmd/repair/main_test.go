package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"agora/internal/cache"
	"agora/internal/cascade"
	"agora/internal/models"
	"agora/internal/relations"
	"agora/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePending(t *testing.T) {
	assert.Nil(t, parsePending(""))
	assert.Nil(t, parsePending(" , "))
	assert.Equal(t, []string{"thread:1", "user:a"}, parsePending("thread:1, ,user:a "))
}

func TestRun_PendingInvalidatesOnlyThoseKeys(t *testing.T) {
	db := testutil.NewTestDB(t)
	store, mr := testutil.NewTestCache(t)
	engine := cascade.NewEngine(db, relations.NewMaintainer(db), store)

	stale := []string{cache.ThreadKey(7), cache.UserThreadsKey("org_1")}
	for _, k := range append(stale, cache.ThreadKey(8)) {
		require.NoError(t, mr.Set(k, "{}"))
	}

	// An orphan the sweep would remove; -pending must leave it alone.
	missing := uint(9999)
	f := testutil.NewFixtures(t, db)
	require.NoError(t, db.Create(&models.Thread{Text: "orphan", AuthorID: f.User("bob").ID, ParentID: &missing}).Error)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), engine, stale, &out))

	var got pendingReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, stale, got.Invalidated)
	assert.Equal(t, []string{cache.ThreadKey(8)}, mr.Keys())
	assert.Equal(t, int64(1), f.Count(&models.Thread{}, ""))
}

func TestRun_PendingReportsCacheFailure(t *testing.T) {
	db := testutil.NewTestDB(t)
	store, mr := testutil.NewTestCache(t)
	engine := cascade.NewEngine(db, relations.NewMaintainer(db), store)
	mr.SetError("LOADING")

	var out bytes.Buffer
	err := run(context.Background(), engine, []string{cache.ThreadKey(7)}, &out)

	var partial *models.PartialCascadeFailure
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{cache.ThreadKey(7)}, partial.Pending)
	assert.Empty(t, out.String())
}

func TestRun_WithoutPendingSweeps(t *testing.T) {
	db := testutil.NewTestDB(t)
	store, _ := testutil.NewTestCache(t)
	engine := cascade.NewEngine(db, relations.NewMaintainer(db), store)

	missing := uint(9999)
	f := testutil.NewFixtures(t, db)
	require.NoError(t, db.Create(&models.Thread{Text: "orphan", AuthorID: f.User("bob").ID, ParentID: &missing}).Error)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), engine, nil, &out))

	var report cascade.SweepReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 1, report.OrphanThreads)
	assert.Equal(t, int64(0), f.Count(&models.Thread{}, ""))
}
