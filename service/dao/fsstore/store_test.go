package fsstore_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"

	"github.com/mossdao/gavel/service/dao"
	"github.com/mossdao/gavel/service/dao/criteria"
	"github.com/mossdao/gavel/service/dao/fsstore"
)

type memo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

var nextBase = 0

func newMemoStore() *fsstore.Store[memo] {
	nextBase++
	basePath := fmt.Sprintf("mem://localhost/fsstore/%v", nextBase)
	return fsstore.New[memo](afs.New(), basePath,
		func(m *memo) string { return m.ID },
		fsstore.WithMatcher[memo](func(m *memo, parameters []*dao.Parameter) bool {
			return criteria.MatchStatus(m.Status, parameters)
		}))
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	memos := newMemoStore()

	assert.ErrorIs(t, memos.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, memos.Save(ctx, &memo{}), dao.ErrInvalidID)

	assert.NoError(t, memos.Save(ctx, &memo{ID: "RC-20260310-001", Status: "pending"}))

	loaded, err := memos.Load(ctx, "RC-20260310-001")
	assert.NoError(t, err)
	assert.Equal(t, "pending", loaded.Status)

	missing, err := memos.Load(ctx, "RC-20260310-009")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	assert.NoError(t, memos.Delete(ctx, "RC-20260310-001"))
	loaded, err = memos.Load(ctx, "RC-20260310-001")
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	memos := newMemoStore()

	// Listing an empty base path is not an error.
	listed, err := memos.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, listed)

	assert.NoError(t, memos.Save(ctx, &memo{ID: "RC-20260310-001", Status: "pending"}))
	assert.NoError(t, memos.Save(ctx, &memo{ID: "RC-20260310-002", Status: "resolved"}))
	assert.NoError(t, memos.Save(ctx, &memo{ID: "RC-20260311-001", Status: "pending"}))

	listed, err = memos.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, listed, 3)

	listed, err = memos.List(ctx, dao.NewParameter("Status", "pending"))
	assert.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestStore_Mutate(t *testing.T) {
	ctx := context.Background()
	memos := newMemoStore()
	assert.NoError(t, memos.Save(ctx, &memo{ID: "RC-20260310-001", Status: "pending"}))

	updated, err := memos.Mutate(ctx, "RC-20260310-001", func(m *memo) error {
		m.Status = "resolved"
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "resolved", updated.Status)

	reloaded, err := memos.Load(ctx, "RC-20260310-001")
	assert.NoError(t, err)
	assert.Equal(t, "resolved", reloaded.Status)

	_, err = memos.Mutate(ctx, "RC-20260310-404", func(m *memo) error { return nil })
	assert.ErrorIs(t, err, dao.ErrNotFound)
}
