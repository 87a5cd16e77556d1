package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoUserRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upsert returns stored document", func(mt *mtest.T) {
		created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: "user-1"},
			{Key: "phone", Value: "+919800000000"},
			{Key: "userType", Value: "buyer"},
			{Key: "profileComplete", Value: false},
			{Key: "createdAt", Value: created},
			{Key: "updatedAt", Value: created},
		}}))

		u, err := NewMongoUserRepository(mt.Coll).UpsertByPhone(context.Background(), "+919800000000")
		require.NoError(mt, err)
		require.Equal(mt, "user-1", u.ID)
		require.Equal(mt, "buyer", u.UserType)
		require.True(mt, u.CreatedAt.Equal(created))
	})

	mt.Run("get by id", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "user-2"},
			{Key: "phone", Value: "+15550100"},
			{Key: "userType", Value: "seller"},
			{Key: "profileComplete", Value: true},
		}))

		u, err := NewMongoUserRepository(mt.Coll).GetByID(context.Background(), "user-2")
		require.NoError(mt, err)
		require.NotNil(mt, u)
		require.True(mt, u.ProfileComplete)
	})

	mt.Run("get by id missing", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		u, err := NewMongoUserRepository(mt.Coll).GetByID(context.Background(), "nobody")
		require.NoError(mt, err)
		require.Nil(mt, u)
	})
}
