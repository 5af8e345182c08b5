/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package dao

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type testOrder struct {
	bun.BaseModel `bun:"table:orders"`

	ID     int64  `bun:"id,pk,autoincrement"`
	Region string `bun:"region"`
	Code   string `bun:"code"`

	Lines []*testOrderLine `bun:"-" dao:"joinedBy:region=region,code=order_code"`
}

type testOrderLine struct {
	bun.BaseModel `bun:"table:order_lines"`

	ID        int64  `bun:"id,pk,autoincrement"`
	Region    string `bun:"region"`
	OrderCode string `bun:"order_code"`
	Qty       int    `bun:"qty"`
}

type testComment struct {
	bun.BaseModel `bun:"table:comments"`

	ID     int64         `bun:"id,pk,autoincrement"`
	UserID sql.NullInt64 `bun:"user_id"`
	Body   string        `bun:"body"`

	Author *testUser `bun:"-" dao:"joinedBy:user_id=id"`
}

type badJoin struct {
	bun.BaseModel `bun:"table:bad_joins"`

	ID    int64          `bun:"id,pk"`
	Posts []*testPost    `bun:"-" dao:"joinedBy:missing=user_id"`
	Other []*testProfile `bun:"-"`
}

// seedGraph stores users with profiles, posts and roles. User i has i-1 posts,
// a profile when i is odd and the roles whose id divides i.
func seedGraph(t *testing.T, db *bun.DB, n int) []*testUser {
	t.Helper()
	ctx := context.Background()
	users := seedUsers(t, NewDao[testUser](db), n)

	roles := []*testRole{{Name: "r1"}, {Name: "r2"}, {Name: "r3"}}
	_, err := db.NewInsert().Model(&roles).Exec(ctx)
	require.NoError(t, err)

	for i, u := range users {
		idx := i + 1
		if idx%2 == 1 {
			_, err := db.NewInsert().Model(&testProfile{UserID: u.ID, Bio: fmt.Sprintf("bio-%d", idx)}).Exec(ctx)
			require.NoError(t, err)
		}
		for p := 1; p < idx; p++ {
			_, err := db.NewInsert().Model(&testPost{UserID: u.ID, Title: fmt.Sprintf("%s-post-%d", u.Name, p)}).Exec(ctx)
			require.NoError(t, err)
		}
		for _, r := range roles {
			if int64(idx)%r.ID == 0 {
				_, err := db.NewInsert().Model(&testUserRole{UserID: u.ID, RoleID: r.ID}).Exec(ctx)
				require.NoError(t, err)
			}
		}
	}
	return users
}

func TestLoadJoinEntitiesForAll(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := New[testUser, int64](db)
	s := seedGraph(t, db, 6)

	require.NoError(t, users.LoadJoinEntitiesForAll(ctx, s, "Posts"))
	for i, u := range s {
		require.NotNil(t, u.Posts, u.Name)
		assert.Len(t, u.Posts, i)
	}
	assert.Equal(t, "user-03-post-1", s[2].Posts[0].Title)

	require.NoError(t, users.LoadJoinEntitiesForAll(ctx, s, "Profile"))
	assert.NotNil(t, s[0].Profile)
	assert.Equal(t, "bio-1", s[0].Profile.Bio)
	assert.Nil(t, s[1].Profile)

	require.NoError(t, users.LoadJoinEntitiesForAll(ctx, s, "Roles"))
	names := func(rs []testRole) []string {
		out := make([]string, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.Name)
		}
		return out
	}
	assert.Equal(t, []string{"r1"}, names(s[0].Roles))
	assert.Equal(t, []string{"r1", "r2", "r3"}, names(s[5].Roles))
	assert.Equal(t, []string{"r1", "r2"}, names(s[3].Roles))
}

func TestLoadJoinEntitiesSelectProps(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := New[testUser, int64](db)
	s := seedGraph(t, db, 3)

	require.NoError(t, users.LoadJoinEntities(ctx, s[2], "Posts", "id"))
	require.Len(t, s[2].Posts, 2)
	assert.Empty(t, s[2].Posts[0].Title)
	assert.Equal(t, s[2].ID, s[2].Posts[0].UserID)
}

func TestLoadJoinEntitiesIfNull(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := New[testUser, int64](db)
	s := seedGraph(t, db, 3)

	sentinel := []*testPost{{Title: "kept"}}
	s[2].Posts = sentinel
	require.NoError(t, users.LoadJoinEntitiesIfNull(ctx, s[2], "Posts"))
	assert.Equal(t, "kept", s[2].Posts[0].Title)

	require.NoError(t, users.LoadJoinEntitiesIfNull(ctx, s[1], "Posts"))
	assert.Len(t, s[1].Posts, 1)
}

func TestJoinUnknownProperty(t *testing.T) {
	users := New[testUser, int64](newTestDB(t))
	err := users.LoadJoinEntities(context.Background(), &testUser{ID: 1}, "Nope")
	var jpe *JoinPropertyError
	require.ErrorAs(t, err, &jpe)
	assert.Equal(t, "Nope", jpe.Prop)

	assert.ElementsMatch(t, []string{"Profile", "Posts", "Roles"}, users.JoinProps())
}

func TestJoinBadTag(t *testing.T) {
	d := New[badJoin, int64](newTestDB(t))
	err := d.LoadAllJoinEntities(context.Background(), []*badJoin{{ID: 1}}, false)
	var jpe *JoinPropertyError
	require.ErrorAs(t, err, &jpe)
	assert.Equal(t, "Posts", jpe.Prop)
}

func TestJoinResultsIndependentOfBatchSizeAndParallelism(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedGraph(t, db, 9)

	load := func(batchSize int, parallel bool) []*testUser {
		users := New[testUser, int64](db, WithBatchSize(batchSize), WithJoinParallelism(2))
		list, err := users.List(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, users.LoadAllJoinEntities(ctx, list, parallel))
		return list
	}

	want := load(100, false)
	for _, bs := range []int{1, 2, 4} {
		for _, parallel := range []bool{false, true} {
			got := load(bs, parallel)
			assert.Equal(t, want, got, "batch size %d parallel %v", bs, parallel)
		}
	}
}

func TestCompositeKeyJoin(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orders := New[testOrder, int64](db, WithBatchSize(2))

	list := []*testOrder{{Region: "eu", Code: "A"}, {Region: "us", Code: "A"}, {Region: "eu", Code: "B"}}
	require.NoError(t, orders.BatchInsert(ctx, list))
	lines := []*testOrderLine{
		{Region: "eu", OrderCode: "A", Qty: 1},
		{Region: "eu", OrderCode: "A", Qty: 2},
		{Region: "us", OrderCode: "A", Qty: 3},
	}
	_, err := db.NewInsert().Model(&lines).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, orders.LoadJoinEntitiesForAll(ctx, list, "Lines"))
	assert.Len(t, list[0].Lines, 2)
	assert.Len(t, list[1].Lines, 1)
	assert.Equal(t, 3, list[1].Lines[0].Qty)
	assert.NotNil(t, list[2].Lines)
	assert.Empty(t, list[2].Lines)
}

func TestJoinInsideTransaction(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := seedGraph(t, db, 4)
	users := New[testUser, int64](db)

	err := users.RunInTx(ctx, nil, func(ctx context.Context, tx CrudDao[testUser, int64]) error {
		return tx.LoadAllJoinEntities(ctx, s, true)
	})
	require.NoError(t, err)
	assert.Len(t, s[3].Posts, 3)
	assert.Len(t, s[3].Roles, 2)
}

func TestDeleteJoinEntities(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := New[testUser, int64](db)
	s := seedGraph(t, db, 4)

	n, err := users.DeleteJoinEntities(ctx, s[2:], "Posts")
	require.NoError(t, err)
	assert.EqualValues(t, 2+3, n)

	cnt, err := db.NewSelect().Model((*testPost)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	n, err = users.DeleteJoinEntities(ctx, s, "Roles")
	require.NoError(t, err)
	assert.EqualValues(t, 1+2+2+2, n)
	roles, err := db.NewSelect().Model((*testRole)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, roles, "junction deletes keep the joined rows")

	n, err = users.DeleteAllJoinEntities(ctx, s)
	require.NoError(t, err)
	assert.EqualValues(t, 2+1, n)
}

func TestJoinOnNullableKey(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := seedUsers(t, NewDao[testUser](db), 3)
	comments := New[testComment, int64](db)

	list := []*testComment{
		{UserID: sql.NullInt64{Int64: s[1].ID, Valid: true}, Body: "first"},
		{Body: "anonymous"},
		{UserID: sql.NullInt64{Int64: s[2].ID, Valid: true}, Body: "second"},
	}
	require.NoError(t, comments.BatchInsert(ctx, list))

	require.NoError(t, comments.LoadJoinEntitiesForAll(ctx, list, "Author"))
	require.NotNil(t, list[0].Author)
	assert.Equal(t, "user-02", list[0].Author.Name)
	assert.Nil(t, list[1].Author)
	require.NotNil(t, list[2].Author)
	assert.Equal(t, "user-03", list[2].Author.Name)
}

func TestKeyPartUnwrapsValuers(t *testing.T) {
	assert.Equal(t, int64(5), keyPart(sql.NullInt64{Int64: 5, Valid: true}))
	assert.Nil(t, keyPart(sql.NullInt64{Int64: 5}))
	assert.Equal(t, "x", keyPart(&sql.NullString{String: "x", Valid: true}))
	assert.Equal(t, int64(7), keyPart(sql.Null[int32]{V: 7, Valid: true}))
	assert.Nil(t, keyPart((*sql.NullInt64)(nil)))

	a, _ := compositeKey([]any{keyPart(sql.NullInt64{Int64: 5, Valid: true})})
	b, _ := compositeKey([]any{keyPart(int64(5))})
	assert.Equal(t, b, a)
}
