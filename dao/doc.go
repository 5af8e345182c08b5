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

/*
Package dao provides generic data access objects on top of bun.

A DAO is obtained for a bun model type and, for CrudDao, its primary key
type:

	type User struct {
		bun.BaseModel `bun:"table:users"`
		ID    int64  `bun:"id,pk,autoincrement"`
		Name  string `bun:"name"`
		Posts []*Post `bun:"-" dao:"joinedBy:id=user_id"`
	}

	users, err := dao.New[User, int64](db)
	u, err := users.Get(ctx, 1)
	list, err := users.List(ctx, cond.Where(cond.Like("name", "a%")).OrderBy("id"))
	err = users.LoadJoinEntitiesForAll(ctx, list, "Posts")

Narrow repositories embed the returned interface:

	type UserDao interface {
		dao.CrudDaoL[User]
	}

Operations that take a cond.Condition treat nil as "all rows". Only a
*cond.Criteria contributes ORDER BY, LIMIT and OFFSET.

Errors from bun and the driver are returned as is. NewUnchecked wraps a DAO so
that every error is a *DataAccessError carrying a database.SQLError kind.
*/
package dao
