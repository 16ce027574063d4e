package sqlite

import (
	"context"

	"github.com/smartgate/server/internal/smartgate/types"
)

const userCols = `user_id, name, email, phone, programme, role, password_hash, created_at_ms, updated_at_ms`

func scanUser(s scanner) (types.User, error) {
	var (
		u                types.User
		created, updated int64
		role             string
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Programme, &role, &u.PasswordHash, &created, &updated); err != nil {
		return types.User{}, err
	}
	u.Role = types.Role(role)
	u.CreatedAt = fromMs(created)
	u.UpdatedAt = fromMs(updated)
	return u, nil
}

type userRepo struct{ t *sqlTx }

func (r userRepo) Get(ctx context.Context, id string) (types.User, error) {
	return queryOne(ctx, r.t, "get user", scanUser,
		`SELECT `+userCols+` FROM users WHERE user_id = ?;`, id)
}

func (r userRepo) FindByLogin(ctx context.Context, identifier string) (types.User, error) {
	return queryOne(ctx, r.t, "find user", scanUser, `
SELECT `+userCols+` FROM users
WHERE user_id = ?1 OR lower(email) = lower(?1) OR lower(name) = lower(?1)
ORDER BY CASE
  WHEN user_id = ?1 THEN 0
  WHEN lower(email) = lower(?1) THEN 1
  ELSE 2
END, created_at_ms
LIMIT 1;`, identifier)
}

func (r userRepo) List(ctx context.Context) ([]types.User, error) {
	return queryList(ctx, r.t, "list users", scanUser,
		`SELECT `+userCols+` FROM users ORDER BY created_at_ms, rowid;`)
}

func (r userRepo) Insert(ctx context.Context, u types.User) error {
	_, err := r.t.exec(ctx, `
INSERT INTO users(`+userCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		u.ID, u.Name, u.Email, u.Phone, u.Programme, string(u.Role), u.PasswordHash, ms(u.CreatedAt), ms(u.UpdatedAt))
	return mapErr("insert user", err)
}

func (r userRepo) Update(ctx context.Context, u types.User) error {
	return mapErr("update user", r.t.execOne(ctx, `
UPDATE users
SET name = ?, email = ?, phone = ?, programme = ?, role = ?, password_hash = ?, updated_at_ms = ?
WHERE user_id = ?;`,
		u.Name, u.Email, u.Phone, u.Programme, string(u.Role), u.PasswordHash, ms(u.UpdatedAt), u.ID))
}

// Delete relies on ON DELETE CASCADE for vehicles and passes.
func (r userRepo) Delete(ctx context.Context, id string) error {
	return mapErr("delete user", r.t.execOne(ctx, `DELETE FROM users WHERE user_id = ?;`, id))
}

const vehicleCols = `vehicle_id, plate_text, user_id, created_at_ms`

func scanVehicle(s scanner) (types.Vehicle, error) {
	var (
		v       types.Vehicle
		created int64
	)
	if err := s.Scan(&v.ID, &v.PlateText, &v.UserID, &created); err != nil {
		return types.Vehicle{}, err
	}
	v.CreatedAt = fromMs(created)
	return v, nil
}

type vehicleRepo struct{ t *sqlTx }

func (r vehicleRepo) Get(ctx context.Context, id string) (types.Vehicle, error) {
	return queryOne(ctx, r.t, "get vehicle", scanVehicle,
		`SELECT `+vehicleCols+` FROM vehicles WHERE vehicle_id = ?;`, id)
}

func (r vehicleRepo) GetByPlate(ctx context.Context, plate string) (types.Vehicle, error) {
	return queryOne(ctx, r.t, "get vehicle by plate", scanVehicle,
		`SELECT `+vehicleCols+` FROM vehicles WHERE plate_text = ?;`, plate)
}

func (r vehicleRepo) ListByUser(ctx context.Context, userID string) ([]types.Vehicle, error) {
	return queryList(ctx, r.t, "list vehicles", scanVehicle,
		`SELECT `+vehicleCols+` FROM vehicles WHERE user_id = ? ORDER BY created_at_ms, rowid;`, userID)
}

func (r vehicleRepo) List(ctx context.Context) ([]types.Vehicle, error) {
	return queryList(ctx, r.t, "list vehicles", scanVehicle,
		`SELECT `+vehicleCols+` FROM vehicles ORDER BY created_at_ms, rowid;`)
}

func (r vehicleRepo) Insert(ctx context.Context, v types.Vehicle) error {
	_, err := r.t.exec(ctx, `INSERT INTO vehicles(`+vehicleCols+`) VALUES (?, ?, ?, ?);`,
		v.ID, v.PlateText, v.UserID, ms(v.CreatedAt))
	return mapErr("insert vehicle", err)
}

func (r vehicleRepo) Update(ctx context.Context, v types.Vehicle) error {
	return mapErr("update vehicle", r.t.execOne(ctx,
		`UPDATE vehicles SET plate_text = ?, user_id = ? WHERE vehicle_id = ?;`,
		v.PlateText, v.UserID, v.ID))
}

func (r vehicleRepo) Delete(ctx context.Context, id string) error {
	return mapErr("delete vehicle", r.t.execOne(ctx, `DELETE FROM vehicles WHERE vehicle_id = ?;`, id))
}
