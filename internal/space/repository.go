package space

import "context"

// Repository is the catalog store. ReplaceAll is all-or-nothing: on any error the
// previous catalog stays intact and concurrent readers never observe a partial set.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*CoworkingSpace, error)
	ListAll(ctx context.Context) ([]CoworkingSpace, error)
	ReplaceAll(ctx context.Context, spaces []CoworkingSpace) error
	EnsureSchema(ctx context.Context) error
}

const tableName = "coworking_spaces"

const selectColumns = `id, name, opening_time, closing_time, price, food_availability, latitude, longitude, address`

var insertColumns = []string{
	"name", "opening_time", "closing_time", "price", "food_availability", "latitude", "longitude", "address",
}
