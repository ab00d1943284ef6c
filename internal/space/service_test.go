package space

import (
	"context"
	"errors"
	"sort"

	. "gopkg.in/check.v1"
)

// memoryRepository is an in-process Repository for service and handler tests.
type memoryRepository struct {
	spaces  []CoworkingSpace
	listErr error
}

func newMemoryRepository(spaces ...CoworkingSpace) *memoryRepository {
	r := &memoryRepository{}
	_ = r.ReplaceAll(context.Background(), spaces)
	return r
}

func (r *memoryRepository) EnsureSchema(context.Context) error { return nil }

func (r *memoryRepository) GetByID(_ context.Context, id int64) (*CoworkingSpace, error) {
	for _, sp := range r.spaces {
		if sp.ID == id {
			found := sp
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepository) ListAll(context.Context) ([]CoworkingSpace, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]CoworkingSpace(nil), r.spaces...), nil
}

func (r *memoryRepository) ReplaceAll(_ context.Context, spaces []CoworkingSpace) error {
	if err := validateAll(spaces); err != nil {
		return err
	}
	next := make([]CoworkingSpace, len(spaces))
	for i, sp := range spaces {
		sp.ID = int64(i + 1)
		next[i] = sp
	}
	r.spaces = next
	return nil
}

type ServiceSuite struct {
	ctx context.Context
}

var _ = Suite(&ServiceSuite{})

func (s *ServiceSuite) SetUpTest(c *C) {
	s.ctx = context.Background()
}

func names(views []View) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Name
	}
	return out
}

func (s *ServiceSuite) TestListProjectsFields(c *C) {
	svc := NewService(newMemoryRepository(sampleSpace("Acme Hub", 40, -73)))

	views, err := svc.List(s.ctx)
	c.Assert(err, IsNil)
	c.Assert(views, HasLen, 1)
	v := views[0]
	c.Assert(v.ID, Equals, int64(1))
	c.Assert(v.OpeningTime, Equals, "08:00:00")
	c.Assert(v.ClosingTime, Equals, "20:30:00")
	c.Assert(v.Price, Equals, 15.5)
	c.Assert(v.FoodAvailability, Equals, true)
	c.Assert(v.Latitude, Equals, 40.0)
	c.Assert(v.Longitude, Equals, -73.0)
	c.Assert(v.Address, Equals, "Acme Hub Street 1")
	c.Assert(v.Geohash, HasLen, geohashPrecision)
	c.Assert(v.Distance, IsNil)
}

func (s *ServiceSuite) TestEmptyCatalogIsNotAnError(c *C) {
	svc := NewService(newMemoryRepository())

	views, err := svc.List(s.ctx)
	c.Assert(err, IsNil)
	c.Assert(views, HasLen, 0)

	views, err = svc.Search(s.ctx, "anything")
	c.Assert(err, IsNil)
	c.Assert(views, HasLen, 0)

	views, err = svc.NearestTo(s.ctx, 10, 10)
	c.Assert(err, IsNil)
	c.Assert(views, HasLen, 0)
}

func (s *ServiceSuite) TestSearch(c *C) {
	svc := NewService(newMemoryRepository(
		sampleSpace("Acme Hub", 1, 1),
		sampleSpace("WeWork 100%", 2, 2),
		sampleSpace("Straße Büro", 3, 3),
	))

	views, err := svc.Search(s.ctx, "")
	c.Assert(err, IsNil)
	c.Assert(views, HasLen, 3)

	views, err = svc.Search(s.ctx, "zzz_no_such_substring")
	c.Assert(err, IsNil)
	c.Assert(views, HasLen, 0)

	views, err = svc.Search(s.ctx, "acme")
	c.Assert(err, IsNil)
	c.Assert(names(views), DeepEquals, []string{"Acme Hub"})

	views, err = svc.Search(s.ctx, "HUB")
	c.Assert(err, IsNil)
	c.Assert(names(views), DeepEquals, []string{"Acme Hub"})

	// wildcard characters only match themselves
	views, err = svc.Search(s.ctx, "%")
	c.Assert(err, IsNil)
	c.Assert(names(views), DeepEquals, []string{"WeWork 100%"})

	views, err = svc.Search(s.ctx, "büro")
	c.Assert(err, IsNil)
	c.Assert(names(views), DeepEquals, []string{"Straße Büro"})
}

func (s *ServiceSuite) TestNearestToExample(c *C) {
	svc := NewService(newMemoryRepository(
		sampleSpace("Hub B", 40.001, -73.0),
		sampleSpace("Hub A", 40.0, -73.0),
	))

	views, err := svc.NearestTo(s.ctx, 40.0, -73.0)
	c.Assert(err, IsNil)
	c.Assert(names(views), DeepEquals, []string{"Hub A", "Hub B"})
	c.Assert(*views[0].Distance, Equals, 0.0)
	c.Assert(*views[1].Distance > 0.10 && *views[1].Distance < 0.12, Equals, true,
		Commentf("distance %f", *views[1].Distance))
}

func (s *ServiceSuite) TestNearestToIsSortedAndStable(c *C) {
	svc := NewService(newMemoryRepository(
		sampleSpace("Sydney", -33.8688, 151.2093),
		sampleSpace("London", 51.5074, -0.1278),
		sampleSpace("Twin 1", 48.8566, 2.3522),
		sampleSpace("Paris", 48.8566, 2.3522),
		sampleSpace("Tokyo", 35.6762, 139.6503),
		sampleSpace("Twin 2", 48.8566, 2.3522),
	))

	views, err := svc.NearestTo(s.ctx, 48.85, 2.35)
	c.Assert(err, IsNil)
	c.Assert(views, HasLen, 6)
	c.Assert(sort.SliceIsSorted(views, func(i, j int) bool { return *views[i].Distance < *views[j].Distance }), Equals, true)
	// equal distances keep the store's enumeration order
	c.Assert(names(views)[:3], DeepEquals, []string{"Twin 1", "Paris", "Twin 2"})
	c.Assert(names(views)[3:], DeepEquals, []string{"London", "Tokyo", "Sydney"})
}

func (s *ServiceSuite) TestNearestToSelfIsZero(c *C) {
	repo := newMemoryRepository(
		sampleSpace("North", 10, 10),
		sampleSpace("South", -10, -10),
	)
	svc := NewService(repo)

	for _, sp := range repo.spaces {
		views, err := svc.NearestTo(s.ctx, sp.Latitude, sp.Longitude)
		c.Assert(err, IsNil)
		c.Assert(views[0].ID, Equals, sp.ID)
		c.Assert(*views[0].Distance, Equals, 0.0)
	}
}

func (s *ServiceSuite) TestNearestToRanksOutOfRangeVenuesLast(c *C) {
	svc := NewService(newMemoryRepository(
		sampleSpace("Broken", 123, 10),
		sampleSpace("Fine", 0, 0),
	))

	views, err := svc.NearestTo(s.ctx, 0, 1)
	c.Assert(err, IsNil)
	c.Assert(names(views), DeepEquals, []string{"Fine", "Broken"})
	c.Assert(views[0].Distance, NotNil)
	c.Assert(views[1].Distance, IsNil)
	c.Assert(views[1].Geohash, Equals, "")
}

func (s *ServiceSuite) TestNearestToRejectsInvalidUserPoint(c *C) {
	svc := NewService(newMemoryRepository(sampleSpace("Fine", 0, 0)))

	_, err := svc.NearestTo(s.ctx, 95, 0)
	var inputErr *InputError
	c.Assert(errors.As(err, &inputErr), Equals, true)
}

func (s *ServiceSuite) TestStorageErrorsPropagate(c *C) {
	repo := newMemoryRepository()
	repo.listErr = &StorageError{Op: "list", Err: errors.New("connection reset")}
	svc := NewService(repo)

	_, err := svc.List(s.ctx)
	var sErr *StorageError
	c.Assert(errors.As(err, &sErr), Equals, true)
	_, err = svc.NearestTo(s.ctx, 0, 0)
	c.Assert(errors.As(err, &sErr), Equals, true)
}

func (s *ServiceSuite) TestGetByID(c *C) {
	svc := NewService(newMemoryRepository(sampleSpace("Hub A", 1, 1)))

	v, err := svc.GetByID(s.ctx, 1)
	c.Assert(err, IsNil)
	c.Assert(v.Name, Equals, "Hub A")

	_, err = svc.GetByID(s.ctx, 999)
	c.Assert(errors.Is(err, ErrNotFound), Equals, true)
}

func (s *ServiceSuite) TestParseCoordinates(c *C) {
	lat, lon, err := ParseCoordinates("40.5", " -73.25 ")
	c.Assert(err, IsNil)
	c.Assert(lat, Equals, 40.5)
	c.Assert(lon, Equals, -73.25)

	for _, tc := range [][2]string{{"", "1"}, {"1", ""}, {"abc", "1"}, {"1", "1,5"}, {"NaN", "1"}, {"1", "Inf"}} {
		_, _, err := ParseCoordinates(tc[0], tc[1])
		var inputErr *InputError
		c.Assert(errors.As(err, &inputErr), Equals, true, Commentf("input %q", tc))
	}
}
