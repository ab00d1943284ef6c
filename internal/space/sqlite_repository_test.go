package space

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/ssherwood/coworkingservice/internal/shared"
)

// openMemoryDB returns a private in-memory database. A single connection keeps every
// statement on the same shared-cache database.
func openMemoryDB(c *C) *sql.DB {
	db, err := sql.Open("sqlite3", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	c.Assert(err, IsNil)
	db.SetMaxOpenConns(1)
	return db
}

type SQLiteRepositorySuite struct {
	db   *sql.DB
	repo *SQLiteRepository
	ctx  context.Context
}

var _ = Suite(&SQLiteRepositorySuite{})

func (s *SQLiteRepositorySuite) SetUpTest(c *C) {
	s.ctx = context.Background()
	s.db = openMemoryDB(c)
	s.repo = NewSQLiteRepository(s.db)
	c.Assert(s.repo.EnsureSchema(s.ctx), IsNil)
}

func (s *SQLiteRepositorySuite) TearDownTest(c *C) {
	_ = s.db.Close()
}

// withoutIDs strips store-assigned ids and orders by name for set comparison.
func withoutIDs(spaces []CoworkingSpace) []CoworkingSpace {
	out := make([]CoworkingSpace, len(spaces))
	for i, sp := range spaces {
		sp.ID = 0
		out[i] = sp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *SQLiteRepositorySuite) TestEmptyCatalog(c *C) {
	spaces, err := s.repo.ListAll(s.ctx)
	c.Assert(err, IsNil)
	c.Assert(spaces, HasLen, 0)
}

func (s *SQLiteRepositorySuite) TestReplaceAllThenListAll(c *C) {
	input := []CoworkingSpace{
		sampleSpace("Hub A", 40.0, -73.0),
		sampleSpace("Hub B", 40.001, -73.0),
		sampleSpace("Hub C", -33.8688, 151.2093),
	}
	input[1].FoodAvailability = false
	input[2].OpeningTime = TimeOfDay{Hour: 23, Minute: 15, Second: 1}

	c.Assert(s.repo.ReplaceAll(s.ctx, input), IsNil)

	got, err := s.repo.ListAll(s.ctx)
	c.Assert(err, IsNil)
	c.Assert(got, HasLen, len(input))
	c.Assert(withoutIDs(got), DeepEquals, withoutIDs(input))

	seen := map[int64]bool{}
	for _, sp := range got {
		c.Assert(sp.ID > 0, Equals, true)
		c.Assert(seen[sp.ID], Equals, false)
		seen[sp.ID] = true
	}
}

func (s *SQLiteRepositorySuite) TestReplaceAllDiscardsPreviousCatalog(c *C) {
	c.Assert(s.repo.ReplaceAll(s.ctx, []CoworkingSpace{sampleSpace("Old", 1, 1), sampleSpace("Older", 2, 2)}), IsNil)
	c.Assert(s.repo.ReplaceAll(s.ctx, []CoworkingSpace{sampleSpace("New", 3, 3)}), IsNil)

	got, err := s.repo.ListAll(s.ctx)
	c.Assert(err, IsNil)
	c.Assert(got, HasLen, 1)
	c.Assert(got[0].Name, Equals, "New")

	c.Assert(s.repo.ReplaceAll(s.ctx, nil), IsNil)
	got, err = s.repo.ListAll(s.ctx)
	c.Assert(err, IsNil)
	c.Assert(got, HasLen, 0)
}

func (s *SQLiteRepositorySuite) TestInvalidReplaceKeepsPriorCatalog(c *C) {
	prior := []CoworkingSpace{sampleSpace("Keep Me", 1, 1), sampleSpace("Me Too", 2, 2)}
	c.Assert(s.repo.ReplaceAll(s.ctx, prior), IsNil)
	before, err := s.repo.ListAll(s.ctx)
	c.Assert(err, IsNil)

	bad := []CoworkingSpace{sampleSpace("Fine", 3, 3), sampleSpace(strings.Repeat("x", MaxNameLength+1), 4, 4)}
	err = s.repo.ReplaceAll(s.ctx, bad)
	var vErr *ValidationError
	c.Assert(errors.As(err, &vErr), Equals, true)
	c.Assert(vErr.Row, Equals, 2)

	after, err := s.repo.ListAll(s.ctx)
	c.Assert(err, IsNil)
	c.Assert(after, DeepEquals, before)
}

func (s *SQLiteRepositorySuite) TestFailedWriteRollsBack(c *C) {
	prior := []CoworkingSpace{sampleSpace("Keep Me", 1, 1)}
	c.Assert(s.repo.ReplaceAll(s.ctx, prior), IsNil)
	before, err := s.repo.ListAll(s.ctx)
	c.Assert(err, IsNil)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err = s.repo.ReplaceAll(ctx, []CoworkingSpace{sampleSpace("Never", 2, 2)})
	var sErr *StorageError
	c.Assert(errors.As(err, &sErr), Equals, true)

	after, err := s.repo.ListAll(s.ctx)
	c.Assert(err, IsNil)
	c.Assert(after, DeepEquals, before)
}

func (s *SQLiteRepositorySuite) TestGetByID(c *C) {
	c.Assert(s.repo.ReplaceAll(s.ctx, []CoworkingSpace{sampleSpace("Hub A", 40, -73)}), IsNil)
	all, err := s.repo.ListAll(s.ctx)
	c.Assert(err, IsNil)

	got, err := s.repo.GetByID(s.ctx, all[0].ID)
	c.Assert(err, IsNil)
	c.Assert(*got, DeepEquals, all[0])

	_, err = s.repo.GetByID(s.ctx, 999)
	c.Assert(errors.Is(err, ErrNotFound), Equals, true)
}

func (s *SQLiteRepositorySuite) TestIDsAreNotReusedAcrossReplaces(c *C) {
	c.Assert(s.repo.ReplaceAll(s.ctx, []CoworkingSpace{sampleSpace("First", 1, 1)}), IsNil)
	first, err := s.repo.ListAll(s.ctx)
	c.Assert(err, IsNil)

	c.Assert(s.repo.ReplaceAll(s.ctx, []CoworkingSpace{sampleSpace("Second", 1, 1)}), IsNil)
	second, err := s.repo.ListAll(s.ctx)
	c.Assert(err, IsNil)

	c.Assert(second[0].ID > first[0].ID, Equals, true)
	_, err = s.repo.GetByID(s.ctx, first[0].ID)
	c.Assert(errors.Is(err, ErrNotFound), Equals, true)
}

// TestReadersNeverSeePartialReplace runs readers against a WAL file database while
// replaces run back to back. Every read must see one complete batch.
func (s *SQLiteRepositorySuite) TestReadersNeverSeePartialReplace(c *C) {
	const (
		rows     = 300
		replaces = 30
		readers  = 4
	)

	db, err := shared.InitializeSQLite(s.ctx, filepath.Join(c.MkDir(), "catalog.db"))
	c.Assert(err, IsNil)
	defer db.Close()
	repo := NewSQLiteRepository(db)
	c.Assert(repo.EnsureSchema(s.ctx), IsNil)

	batch := func(n int) []CoworkingSpace {
		spaces := make([]CoworkingSpace, rows)
		for i := range spaces {
			spaces[i] = sampleSpace("batch"+strconv.Itoa(n)+"-"+strconv.Itoa(i), 1, 1)
		}
		return spaces
	}
	c.Assert(repo.ReplaceAll(s.ctx, batch(0)), IsNil)

	var (
		done                   atomic.Bool
		reads, partial, failed atomic.Int64
		wg                     sync.WaitGroup
	)
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				got, err := repo.ListAll(s.ctx)
				if err != nil {
					failed.Add(1)
					continue
				}
				reads.Add(1)
				if len(got) != rows {
					partial.Add(1)
					continue
				}
				prefix := strings.SplitN(got[0].Name, "-", 2)[0] + "-"
				for _, sp := range got {
					if !strings.HasPrefix(sp.Name, prefix) {
						partial.Add(1)
						break
					}
				}
			}
		}()
	}

	for n := 1; n <= replaces; n++ {
		c.Check(repo.ReplaceAll(s.ctx, batch(n)), IsNil)
	}
	done.Store(true)
	wg.Wait()

	c.Assert(reads.Load() > 0, Equals, true)
	c.Assert(partial.Load(), Equals, int64(0))
	c.Assert(failed.Load(), Equals, int64(0))

	got, err := repo.ListAll(s.ctx)
	c.Assert(err, IsNil)
	c.Assert(got, HasLen, rows)
	c.Assert(strings.HasPrefix(got[0].Name, "batch"+strconv.Itoa(replaces)+"-"), Equals, true)
}
