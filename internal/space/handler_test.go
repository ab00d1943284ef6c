package space

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gorilla/mux"
	. "gopkg.in/check.v1"
)

type HandlerSuite struct {
	repo   *memoryRepository
	router *mux.Router
}

var _ = Suite(&HandlerSuite{})

func (s *HandlerSuite) SetUpTest(c *C) {
	s.repo = newMemoryRepository(
		sampleSpace("Hub B", 40.001, -73.0),
		sampleSpace("Hub A", 40.0, -73.0),
	)
	s.router = mux.NewRouter()
	_ = NewHandler(s.router, NewService(s.repo))
}

func (s *HandlerSuite) get(c *C, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeViews(c *C, rec *httptest.ResponseRecorder) []View {
	var views []View
	c.Assert(json.NewDecoder(rec.Body).Decode(&views), IsNil)
	return views
}

func (s *HandlerSuite) TestListSpaces(c *C) {
	rec := s.get(c, "/api/coworking_spaces")
	c.Assert(rec.Code, Equals, http.StatusOK)
	c.Assert(rec.Header().Get("Content-Type"), Equals, "application/json")
	c.Assert(decodeViews(c, rec), HasLen, 2)
}

func (s *HandlerSuite) TestEmptyCatalogEncodesEmptyArray(c *C) {
	s.repo.spaces = nil
	rec := s.get(c, "/api/coworking_spaces")
	c.Assert(rec.Code, Equals, http.StatusOK)
	c.Assert(rec.Body.String(), Equals, "[]\n")
}

func (s *HandlerSuite) TestGetSpace(c *C) {
	rec := s.get(c, "/api/coworking_spaces/2")
	c.Assert(rec.Code, Equals, http.StatusOK)
	var view View
	c.Assert(json.NewDecoder(rec.Body).Decode(&view), IsNil)
	c.Assert(view.Name, Equals, "Hub A")

	rec = s.get(c, "/api/coworking_spaces/999")
	c.Assert(rec.Code, Equals, http.StatusNotFound)

	rec = s.get(c, "/api/coworking_spaces/99999999999999999999")
	c.Assert(rec.Code, Equals, http.StatusBadRequest)
}

func (s *HandlerSuite) TestSearchSpaces(c *C) {
	c.Assert(decodeViews(c, s.get(c, "/api/search")), HasLen, 2)
	c.Assert(decodeViews(c, s.get(c, "/api/search?query=hub+a")), HasLen, 1)
	c.Assert(decodeViews(c, s.get(c, "/api/search?query=zzz_no_such_substring")), HasLen, 0)
}

func (s *HandlerSuite) TestNearestSpaces(c *C) {
	rec := s.get(c, "/api/nearest_spaces?latitude=40.0&longitude=-73.0")
	c.Assert(rec.Code, Equals, http.StatusOK)
	views := decodeViews(c, rec)
	c.Assert(names(views), DeepEquals, []string{"Hub A", "Hub B"})
	c.Assert(*views[0].Distance, Equals, 0.0)
}

func (s *HandlerSuite) TestNearestSpacesRejectsBadInput(c *C) {
	for _, target := range []string{
		"/api/nearest_spaces",
		"/api/nearest_spaces?latitude=40.0",
		"/api/nearest_spaces?latitude=north&longitude=-73.0",
		"/api/nearest_spaces?latitude=91&longitude=0",
	} {
		rec := s.get(c, target)
		c.Assert(rec.Code, Equals, http.StatusBadRequest, Commentf("target %s", target))
	}
}

func (s *HandlerSuite) TestStorageFailureIsInternalError(c *C) {
	s.repo.listErr = &StorageError{Op: "list", Err: errors.New("boom")}
	rec := s.get(c, "/api/coworking_spaces")
	c.Assert(rec.Code, Equals, http.StatusInternalServerError)
	c.Assert(strings.Contains(rec.Body.String(), "boom"), Equals, false)
}
