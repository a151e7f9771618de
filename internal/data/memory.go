package data

import (
	"context"
	"maps"
	"sort"
	"sync"

	"movieratings/internal/biz"
)

type ratingPair struct {
	userID  int64
	movieID int64
}

// MemoryStore keeps movies, users and ratings in process memory. It
// implements every repository plus Transaction: a unit of work holds the
// writer lock for its whole duration and is rolled back from a snapshot when
// it fails.
type MemoryStore struct {
	tx sync.Mutex // serializes units of work

	mu          sync.RWMutex
	movies      map[int64]*biz.Movie
	titles      map[string]int64
	users       map[string]*biz.User
	ratings     map[ratingPair]float64
	nextMovieID int64
	nextUserID  int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		movies:      map[int64]*biz.Movie{},
		titles:      map[string]int64{},
		users:       map[string]*biz.User{},
		ratings:     map[ratingPair]float64{},
		nextMovieID: 1,
		nextUserID:  1,
	}
}

var (
	_ biz.MovieRepo   = (*MemoryStore)(nil)
	_ biz.UserRepo    = (*MemoryStore)(nil)
	_ biz.RatingRepo  = (*MemoryStore)(nil)
	_ biz.Transaction = (*MemoryStore)(nil)
)

type memorySnapshot struct {
	movies      map[int64]*biz.Movie
	titles      map[string]int64
	users       map[string]*biz.User
	ratings     map[ratingPair]float64
	nextMovieID int64
	nextUserID  int64
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.tx.Lock()
	defer s.tx.Unlock()

	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *MemoryStore) snapshot() memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	movies := make(map[int64]*biz.Movie, len(s.movies))
	for id, m := range s.movies {
		c := *m
		movies[id] = &c
	}
	return memorySnapshot{
		movies:      movies,
		titles:      maps.Clone(s.titles),
		users:       maps.Clone(s.users),
		ratings:     maps.Clone(s.ratings),
		nextMovieID: s.nextMovieID,
		nextUserID:  s.nextUserID,
	}
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movies = snap.movies
	s.titles = snap.titles
	s.users = snap.users
	s.ratings = snap.ratings
	s.nextMovieID = snap.nextMovieID
	s.nextUserID = snap.nextUserID
}

func (s *MemoryStore) ListMovies(_ context.Context, limit int) ([]*biz.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.movies))
	for id := range s.movies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*biz.Movie, 0, len(ids))
	for _, id := range ids {
		c := *s.movies[id]
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStore) GetMovie(_ context.Context, id int64) (*biz.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.movies[id]
	if !ok {
		return nil, biz.ErrMovieNotFound
	}
	c := *m
	return &c, nil
}

func (s *MemoryStore) GetMovieByTitle(_ context.Context, title string) (*biz.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.titles[title]
	if !ok {
		return nil, biz.ErrMovieNotFound
	}
	c := *s.movies[id]
	return &c, nil
}

func (s *MemoryStore) AddMovie(_ context.Context, title string, rating float64) (*biz.Movie, biz.AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.titles[title]; ok {
		c := *s.movies[id]
		return &c, biz.AlreadyExists, nil
	}
	m := &biz.Movie{ID: s.nextMovieID, Title: title, Rating: rating}
	s.nextMovieID++
	s.movies[m.ID] = m
	s.titles[title] = m.ID
	c := *m
	return &c, biz.Created, nil
}

func (s *MemoryStore) UpdateMovieRating(_ context.Context, id int64, rating float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movies[id]
	if !ok {
		return biz.ErrMovieNotFound
	}
	m.Rating = rating
	return nil
}

func (s *MemoryStore) DeleteMovie(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movies[id]
	if !ok {
		return biz.ErrMovieNotFound
	}
	delete(s.titles, m.Title)
	delete(s.movies, id)
	for k := range s.ratings {
		if k.movieID == id {
			delete(s.ratings, k)
		}
	}
	return nil
}

func (s *MemoryStore) GetOrCreateUser(_ context.Context, clientIP string) (*biz.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[clientIP]
	if !ok {
		u = &biz.User{ID: s.nextUserID, ClientIP: clientIP}
		s.nextUserID++
		s.users[clientIP] = u
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ip, u := range s.users {
		if u.ID == id {
			delete(s.users, ip)
		}
	}
	for k := range s.ratings {
		if k.userID == id {
			delete(s.ratings, k)
		}
	}
	return nil
}

func (s *MemoryStore) GetUserRating(_ context.Context, userID, movieID int64) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.ratings[ratingPair{userID: userID, movieID: movieID}]
	return v, ok, nil
}

func (s *MemoryStore) AddRating(_ context.Context, rating *biz.Rating) (biz.AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movies[rating.MovieID]; !ok {
		return biz.Created, biz.ErrMovieNotFound
	}
	key := ratingPair{userID: rating.UserID, movieID: rating.MovieID}
	if _, ok := s.ratings[key]; ok {
		return biz.AlreadyExists, nil
	}
	s.ratings[key] = rating.Rating
	return biz.Created, nil
}

func (s *MemoryStore) UpsertRating(_ context.Context, rating *biz.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movies[rating.MovieID]; !ok {
		return biz.ErrMovieNotFound
	}
	s.ratings[ratingPair{userID: rating.UserID, movieID: rating.MovieID}] = rating.Rating
	return nil
}

func (s *MemoryStore) GetRatingAggregate(_ context.Context, movieID int64) (*biz.RatingAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum float64
	var count int64
	for k, v := range s.ratings {
		if k.movieID == movieID {
			sum += v
			count++
		}
	}
	agg := &biz.RatingAggregate{Count: count}
	if count > 0 {
		agg.Average = sum / float64(count)
	}
	return agg, nil
}
