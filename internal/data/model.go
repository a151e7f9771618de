package data

import (
	"time"

	"movieratings/internal/biz"
)

// Movie represents the movies table
type Movie struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Title     string    `gorm:"uniqueIndex;not null;size:255"`
	Rating    float64   `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the table name
func (Movie) TableName() string {
	return "movies"
}

// User represents the users table
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	ClientIP  string    `gorm:"column:clientip;uniqueIndex;not null;size:64"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}

// Rating represents the ratings table, one row per (user, movie)
type Rating struct {
	UserID    int64     `gorm:"primaryKey;autoIncrement:false"`
	MovieID   int64     `gorm:"primaryKey;autoIncrement:false;index:idx_ratings_movie_id"`
	Rating    float64   `gorm:"not null;check:chk_ratings_range,rating >= 1 AND rating <= 5"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	// Foreign keys
	User  User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Movie Movie `gorm:"foreignKey:MovieID;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name
func (Rating) TableName() string {
	return "ratings"
}

func movieToBiz(m *Movie) *biz.Movie {
	return &biz.Movie{ID: m.ID, Title: m.Title, Rating: m.Rating}
}

func userToBiz(u *User) *biz.User {
	return &biz.User{ID: u.ID, ClientIP: u.ClientIP}
}
