package models

import "time"

// ArtistSubscription is a unique (user, artist) pair.
type ArtistSubscription struct {
	UserID    string    `json:"user_id"`
	ArtistID  string    `json:"artist_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GenreSubscription is a unique (user, genre) pair.
type GenreSubscription struct {
	UserID    string    `json:"user_id"`
	Genre     string    `json:"genre"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscriptions groups every subscription held by one user.
type Subscriptions struct {
	Artists []ArtistSubscription `json:"artists"`
	Genres  []GenreSubscription  `json:"genres"`
}
