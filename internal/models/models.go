// package models defines the data model for the playlist generation service
package models

// LikedSong is an immutable snapshot of a track saved in the user's library.
type LikedSong struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	ID     string `json:"id"`
}

// Song is a playlist entry suggested by the completion API.
//
// Suggested songs are not guaranteed to exist on the platform; resolution
// happens later via search.
type Song struct {
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Country string `json:"country,omitempty"`
}

// SuggestedPlaylist is a playlist proposal produced by the completion API.
type SuggestedPlaylist struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Songs       []Song `json:"songs"`
}

// CreatedPlaylist describes a playlist that was created on the platform.
type CreatedPlaylist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TrackCount int    `json:"track_count"`
	EmbedHTML  string `json:"embed_html"`
}
