// Package types holds the shared overlay data model: upstream comment
// provider shapes, resolution outcomes, and player-facing comment forms.
package types

// Comment is one overlay comment in upstream wire form. P packs the
// comment attributes as "time,mode,color[,user]"; M is the text.
type Comment struct {
	CID int64  `json:"cid"`
	P   string `json:"p"`
	M   string `json:"m"`
}

// PlayerComment is the shape consumed by the web player renderer.
type PlayerComment struct {
	Text  string  `json:"text"`
	Time  float64 `json:"time"`
	Mode  string  `json:"mode"`
	Color string  `json:"color"`
}

// Anime is one show known to the upstream comment service.
type Anime struct {
	AnimeID         int64     `json:"animeId"`
	AnimeTitle      string    `json:"animeTitle"`
	Type            string    `json:"type"`
	TypeDescription string    `json:"typeDescription"`
	EpisodeCount    int       `json:"episodeCount"`
	Episodes        []Episode `json:"episodes,omitempty"`
}

// Episode is one episode of an upstream anime.
type Episode struct {
	EpisodeID    int64  `json:"episodeId"`
	EpisodeTitle string `json:"episodeTitle"`
}

// Match is a filename-based episode match from the upstream service.
type Match struct {
	AnimeID      int64  `json:"animeId"`
	EpisodeID    int64  `json:"episodeId"`
	AnimeTitle   string `json:"animeTitle"`
	EpisodeTitle string `json:"episodeTitle"`
}

// ResolveState names the outcome of an overlay resolution attempt.
type ResolveState string

const (
	// StateLoaded means comments were resolved and returned.
	StateLoaded ResolveState = "loaded"
	// StateAmbiguous means multiple shows matched and the caller must
	// choose one before comments can load.
	StateAmbiguous ResolveState = "ambiguous"
	// StateEmpty means resolution succeeded but produced no comments.
	StateEmpty ResolveState = "empty"
	// StateFailed means every resolution path errored.
	StateFailed ResolveState = "failed"
)

// Provenance records where a loaded comment set came from, so the caller
// can display and later pin the mapping.
type Provenance struct {
	AnimeID       int64  `json:"animeId,omitempty"`
	EpisodeID     int64  `json:"episodeId,omitempty"`
	AnimeTitle    string `json:"animeTitle,omitempty"`
	EpisodeTitle  string `json:"episodeTitle,omitempty"`
	SearchKeyword string `json:"searchKeyword,omitempty"`
	CommentCount  int    `json:"commentCount"`
}

// Resolution is the outcome of one overlay resolve call.
type Resolution struct {
	State      ResolveState `json:"state"`
	Comments   []Comment    `json:"comments,omitempty"`
	Provenance *Provenance  `json:"provenance,omitempty"`
	// Choices is populated when State is StateAmbiguous.
	Choices []Anime `json:"choices,omitempty"`
	// OriginalCount is the pre-filter comment count when filtering
	// reduced the set, and zero when nothing was removed.
	OriginalCount int `json:"originalCount,omitempty"`
	// FromCache reports whether the comments were served from the
	// durable cache without touching the upstream service.
	FromCache bool `json:"fromCache,omitempty"`
}
