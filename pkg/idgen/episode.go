// Package idgen synthesizes the stable, externally-exposed integer IDs the
// compatibility API hands back to media players.
package idgen

import (
	"errors"
	"fmt"
)

// episodeIDBase is the fixed leading component of every episode ID. Clients
// in the wild rely on the exact shape of this number; it must never change.
const episodeIDBase = 25_000_000_000_000

const (
	maxAnimeID      = 999_999
	maxSourceOrder  = 99
	maxEpisodeIndex = 9999
)

var (
	// ErrAnimeIDOutOfRange is returned when animeID does not fit in 6 digits.
	ErrAnimeIDOutOfRange = errors.New("idgen: anime id out of range")
	// ErrSourceOrderOutOfRange is returned when sourceOrder does not fit in 2 digits.
	ErrSourceOrderOutOfRange = errors.New("idgen: source order out of range")
	// ErrEpisodeIndexOutOfRange is returned when episodeIndex does not fit in 4 digits.
	ErrEpisodeIndexOutOfRange = errors.New("idgen: episode index out of range")
)

// EpisodeID computes the deterministic 14-digit episode identifier:
//
//	25e12 + animeID*1e6 + sourceOrder*1e4 + episodeIndex
//
// animeID must fit in 6 digits, sourceOrder in 2, episodeIndex in 4.
func EpisodeID(animeID, sourceOrder, episodeIndex int64) (int64, error) {
	if animeID < 0 || animeID > maxAnimeID {
		return 0, ErrAnimeIDOutOfRange
	}
	if sourceOrder < 0 || sourceOrder > maxSourceOrder {
		return 0, ErrSourceOrderOutOfRange
	}
	if episodeIndex < 0 || episodeIndex > maxEpisodeIndex {
		return 0, ErrEpisodeIndexOutOfRange
	}

	return episodeIDBase + animeID*1_000_000 + sourceOrder*10_000 + episodeIndex, nil
}

// MustEpisodeID panics on an out-of-range component. Only safe to use where
// the inputs are already known-valid, e.g. when decoding an ID we minted
// ourselves.
func MustEpisodeID(animeID, sourceOrder, episodeIndex int64) int64 {
	id, err := EpisodeID(animeID, sourceOrder, episodeIndex)
	if err != nil {
		panic(fmt.Sprintf("idgen: %v (anime=%d source=%d episode=%d)", err, animeID, sourceOrder, episodeIndex))
	}
	return id
}

// Decode reverses EpisodeID, splitting an episode ID back into its
// constituent fields. It does not validate that id actually came from this
// package's encoding beyond the base offset check.
func Decode(id int64) (animeID, sourceOrder, episodeIndex int64, err error) {
	id -= episodeIDBase
	if id < 0 {
		return 0, 0, 0, errors.New("idgen: id is below the episode-id base")
	}

	episodeIndex = id % 10_000
	id /= 10_000
	sourceOrder = id % 100
	id /= 100
	animeID = id
	return animeID, sourceOrder, episodeIndex, nil
}
