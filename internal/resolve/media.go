package resolve

import (
	"github.com/mitchellh/mapstructure"

	"github.com/ivlev/compositor/internal/tree"
)

// Component ids of the two atom kinds whose duration comes from the media
// asset itself.
const (
	AudioAtom = "AudioAtom"
	VideoAtom = "VideoAtom"
)

// mediaData is the slice of a node's free-form payload this engine reads.
// Everything else in data stays opaque.
type mediaData struct {
	Src          string   `mapstructure:"src"`
	StartFrom    *float64 `mapstructure:"startFrom"`
	EndAt        *float64 `mapstructure:"endAt"`
	PlaybackRate *float64 `mapstructure:"playbackRate"`
	SrcDuration  *float64 `mapstructure:"srcDuration"`
}

func decodeMedia(n *tree.Node) (mediaData, error) {
	var md mediaData
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return md, err
	}
	if err := dec.Decode(n.Data); err != nil {
		return md, err
	}
	return md, nil
}

func isMediaAtom(n *tree.Node) bool {
	return n.Type == tree.Atom && (n.ComponentID == AudioAtom || n.ComponentID == VideoAtom)
}

// effectiveDuration applies trim points and playback rate to a natural
// media length: (natural - startFrom - (natural - endAt)) / playbackRate.
func effectiveDuration(natural float64, md mediaData) float64 {
	startFrom := 0.0
	if md.StartFrom != nil {
		startFrom = *md.StartFrom
	}
	endAt := natural
	if md.EndAt != nil {
		endAt = *md.EndAt
	}
	rate := 1.0
	if md.PlaybackRate != nil && *md.PlaybackRate != 0 {
		rate = *md.PlaybackRate
	}

	return (natural - startFrom - (natural - endAt)) / rate
}
