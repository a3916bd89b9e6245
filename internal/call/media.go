package call

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// LocalMedia supplies this participant's outgoing tracks. Device
// acquisition is an external collaborator: when it fails, the join is
// aborted before any peer connection exists.
type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	Close() error
}

// StaticMedia is a LocalMedia over pre-built tracks. With no tracks the
// participant is receive-only.
type StaticMedia struct {
	tracks []webrtc.TrackLocal
}

func NewStaticMedia(tracks ...webrtc.TrackLocal) *StaticMedia {
	return &StaticMedia{tracks: tracks}
}

func (m *StaticMedia) Tracks() []webrtc.TrackLocal {
	return m.tracks
}

func (m *StaticMedia) Close() error {
	return nil
}

// RemoteStream accumulates the tracks of one remote participant into a
// single logical handle. Tracks arrive one at a time; partial arrival is
// normal.
type RemoteStream struct {
	mu     sync.RWMutex
	tracks map[string]*webrtc.TrackRemote // keyed by kind (audio/video)
}

func newRemoteStream() *RemoteStream {
	return &RemoteStream{tracks: make(map[string]*webrtc.TrackRemote)}
}

func (s *RemoteStream) add(track *webrtc.TrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[track.Kind().String()] = track
}

// Track returns the remote track of the given kind ("audio"/"video"),
// or nil if it has not arrived yet.
func (s *RemoteStream) Track(kind string) *webrtc.TrackRemote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracks[kind]
}

// Tracks returns all tracks received so far.
func (s *RemoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*webrtc.TrackRemote, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *RemoteStream) HasAudio() bool { return s.Track("audio") != nil }
func (s *RemoteStream) HasVideo() bool { return s.Track("video") != nil }
