package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// State is a point-in-time view of a Server. A new State is published after
// every iteration of the serve loop.
type State struct {
	Time       time.Time `msgpack:"time"`
	Version    uint8     `msgpack:"version"`
	NextStatus time.Time `msgpack:"next_status"`
	LastStatus uint8     `msgpack:"last_status"`

	Volumes []VolumeState `msgpack:"volumes"`
	Clients []ClientState `msgpack:"clients"`
	Handles []HandleState `msgpack:"handles"`

	// TxLog holds the heads of the most recently sent messages.
	TxLog []string `msgpack:"tx_log"`

	StatusBytesAcked uint32 `msgpack:"status_bytes_acked"`
	StatusAborts     uint32 `msgpack:"status_aborts"`
}

// VolumeState describes a configured volume.
type VolumeState struct {
	Name      string  `msgpack:"name"`
	Path      string  `msgpack:"path"`
	Removable bool    `msgpack:"removable"`
	Writable  bool    `msgpack:"writable"`
	Users     []uint8 `msgpack:"users"`
}

func (s *Server) publishState(now time.Time) {
	st := &State{
		Time:             now,
		Version:          s.o.Version,
		NextStatus:       s.fss.Next(),
		LastStatus:       s.fss.last,
		Clients:          s.clientState(),
		Handles:          s.handles.state(),
		StatusBytesAcked: s.stats.BytesAcked(),
		StatusAborts:     s.stats.Aborts(),
	}
	for _, name := range s.volumes.names() {
		v, _ := s.volumes.lookup(name)
		users := make([]uint8, 0, len(v.users))
		for u := range v.users {
			users = append(users, u)
		}
		sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
		st.Volumes = append(st.Volumes, VolumeState{
			Name:      v.Name,
			Path:      v.Path,
			Removable: v.Removable,
			Writable:  v.Writable,
			Users:     users,
		})
	}
	for _, e := range s.txlog.Entries() {
		st.TxLog = append(st.TxLog, e.String())
	}
	s.state.Store(st)
}

// State returns the most recently published State. It is safe to call from
// any goroutine.
func (s *Server) State() *State {
	return s.state.Load().(*State)
}

// StateHandler serves the current State encoded as msgpack.
func (s *Server) StateHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := msgpack.Marshal(s.State())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/msgpack")
		_, _ = w.Write(b)
	})
}
