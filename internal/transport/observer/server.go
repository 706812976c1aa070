// Package observer serves world data to websocket clients and pushes
// height and surface change notices to them.
package observer

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"voxelworld.ai/internal/memcache"
	"voxelworld.ai/internal/protocol"
	"voxelworld.ai/internal/sim/world"
	"voxelworld.ai/internal/voxel"
)

type Options struct {
	// RequestsPerSecond and Burst limit each connection. Zero rate means
	// unlimited.
	RequestsPerSecond float64
	Burst             int
	AllowEdits        bool
	// OutQueue bounds the messages waiting to be written per connection.
	OutQueue int
}

type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu    sync.Mutex
	conns map[uint64]*conn

	surfMu   sync.Mutex
	surfaces map[voxel.ChunkPos]struct{}
}

type conn struct {
	id   uint64
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	lim  *rate.Limiter
	once sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

// send queues b, giving up once the connection is gone.
func (c *conn) send(b []byte) {
	select {
	case c.out <- b:
	case <-c.done:
	}
}

// offer queues b unless the connection is backed up.
func (c *conn) offer(b []byte) bool {
	select {
	case c.out <- b:
		return true
	default:
		return false
	}
}

func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.OutQueue <= 0 {
		opts.OutQueue = 256
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Server{
		world: w,
		log:   logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:    make(map[uint64]*conn),
		surfaces: make(map[voxel.ChunkPos]struct{}),
	}
}

func (s *Server) limiter() *rate.Limiter {
	if s.opts.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, s.opts.Burst)
	}
	return rate.NewLimiter(rate.Limit(s.opts.RequestsPerSecond), s.opts.Burst)
}

// Clients is the number of open connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		resp := protocol.BootstrapResponse{
			ProtocolVersion: protocol.Version,
			Seed:            s.world.Seed(),
			ChunkSize:       [3]int{voxel.ChunkSize, voxel.ChunkSize, voxel.ChunkSize},
			Phases:          s.world.Phases(),
			AllowEdits:      s.opts.AllowEdits,
			BlockPalette:    s.world.Materials().Names(),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		c := &conn{
			id:   s.nextID.Add(1),
			ws:   ws,
			out:  make(chan []byte, s.opts.OutQueue),
			done: make(chan struct{}),
			lim:  s.limiter(),
		}
		s.mu.Lock()
		s.conns[c.id] = c
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.conns, c.id)
			s.mu.Unlock()
		}()

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-c.done:
					return
				case b := <-c.out:
					_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
						c.close()
						_ = ws.Close()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := ws.ReadMessage()
			if err != nil {
				break
			}
			s.dispatch(c, msg)
		}
		c.close()

		// Best-effort wait for the writer to stop so it doesn't outlive ws.
		select {
		case <-writerDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) dispatch(c *conn, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.fail(c, 0, protocol.ErrProtoBadRequest, "malformed message")
		return
	}
	if !c.lim.Allow() {
		s.fail(c, base.ID, protocol.ErrRateLimit, "too many requests")
		return
	}
	switch base.Type {
	case protocol.TypeGet:
		var m protocol.GetMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.fail(c, base.ID, protocol.ErrProtoBadRequest, "malformed GET")
			return
		}
		s.get(c, m)
	case protocol.TypeSet:
		var m protocol.SetMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.fail(c, base.ID, protocol.ErrProtoBadRequest, "malformed SET")
			return
		}
		s.set(c, m)
	default:
		s.fail(c, base.ID, protocol.ErrBadRequest, fmt.Sprintf("unknown message type %q", base.Type))
	}
}

func requestKind(kind string) (world.RequestKind, bool) {
	switch kind {
	case protocol.KindChunk:
		return world.RequestChunk, true
	case protocol.KindSurface:
		return world.RequestSurface, true
	case protocol.KindLightmap:
		return world.RequestLightmap, true
	}
	return 0, false
}

func chunkPos(p [3]int) voxel.ChunkPos { return voxel.ChunkPos{X: p[0], Y: p[1], Z: p[2]} }
func posArray(p voxel.ChunkPos) [3]int { return [3]int{p.X, p.Y, p.Z} }

// get hands the request to the world's workers and replies when it is
// served. Without running workers it is served inline; a full queue is
// answered with E_BUSY instead of stalling the connection.
func (s *Server) get(c *conn, m protocol.GetMsg) {
	rk, ok := requestKind(m.Kind)
	if !ok {
		s.fail(c, m.ID, protocol.ErrBadRequest, fmt.Sprintf("unknown kind %q", m.Kind))
		return
	}
	req := world.Request{
		Kind: rk,
		Pos:  chunkPos(m.Pos),
		Done: func(err error) { s.reply(c, m, err) },
	}
	err := s.world.TrySubmit(req)
	switch {
	case errors.Is(err, world.ErrStopped):
		req.Done(s.world.Handle(req))
	case errors.Is(err, world.ErrBusy):
		s.fail(c, m.ID, protocol.ErrBusy, "request queue full")
	case err != nil:
		s.fail(c, m.ID, protocol.ErrInternal, err.Error())
	}
}

func (s *Server) reply(c *conn, m protocol.GetMsg, err error) {
	if err != nil {
		s.log.Printf("observer %d: get %s %v: %v", c.id, m.Kind, m.Pos, err)
		s.fail(c, m.ID, protocol.ErrInternal, err.Error())
		return
	}
	pos := chunkPos(m.Pos)
	var data []byte
	switch m.Kind {
	case protocol.KindChunk:
		data, err = s.world.CompressedChunk(pos)
	case protocol.KindSurface:
		data, err = s.world.CompressedSurface(pos)
	case protocol.KindLightmap:
		data, err = s.world.CompressedLightmap(pos)
	}
	resp := protocol.DataMsg{Type: protocol.TypeData, ID: m.ID, Kind: m.Kind, Pos: m.Pos}
	switch {
	case errors.Is(err, memcache.ErrEmpty):
		resp.Empty = true
	case err != nil:
		s.fail(c, m.ID, protocol.ErrInternal, err.Error())
		return
	default:
		resp.Data = data
	}
	s.write(c, resp)
}

func (s *Server) set(c *conn, m protocol.SetMsg) {
	if !s.opts.AllowEdits {
		s.fail(c, m.ID, protocol.ErrNoPermission, "edits are disabled")
		return
	}
	b, ok := s.world.Materials().Find(m.Block)
	if !ok {
		s.fail(c, m.ID, protocol.ErrUnknownBlock, fmt.Sprintf("unknown block %q", m.Block))
		return
	}
	changed, err := s.world.ChangeBlock(voxel.WorldPos{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]}, b)
	if err != nil {
		s.log.Printf("observer %d: set %v: %v", c.id, m.Pos, err)
		s.fail(c, m.ID, protocol.ErrInternal, err.Error())
		return
	}
	resp := protocol.ChangedMsg{Type: protocol.TypeChanged, ID: m.ID, Chunks: [][3]int{}}
	for _, p := range changed {
		resp.Chunks = append(resp.Chunks, posArray(p))
	}
	s.write(c, resp)
}

func (s *Server) fail(c *conn, id uint64, code, message string) {
	s.write(c, protocol.ErrorMsg{Type: protocol.TypeError, ID: id, Code: code, Message: message})
}

func (s *Server) write(c *conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("observer %d: marshal: %v", c.id, err)
		return
	}
	c.send(b)
}

// NotifySurface records that the surface at pos was rebuilt. Notices are
// batched and pushed by Run. It never blocks and is safe to call from world
// hooks.
func (s *Server) NotifySurface(pos voxel.ChunkPos) {
	s.surfMu.Lock()
	s.surfaces[pos] = struct{}{}
	s.surfMu.Unlock()
}

// Run pushes pending height and surface notices every interval until ctx
// is done.
func (s *Server) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Flush()
		}
	}
}

// Flush pushes pending notices now. Connections whose queue is full miss
// them.
func (s *Server) Flush() {
	var msgs [][]byte
	if h := s.heightMsg(); h != nil {
		msgs = append(msgs, h)
	}
	if m := s.surfaceMsg(); m != nil {
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		for _, b := range msgs {
			if !c.offer(b) {
				s.log.Printf("observer %d: queue full, dropped notice", c.id)
			}
		}
	}
}

func (s *Server) heightMsg() []byte {
	changes := s.world.DrainHeightChanges()
	if len(changes) == 0 {
		return nil
	}
	m := protocol.HeightMsg{Type: protocol.TypeHeight}
	for col, h := range changes {
		m.Columns = append(m.Columns, protocol.ColumnHeight{X: col.X, Y: col.Y, Height: int(h)})
	}
	slices.SortFunc(m.Columns, func(a, b protocol.ColumnHeight) int {
		return cmp.Or(cmp.Compare(a.X, b.X), cmp.Compare(a.Y, b.Y))
	})
	b, _ := json.Marshal(m)
	return b
}

func (s *Server) surfaceMsg() []byte {
	s.surfMu.Lock()
	pending := s.surfaces
	s.surfaces = make(map[voxel.ChunkPos]struct{})
	s.surfMu.Unlock()
	if len(pending) == 0 {
		return nil
	}
	ps := make([]voxel.ChunkPos, 0, len(pending))
	for p := range pending {
		ps = append(ps, p)
	}
	slices.SortFunc(ps, func(a, b voxel.ChunkPos) int {
		return cmp.Or(cmp.Compare(a.X, b.X), cmp.Compare(a.Y, b.Y), cmp.Compare(a.Z, b.Z))
	})
	m := protocol.SurfaceMsg{Type: protocol.TypeSurface}
	for _, p := range ps {
		m.Chunks = append(m.Chunks, posArray(p))
	}
	b, _ := json.Marshal(m)
	return b
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.close()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		_ = c.ws.Close()
	}
}
