package hub

import (
	"context"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiveBoard/internal/batch"
	"LiveBoard/internal/export"
	lbnet "LiveBoard/internal/net"
	"LiveBoard/internal/session"
	"LiveBoard/internal/state"
)

func join(t *testing.T, ctx context.Context, url, user string) *session.Session {
	t.Helper()
	s, err := session.New(session.Options{
		RoomID:    "r1",
		UserID:    user,
		Width:     100,
		Height:    80,
		Scheduler: batch.DefaultConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client, err := lbnet.Dial(ctx, url, lbnet.DefaultSettings())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	s.Attach(client)
	go client.Run(ctx)
	return s
}

func strokeCount(s *session.Session, n int) func() bool {
	return func() bool { return len(s.Strokes()) == n }
}

func TestHub_RelayAndSync(t *testing.T) {
	h := New(Options{Width: 100, Height: 80, Transport: lbnet.DefaultSettings()})
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + lbnet.RoomPath("r1")

	alice := join(t, ctx, url, "alice")
	bob := join(t, ctx, url, "bob")

	_, err := alice.BeginStroke(state.ToolBrush, "#FF0000", 4, state.Point{X: 10, Y: 10})
	require.NoError(t, err)
	require.NoError(t, alice.ExtendStroke(state.Point{X: 20, Y: 10}))
	require.NoError(t, alice.ExtendStroke(state.Point{X: 30, Y: 10}))
	_, err = alice.EndStroke()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		strokes := bob.Strokes()
		return len(strokes) == 1 && len(strokes[0].Points) == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, alice.Strokes()[0].Points, bob.Strokes()[0].Points)
	assert.Equal(t, "#FF0000", bob.Strokes()[0].Color)

	room, err := h.Room("r1")
	require.NoError(t, err)
	require.Eventually(t, strokeCount(room, 1), 5*time.Second, 10*time.Millisecond)

	// a late joiner starts from the room's drawing
	carol := join(t, ctx, url, "carol")
	require.Eventually(t, strokeCount(carol, 1), 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, alice.Strokes()[0].Points, carol.Strokes()[0].Points)
	assert.Equal(t, alice.Image(), carol.Image())

	resp, err := http.Get(srv.URL + "/rooms/r1/export")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f, err := export.Parse(body)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Meta.NumStrokes)
	strokes, err := f.Strokes()
	require.NoError(t, err)
	assert.Equal(t, alice.Strokes()[0].Points, strokes[0].Points)

	resp, err = http.Get(srv.URL + "/rooms/r1/snapshot.png?width=50")
	require.NoError(t, err)
	img, err := png.Decode(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())

	bob.ClearLocal()
	require.Eventually(t, strokeCount(alice, 0), 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, strokeCount(carol, 0), 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, strokeCount(room, 0), 5*time.Second, 10*time.Millisecond)
}

func TestHub_UnknownRoom(t *testing.T) {
	h := New(Options{Width: 10, Height: 10})
	defer h.Close()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	for _, path := range []string{"/rooms/nope/export", "/rooms/nope/snapshot.png"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	_, err := h.Room("r")
	require.NoError(t, err)
	resp, err := http.Get(srv.URL + "/rooms/r/snapshot.png?width=-4")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_NoSurface(t *testing.T) {
	h := New(Options{})
	defer h.Close()
	_, err := h.Room("r")
	assert.Error(t, err)
}
