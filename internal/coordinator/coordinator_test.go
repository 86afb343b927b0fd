package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"convene/internal/database"
	"convene/internal/isochrone"
	"convene/internal/models"
	"convene/internal/places"
	"convene/internal/reachability"
	"convene/internal/repository"
	"convene/internal/ws"
)

type noopFetcher struct{}

func (noopFetcher) FetchAll(ctx context.Context, bubbles []models.LocationBubble) []isochrone.MemberIsochrone {
	return nil
}

type fixture struct {
	db            *gorm.DB
	users         *repository.UserRepository
	rooms         *repository.RoomRepository
	notifications *repository.NotificationRepository
	locations     *repository.LocationRepository
	intersections *repository.IntersectionRepository
	joinRequests  *repository.JoinRequestRepository
	placeRepo     *repository.PlaceRepository
	hub           *ws.RoomHub
	coord         *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	f := &fixture{
		db:            db,
		users:         repository.NewUserRepository(db),
		rooms:         repository.NewRoomRepository(db),
		notifications: repository.NewNotificationRepository(db),
		locations:     repository.NewLocationRepository(db),
		intersections: repository.NewIntersectionRepository(db),
		joinRequests:  repository.NewJoinRequestRepository(db),
		placeRepo:     repository.NewPlaceRepository(db),
		hub:           ws.NewRoomHub(),
	}
	messages := repository.NewMessageRepository(db)
	recomputer := reachability.NewRecomputer(
		f.rooms, f.locations, f.intersections, noopFetcher{}, f.hub, zap.NewNop())
	f.coord = NewCoordinator(
		f.users, f.rooms, messages, f.notifications,
		f.locations, f.intersections, f.joinRequests, f.placeRepo,
		nil, recomputer, nil, f.hub, zap.NewNop(),
	)
	return f
}

// session creates a user, optionally a room membership, and a live
// socket attached to the room group.
func (f *fixture) session(t *testing.T, uid, roomID string, member bool) *Session {
	t.Helper()
	user, err := f.users.UpsertByUID(uid, "", "", uid+"@example.com", "")
	require.NoError(t, err)
	room, err := f.rooms.GetOrCreate(roomID)
	require.NoError(t, err)
	if member {
		_, err := f.rooms.AddMember(roomID, user.ID)
		require.NoError(t, err)
	}
	client := ws.NewClient(user.ID, roomID)
	f.hub.Join(roomID, client)
	return &Session{User: user, Room: room, Client: client}
}

func frames(c *ws.Client) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case data := <-c.Send:
			var m map[string]interface{}
			if json.Unmarshal(data, &m) == nil {
				out = append(out, m)
			}
		default:
			return out
		}
	}
}

func hasFlag(fs []map[string]interface{}, key string) bool {
	for _, f := range fs {
		if f[key] == true {
			return true
		}
	}
	return false
}

func send(f *fixture, s *Session, payload string) {
	f.coord.HandleFrame(context.Background(), s, []byte(payload))
	f.coord.wait()
}

func TestLockedOutCommandQueuesJoinRequest(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "owner", "r1", true)
	require.NoError(t, f.rooms.UpdatePrivacy("r1", true))
	outsider := f.session(t, "outsider", "r1", false)

	send(f, outsider, `{"command":"fetch_messages"}`)
	got := frames(outsider.Client)
	assert.True(t, hasFlag(got, "not_allowed"))
	assert.True(t, hasFlag(got, "refresh_join_requests"))
	assert.True(t, hasFlag(frames(owner.Client), "refresh_notifications"))

	var count int64
	require.NoError(t, f.db.Model(&models.JoinRequest{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// a second locked-out command still answers but keeps the single
	// pending request
	send(f, outsider, `{"command":"fetch_members"}`)
	assert.True(t, hasFlag(frames(outsider.Client), "not_allowed"))
	require.NoError(t, f.db.Model(&models.JoinRequest{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAllowedStatusQueuesJoinRequestOnce(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "owner", "r1", true)
	require.NoError(t, f.rooms.UpdatePrivacy("r1", true))
	outsider := f.session(t, "outsider", "r1", false)

	send(f, outsider, `{"command":"fetch_allowed_status"}`)
	got := frames(outsider.Client)
	assert.True(t, hasFlag(got, "not_allowed"))
	assert.True(t, hasFlag(got, "refresh_join_requests"))

	ownerFrames := frames(owner.Client)
	assert.True(t, hasFlag(ownerFrames, "refresh_notifications"))
	assert.True(t, hasFlag(ownerFrames, "refresh_join_requests"))

	var count int64
	require.NoError(t, f.db.Model(&models.JoinRequest{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// asking again keeps the single pending request and no new pings
	send(f, outsider, `{"command":"fetch_allowed_status"}`)
	assert.True(t, hasFlag(frames(outsider.Client), "not_allowed"))
	assert.False(t, hasFlag(frames(owner.Client), "refresh_notifications"))
	require.NoError(t, f.db.Model(&models.JoinRequest{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAllowedStatusForMember(t *testing.T) {
	f := newFixture(t)
	member := f.session(t, "m", "r1", true)
	require.NoError(t, f.rooms.UpdatePrivacy("r1", true))

	send(f, member, `{"command":"fetch_allowed_status"}`)
	assert.True(t, hasFlag(frames(member.Client), "allowed"))
}

func TestJoinRoomAddsMemberAndDefaultsName(t *testing.T) {
	f := newFixture(t)
	joiner := f.session(t, "new", "r1", false)

	send(f, joiner, `{"command":"join_room"}`)
	got := frames(joiner.Client)
	assert.True(t, hasFlag(got, "allowed"))
	assert.True(t, hasFlag(got, "refresh_members"))

	member, err := f.rooms.IsMember("r1", joiner.User.ID)
	require.NoError(t, err)
	assert.True(t, member)

	stored, err := f.users.GetByUID("new")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", stored.DisplayName)

	var count int64
	require.NoError(t, f.db.Model(&models.Notification{}).
		Where("user_joined_id = ?", joiner.User.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSecondJoinerInvalidatesSoloArea(t *testing.T) {
	f := newFixture(t)
	first := f.session(t, "a", "r1", true)
	require.NoError(t, f.intersections.Upsert(&models.Intersection{
		RoomID: "r1", Type: "Polygon", Coordinates: "[]",
	}))
	second := f.session(t, "b", "r1", false)

	send(f, second, `{"command":"join_room"}`)
	assert.True(t, hasFlag(frames(first.Client), "refresh_area"))

	var count int64
	require.NoError(t, f.db.Model(&models.Intersection{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestChatMessageReachesRoomAndNotifiesOtherRooms(t *testing.T) {
	f := newFixture(t)
	sender := f.session(t, "a", "r1", true)
	listener := f.session(t, "b", "r1", true)
	// the listener also sits in another room
	_, err := f.rooms.GetOrCreate("r2")
	require.NoError(t, err)
	_, err = f.rooms.AddMember("r2", listener.User.ID)
	require.NoError(t, err)
	elsewhere := ws.NewClient(listener.User.ID, "r2")
	f.hub.Join("r2", elsewhere)

	send(f, sender, `{"user":"ada","message":"lunch at noon?"}`)

	got := frames(listener.Client)
	var chatLine string
	for _, fr := range got {
		if s, ok := fr["message"].(string); ok {
			chatLine = s
		}
	}
	assert.Equal(t, "ada: lunch at noon?", chatLine)
	assert.True(t, hasFlag(frames(elsewhere), "refresh_notifications"))

	var count int64
	require.NoError(t, f.db.Model(&models.Notification{}).
		Where("message_id IS NOT NULL").Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestFetchMessagesReplaysOldestFirst(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, "a", "r1", true)
	for i, content := range []string{"first", "second"} {
		m := &models.Message{RoomID: "r1", UserID: s.User.ID, Content: content}
		require.NoError(t, f.db.Create(m).Error)
		require.NoError(t, f.db.Model(m).
			Update("created_at", time.Now().UTC().Add(time.Duration(i)*time.Minute)).Error)
	}
	send(f, s, `{"command":"fetch_messages"}`)
	got := frames(s.Client)
	require.Len(t, got, 2)
	assert.Contains(t, got[0]["fetching_message"], "first")
	assert.Contains(t, got[1]["fetching_message"], "second")
}

func TestFetchUserNotificationsHighlightsAndMarksRead(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, "a", "r1", true)
	other := f.session(t, "b", "r1", true)

	msg := &models.Message{RoomID: "r1", UserID: other.User.ID, Content: "hey"}
	require.NoError(t, f.db.Create(msg).Error)
	require.NoError(t, f.notifications.Create(&models.Notification{
		UserID: s.User.ID, RoomID: "r1", MessageID: &msg.ID,
	}))
	require.NoError(t, f.notifications.Create(&models.Notification{
		UserID: s.User.ID, RoomID: "r1", VotedPlaceID: &other.User.ID,
	}))
	// highlights consider only what predates the last login
	s.User.LastLoggedIn = time.Now().UTC().Add(time.Minute)

	send(f, s, `{"command":"fetch_user_notifications"}`)
	got := frames(s.Client)
	assert.True(t, hasFlag(got, "highlight_chat"))
	assert.True(t, hasFlag(got, "highlight_vote"))
	assert.False(t, hasFlag(got, "highlight_area"))

	var digest []interface{}
	for _, fr := range got {
		if d, ok := fr["notifications"].([]interface{}); ok {
			digest = d
		}
	}
	require.Len(t, digest, 1)
	entry := digest[0].(map[string]interface{})
	assert.Equal(t, "r1", entry["room"])
	assert.Equal(t, true, entry["current_room"])

	// second fetch: everything read, no highlights
	send(f, s, `{"command":"fetch_user_notifications"}`)
	again := frames(s.Client)
	assert.False(t, hasFlag(again, "highlight_chat"))
	assert.False(t, hasFlag(again, "highlight_vote"))
}

func TestExitRoomClearsMemberState(t *testing.T) {
	f := newFixture(t)
	leaver := f.session(t, "a", "r1", true)
	stayer := f.session(t, "b", "r1", true)

	_, err := f.locations.UpsertBubble(&models.LocationBubble{
		UserID: leaver.User.ID, RoomID: "r1", Latitude: 1, Longitude: 1,
		Transportation: "walk", Region: "asia", Minutes: 30,
	})
	require.NoError(t, err)
	require.NoError(t, f.notifications.Create(&models.Notification{
		UserID: leaver.User.ID, RoomID: "r1", UserJoinedID: &stayer.User.ID,
	}))

	send(f, leaver, `{"command":"exit_room","room_id":"r1"}`)

	member, err := f.rooms.IsMember("r1", leaver.User.ID)
	require.NoError(t, err)
	assert.False(t, member)

	var bubbles int64
	require.NoError(t, f.db.Model(&models.LocationBubble{}).
		Where("user_id = ?", leaver.User.ID).Count(&bubbles).Error)
	assert.Zero(t, bubbles)

	var leftNotifs int64
	require.NoError(t, f.db.Model(&models.Notification{}).
		Where("user_left_id = ? AND user_id = ?", leaver.User.ID, stayer.User.ID).
		Count(&leftNotifs).Error)
	assert.EqualValues(t, 1, leftNotifs)

	var leaverNotifs int64
	require.NoError(t, f.db.Model(&models.Notification{}).
		Where("user_id = ? AND room_id = ?", leaver.User.ID, "r1").Count(&leaverNotifs).Error)
	assert.Zero(t, leaverNotifs)

	got := frames(stayer.Client)
	assert.True(t, hasFlag(got, "refresh_members"))
	assert.True(t, hasFlag(got, "refresh_allowed_status"))
}

func TestApproveUserAdmitsAndClearsRequest(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "owner", "r1", true)
	require.NoError(t, f.rooms.UpdatePrivacy("r1", true))
	outsider := f.session(t, "outsider", "r1", false)
	send(f, outsider, `{"command":"fetch_allowed_status"}`)
	frames(outsider.Client)
	frames(owner.Client)

	send(f, owner, `{"command":"approve_user","uid":"outsider"}`)

	member, err := f.rooms.IsMember("r1", outsider.User.ID)
	require.NoError(t, err)
	assert.True(t, member)

	var pending int64
	require.NoError(t, f.db.Model(&models.JoinRequest{}).Count(&pending).Error)
	assert.Zero(t, pending)

	got := frames(owner.Client)
	for _, key := range []string{"refresh_join_requests", "refresh_members", "refresh_allowed_status"} {
		assert.True(t, hasFlag(got, key), key)
	}
}

func TestVotePlaceCreatesNotificationsAndRefreshes(t *testing.T) {
	f := newFixture(t)
	voter := f.session(t, "a", "r1", true)
	other := f.session(t, "b", "r1", true)

	_, err := f.placeRepo.Upsert("r1", 10, 20, "place-a", true)
	require.NoError(t, err)

	send(f, voter, `{"command":"vote_place","place_id":"place-a"}`)

	got := frames(other.Client)
	assert.True(t, hasFlag(got, "refresh_places"))
	assert.True(t, hasFlag(got, "refresh_notifications"))

	var votes int64
	require.NoError(t, f.db.Model(&models.Vote{}).Count(&votes).Error)
	assert.EqualValues(t, 1, votes)
}

func TestFetchPlacesMergesViewerVote(t *testing.T) {
	f := newFixture(t)
	viewer := f.session(t, "a", "r1", true)
	other := f.session(t, "b", "r1", true)

	place, err := f.placeRepo.Upsert("r1", 10, 20, "place-a", true)
	require.NoError(t, err)
	require.NoError(t, f.placeRepo.UpsertVote("r1", viewer.User.ID, place.ID))
	require.NoError(t, f.placeRepo.UpsertVote("r1", other.User.ID, place.ID))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"place_id":"place-a","name":"Cafe","geometry":{"location":{"lat":10,"lng":20}}}}`)
	}))
	t.Cleanup(srv.Close)
	f.coord.placeAPI = places.NewClient(srv.URL, "k", 5*time.Second, zap.NewNop())

	send(f, viewer, `{"command":"fetch_places"}`)
	got := frames(viewer.Client)
	var list []interface{}
	for _, fr := range got {
		if p, ok := fr["places"].([]interface{}); ok {
			list = p
		}
	}
	require.Len(t, list, 1)
	entry := list[0].(map[string]interface{})
	assert.Equal(t, "Cafe", entry["name"])
	assert.EqualValues(t, 2, entry["total_votes"])
	assert.Equal(t, true, entry["user_voted_for"])
}

func TestMergeDuplicateTopVotes(t *testing.T) {
	rows := []repository.RankedPlace{
		{PlaceID: "a", TotalVotes: 1, UserVotedFor: true},
		{PlaceID: "b", TotalVotes: 3},
		{PlaceID: "a", TotalVotes: 2},
	}
	got := mergeDuplicateTopVotes(rows)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].PlaceID)
	assert.Equal(t, 3, got[0].TotalVotes)
	assert.Equal(t, "b", got[1].PlaceID)
}

func TestMergeDuplicateTopVotesNoViewerVote(t *testing.T) {
	rows := []repository.RankedPlace{
		{PlaceID: "a", TotalVotes: 2},
		{PlaceID: "a", TotalVotes: 1},
	}
	got := mergeDuplicateTopVotes(rows)
	assert.Len(t, got, 2)
}

func TestUpdateLocationBubbleRegionNotFound(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, "a", "r1", true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "upstream unavailable")
	}))
	t.Cleanup(srv.Close)
	client := isochrone.NewClient(srv.URL, "k", 5*time.Second, zap.NewNop())
	f.coord.resolver = isochrone.NewRegionResolver(client, time.Minute, zap.NewNop())

	send(f, s, `{"command":"update_location_bubble","address":"x","latitude":1,"longitude":1,"transportation":"walk","hours":0,"minutes":30,"place_id":"p"}`)
	assert.True(t, hasFlag(frames(s.Client), "region_not_found"))

	var bubbles int64
	require.NoError(t, f.db.Model(&models.LocationBubble{}).Count(&bubbles).Error)
	assert.Zero(t, bubbles)
}

func TestUpdateLocationBubbleZeroBudgetRepliesToIssuer(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, "a", "r1", true)
	other := f.session(t, "b", "r1", true)

	// only asia probes resolve, so the region lookup succeeds and the
	// rejection comes from the bubble write itself
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/asia/") {
			fmt.Fprint(w, "upstream unavailable")
			return
		}
		fmt.Fprint(w, `{"data":{"features":[{"geometry":{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,2],[0,0]]]}}]}}`)
	}))
	t.Cleanup(srv.Close)
	client := isochrone.NewClient(srv.URL, "k", 5*time.Second, zap.NewNop())
	f.coord.resolver = isochrone.NewRegionResolver(client, time.Minute, zap.NewNop())

	send(f, s, `{"command":"update_location_bubble","address":"x","latitude":1,"longitude":1,"transportation":"walk","hours":0,"minutes":0}`)

	var rejection string
	for _, fr := range frames(s.Client) {
		if v, ok := fr["validation_error"].(string); ok {
			rejection = v
		}
	}
	assert.Contains(t, rejection, "budget")
	assert.Empty(t, frames(other.Client))

	var bubbles int64
	require.NoError(t, f.db.Model(&models.LocationBubble{}).Count(&bubbles).Error)
	assert.Zero(t, bubbles)
}

func TestSlowCommandDoesNotStallDispatch(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, "a", "r1", true)

	started := make(chan struct{})
	release := make(chan struct{})
	f.coord.handlers["stall"] = func(ctx context.Context, s *Session, cmd Command) error {
		close(started)
		<-release
		return nil
	}
	defer close(release)

	f.coord.HandleFrame(context.Background(), s, []byte(`{"command":"stall"}`))
	<-started

	// the next command completes while the first is still in flight
	f.coord.HandleFrame(context.Background(), s, []byte(`{"command":"fetch_room_name"}`))
	deadline := time.Now().Add(2 * time.Second)
	var got []map[string]interface{}
	for len(got) == 0 && time.Now().Before(deadline) {
		got = append(got, frames(s.Client)...)
		time.Sleep(5 * time.Millisecond)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, "r1", got[0]["new_room_name"])
}

func TestFetchRoomNameBackfillsDisplayName(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, "a", "r1", true)

	send(f, s, `{"command":"fetch_room_name"}`)
	got := frames(s.Client)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0]["new_room_name"])

	room, err := f.rooms.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", room.DisplayName)
}

func TestUpdatePrivacyNotifiesMembers(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, "a", "r1", true)
	other := f.session(t, "b", "r1", true)

	send(f, s, `{"command":"update_privacy","privacy":true}`)
	got := frames(other.Client)
	assert.True(t, hasFlag(got, "refresh_privacy"))
	assert.True(t, hasFlag(got, "refresh_notifications"))

	var count int64
	require.NoError(t, f.db.Model(&models.Notification{}).
		Where("now_private = ?", true).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	room, err := f.rooms.Get("r1")
	require.NoError(t, err)
	assert.True(t, room.Private)
}
