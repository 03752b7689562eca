package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttnetgo/internal/packer"
	"ttnetgo/protocol/dialect"
	"ttnetgo/protocol/gamemsg"
	"ttnetgo/protocol/sysmsg"
	"ttnetgo/protoerr"
	"ttnetgo/snapshot"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	maps := filepath.Join(t.TempDir(), "maps")
	downloading := filepath.Join(t.TempDir(), "downloading")
	require.NoError(t, os.MkdirAll(maps, 0o755))
	require.NoError(t, os.MkdirAll(downloading, 0o755))
	return New(dialect.DDNet, []byte("0.6 +ddnet"), maps, downloading)
}

func sysDecoded(m sysmsg.Message) dialect.Decoded { return dialect.Decoded{SystemMsg: m} }
func gameDecoded(m gamemsg.Message) dialect.Decoded { return dialect.Decoded{GameMsg: m} }

func TestReadyTransitionsToMapChangeAndSendsInfo(t *testing.T) {
	s := newTestSession(t)
	now := time.Now()
	s.Ready(now)

	assert.Equal(t, StateMapChange, s.State())
	out := s.TakeOutbound()
	require.Len(t, out, 1)
}

func TestMapChangeRejectsNameWithPathSeparator(t *testing.T) {
	s := newTestSession(t)
	s.Ready(time.Now())
	s.TakeOutbound()

	var warn protoerr.Warnings
	fatal := s.HandleMessage(time.Now(), sysDecoded(&sysmsg.MapChange{
		Name: []byte("../evil"),
		CRC:  1,
		Size: 10,
	}), &warn)
	assert.True(t, fatal)
}

func TestMapChangeWithMissingMapStartsDownload(t *testing.T) {
	s := newTestSession(t)
	s.Ready(time.Now())
	s.TakeOutbound()

	var warn protoerr.Warnings
	fatal := s.HandleMessage(time.Now(), sysDecoded(&sysmsg.MapChange{
		Name: []byte("dm1"),
		CRC:  0x1234,
		Size: 100,
	}), &warn)
	require.False(t, fatal)

	assert.Equal(t, StateMapData, s.State())
	require.NotNil(t, s.dl)
	assert.Equal(t, int32(0), s.dl.chunk)

	out := s.TakeOutbound()
	require.Len(t, out, 1)
}

func TestMapDataWritesChunksInOrderAndPublishesOnLast(t *testing.T) {
	s := newTestSession(t)
	s.Ready(time.Now())
	s.TakeOutbound()

	var warn protoerr.Warnings
	s.HandleMessage(time.Now(), sysDecoded(&sysmsg.MapChange{
		Name: []byte("dm1"),
		CRC:  0x1234,
		Size: 100,
	}), &warn)
	s.TakeOutbound()

	fatal := s.HandleMessage(time.Now(), sysDecoded(&sysmsg.MapData{
		Last:  false,
		CRC:   0x1234,
		Chunk: 0,
		Data:  []byte("abc"),
	}), &warn)
	require.False(t, fatal)
	assert.Equal(t, StateMapData, s.State())
	assert.Equal(t, int32(1), s.dl.chunk)
	out := s.TakeOutbound()
	require.Len(t, out, 1)

	fatal = s.HandleMessage(time.Now(), sysDecoded(&sysmsg.MapData{
		Last:  true,
		CRC:   0x1234,
		Chunk: 1,
		Data:  []byte("def"),
	}), &warn)
	require.False(t, fatal)
	assert.Equal(t, StateConReady, s.State())
	assert.Nil(t, s.dl)

	entries, err := os.ReadDir(s.mapsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(s.mapsDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestMapDataIgnoresStaleChunkIndex(t *testing.T) {
	s := newTestSession(t)
	s.Ready(time.Now())
	s.TakeOutbound()

	var warn protoerr.Warnings
	s.HandleMessage(time.Now(), sysDecoded(&sysmsg.MapChange{
		Name: []byte("dm1"),
		CRC:  0x1234,
		Size: 100,
	}), &warn)
	s.TakeOutbound()

	// chunk 0 accepted, advancing the expected index to 1.
	s.HandleMessage(time.Now(), sysDecoded(&sysmsg.MapData{
		CRC: 0x1234, Chunk: 0, Data: []byte("abc"),
	}), &warn)
	s.TakeOutbound()

	// a duplicate of chunk 0 arriving late must not be written again.
	progressed, fatal := s.onMapData(&sysmsg.MapData{
		CRC: 0x1234, Chunk: 0, Data: []byte("xyz"),
	})
	assert.False(t, fatal)
	assert.False(t, progressed)
	assert.Equal(t, int32(1), s.dl.chunk)
	assert.Empty(t, s.TakeOutbound())
}

func TestDummyMapDetection(t *testing.T) {
	s := newTestSession(t)
	s.Ready(time.Now())
	s.TakeOutbound()

	var warn protoerr.Warnings
	s.HandleMessage(time.Now(), sysDecoded(&sysmsg.MapChange{
		Name: []byte(dummyMapName),
		CRC:  dummyMapCRC,
		Size: dummyMapSize,
	}), &warn)
	assert.True(t, s.dummyMap)
}

func TestVoteSweepPicksPlainVoteBeforeListVote(t *testing.T) {
	s := newTestSession(t)
	now := time.Now()
	s.listVotes["map:ctf1"] = struct{}{}
	s.currentVotes["kick 3"] = struct{}{}
	s.currentVotes["map:ctf1"] = struct{}{}

	done := s.nextVote(now)
	require.False(t, done)
	require.NotNil(t, s.previousVote)
	assert.Equal(t, "kick 3", *s.previousVote)
	assert.Equal(t, StateVoteSet, s.state)

	out := s.TakeOutbound()
	require.Len(t, out, 1)
}

func TestVoteSweepFallsBackToListVoteWhenNoPlainVoteLeft(t *testing.T) {
	s := newTestSession(t)
	now := time.Now()
	s.listVotes["map:ctf1"] = struct{}{}
	s.currentVotes["map:ctf1"] = struct{}{}
	s.visitedVotes["map:ctf1"] = struct{}{}

	done := s.nextVote(now)
	assert.False(t, done)
	require.NotNil(t, s.previousListVote)
	assert.Equal(t, "map:ctf1", *s.previousListVote)
}

func TestVoteSweepReportsDoneWhenNothingLeft(t *testing.T) {
	s := newTestSession(t)
	done := s.nextVote(time.Now())
	assert.True(t, done)
}

func TestTickProgressWatchdogDisconnectsAfterTimeout(t *testing.T) {
	s := newTestSession(t)
	now := time.Now()
	s.Ready(now)

	assert.False(t, s.Tick(now.Add(progressTimeout-time.Second)))
	assert.True(t, s.Tick(now.Add(progressTimeout+time.Second)))
}

func buildSingleDelta(t *testing.T, typeID uint16, size int, ids ...uint16) []byte {
	t.Helper()
	w := packer.NewWriter()
	snapshot.DeltaHeader{NumDeletedItems: 0, NumUpdatedItems: int32(len(ids))}.Encode(w)
	for _, id := range ids {
		w.WriteInt(int32(typeID))
		w.WriteInt(int32(id))
		for i := 0; i < size; i++ {
			w.WriteInt(0)
		}
	}
	return w.Bytes()
}

func TestSinglePlayerDomainRuleDisconnectsOnSecondPlayer(t *testing.T) {
	s := newTestSession(t)
	s.Ready(time.Now())
	s.TakeOutbound()

	raw := buildSingleDelta(t, playerInfoDDNet, 5, 0, 1)
	var warn protoerr.Warnings
	fatal := s.HandleMessage(time.Now(), sysDecoded(&sysmsg.SnapSingle{
		Tick: 1, DeltaTick: 0, CRC: 0, Data: raw,
	}), &warn)
	assert.True(t, fatal)
}

func TestSinglePlayerAllowsOnePlayer(t *testing.T) {
	s := newTestSession(t)
	s.Ready(time.Now())
	s.TakeOutbound()

	raw := buildSingleDelta(t, playerInfoDDNet, 5, 0)
	var warn protoerr.Warnings
	fatal := s.HandleMessage(time.Now(), sysDecoded(&sysmsg.SnapSingle{
		Tick: 1, DeltaTick: 0, CRC: 0, Data: raw,
	}), &warn)
	assert.False(t, fatal)
}

func TestReadyToEnterSendsEnterGameAndSetTeam(t *testing.T) {
	s := newTestSession(t)
	s.state = StateReadyToEnter

	var warn protoerr.Warnings
	s.HandleMessage(time.Now(), gameDecoded(&gamemsg.SvReadyToEnter{}), &warn)

	out := s.TakeOutbound()
	assert.Len(t, out, 2)
	assert.Equal(t, StateVoteResult, s.state)
}

func TestSnapEmptyMissingBaseTriggersResyncInput(t *testing.T) {
	s := newTestSession(t)
	s.Ready(time.Now())
	s.TakeOutbound()

	var warn protoerr.Warnings
	fatal := s.HandleMessage(time.Now(), sysDecoded(&sysmsg.SnapEmpty{
		Tick: 100, DeltaTick: 50,
	}), &warn)
	require.False(t, fatal)

	assert.Equal(t, uint64(1), s.ResyncCount())
	out := s.TakeOutbound()
	require.Len(t, out, 1)
}
