package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/DoyleJ11/prize-draw-backend/internal/engine"
	"github.com/DoyleJ11/prize-draw-backend/internal/session"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
		session string
	}{
		{name: "defaults session", raw: `{"v":1,"type":"startDraw"}`, session: DefaultSession},
		{name: "explicit session", raw: `{"v":1,"type":"startDraw","session":" gala "}`, session: "gala"},
		{name: "bad json", raw: `{"v":1,`, wantErr: ErrBadJSON},
		{name: "missing version", raw: `{"type":"startDraw"}`, wantErr: ErrUnsupportedVersion},
		{name: "future version", raw: `{"v":2,"type":"startDraw"}`, wantErr: ErrUnsupportedVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.raw))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.session, m.Session)
		})
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    engine.Command
		invalid bool
		unknown bool
	}{
		{
			name: "join",
			raw:  `{"v":1,"type":"join","data":{"externalId":" u1 ","displayName":"Alice","avatarRef":"a.png"}}`,
			want: engine.Command{Type: engine.CmdJoin, Participant: engine.Participant{ExternalID: "u1", DisplayName: "Alice", AvatarRef: "a.png"}},
		},
		{name: "join without external id", raw: `{"v":1,"type":"join","data":{"displayName":"Alice"}}`, invalid: true},
		{name: "join without data", raw: `{"v":1,"type":"join"}`, invalid: true},
		{name: "start draw", raw: `{"v":1,"type":"startDraw"}`, want: engine.Command{Type: engine.CmdStartDraw}},
		{name: "new round", raw: `{"v":1,"type":"newRound","data":null}`, want: engine.Command{Type: engine.CmdNewRound}},
		{name: "clear history", raw: `{"v":1,"type":"clearHistory"}`, want: engine.Command{Type: engine.CmdClearHistory}},
		{name: "full reset", raw: `{"v":1,"type":"fullReset"}`, want: engine.Command{Type: engine.CmdFullReset}},
		{name: "remove test accounts", raw: `{"v":1,"type":"removeTestAccounts"}`, want: engine.Command{Type: engine.CmdRemoveTestAccounts}},
		{name: "add test accounts", raw: `{"v":1,"type":"addTestAccounts","data":{"count":5}}`, want: engine.Command{Type: engine.CmdAddTestAccounts, Count: 5}},
		{name: "add too many", raw: `{"v":1,"type":"addTestAccounts","data":{"count":51}}`, invalid: true},
		{name: "add zero", raw: `{"v":1,"type":"addTestAccounts","data":{"count":0}}`, invalid: true},
		{
			name: "archive round",
			raw:  `{"v":1,"type":"setRoundArchived","data":{"roundId":"r1","archived":true}}`,
			want: engine.Command{Type: engine.CmdSetRoundArchived, RoundID: "r1", Archived: true},
		},
		{name: "archive without id", raw: `{"v":1,"type":"setRoundArchived","data":{"archived":true}}`, invalid: true},
		{name: "reveal is not a client command", raw: `{"v":1,"type":"reveal"}`, unknown: true},
		{name: "unknown", raw: `{"v":1,"type":"LockPick"}`, unknown: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.raw))
			require.NoError(t, err)

			cmd, err := m.Command()
			switch {
			case tt.invalid:
				var ip *InvalidPayload
				require.True(t, errors.As(err, &ip), "got %v", err)
				require.Equal(t, m.Type, ip.Type)
			case tt.unknown:
				require.ErrorIs(t, err, ErrUnknownType)
			default:
				require.NoError(t, err)
				require.Equal(t, tt.want, cmd)
			}
		})
	}
}

func TestFromOutbound(t *testing.T) {
	req := require.New(t)
	st := engine.NewEmptyState()
	alice := engine.Participant{ExternalID: "u1", TransportID: "sock-1", DisplayName: "Alice"}
	st.Participants = append(st.Participants, alice)
	st.CurrentWinner = &alice
	st.Status = engine.StatusRolling
	st.Generation = 4
	st.LastRoundNumber = 2
	st.PastRounds = append(st.PastRounds, engine.RoundRecord{ID: "r1", RoundNumber: 2, Winners: []engine.Participant{alice}})

	msg := FromOutbound(session.Outbound{
		Kind:      session.KindSnapshot,
		SessionID: "default",
		Version:   3,
		State:     &st,
		Branding:  &session.Branding{Title: "Gala"},
	})
	raw, err := json.Marshal(msg)
	req.NoError(err)

	var got map[string]any
	req.NoError(json.Unmarshal(raw, &got))
	req.EqualValues(1, got["v"])
	req.Equal("stateSnapshot", got["type"])
	req.EqualValues(3, got["version"])
	req.Contains(got, "state")
	req.Equal("Gala", got["event"].(map[string]any)["title"])

	state := got["state"].(map[string]any)
	req.NotContains(state, "generation")
	req.NotContains(state, "lastRoundNumber")
	req.Equal("ROLLING", state["status"])
	req.NotContains(string(raw), "sock-1", "transport ids never reach viewers")
	req.Equal("u1", state["currentWinner"].(map[string]any)["externalId"])
	req.Len(state["pastRounds"], 1)
	req.Len(state["currentRoundWinners"], 0)

	rejected := FromOutbound(session.Outbound{Kind: session.KindRejected, Reason: "nope"})
	req.Equal(TypeError, rejected.Type)
	req.Equal("nope", rejected.Error)

	denied := FromOutbound(session.Outbound{Kind: session.KindDenied, Reason: "unauthorized"})
	req.Equal("denied", denied.Type)
}
