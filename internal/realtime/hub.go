package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/fieldrally/scoreline/internal/scoreline"
)

// Channel is a broadcast sub-channel within an organization group.
type Channel string

const (
	ChannelGeneral     Channel = "general"
	ChannelLeaderboard Channel = "leaderboard"
	ChannelWarRoom     Channel = "warroom"
)

func ParseChannel(raw string) (Channel, bool) {
	switch Channel(raw) {
	case ChannelGeneral, ChannelLeaderboard, ChannelWarRoom:
		return Channel(raw), true
	default:
		return "", false
	}
}

// RankingSource supplies the current top rankings for broadcast and for the
// initial sync sent to a freshly joined leaderboard subscriber.
type RankingSource interface {
	GetTopRankings(ctx context.Context, orgID string, count int) []scoreline.RankedEntry
}

type HubOptions struct {
	// TopN is how many leaderboard entries each push carries. Defaults to 10.
	TopN int
	// SendBuffer is the per-connection outbound queue. When it is full the
	// message is dropped for that connection rather than blocking the
	// publisher. Defaults to 16.
	SendBuffer int
	// ReadTimeout closes a connection that produces no protocol traffic
	// within the window. Defaults to 60s.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single frame write to one connection. Defaults
	// to 5s.
	WriteTimeout time.Duration
}

// Hub groups live connections by (channel, organization) and fans ranking
// updates out to them. Fan-out is non-blocking per connection: each
// connection drains its own buffered queue from a dedicated writer goroutine,
// so one slow socket never delays the rest or the event-ingestion caller.
// Connections joined to one organization's group never see another
// organization's traffic; the grouping itself enforces isolation.
type Hub struct {
	rankings     RankingSource
	topN         int
	sendBuffer   int
	readTimeout  time.Duration
	writeTimeout time.Duration
	now          func() time.Time

	mu     sync.RWMutex
	groups map[Channel]map[string]map[*subscriber]struct{}
}

type subscriber struct {
	connID  string
	orgID   string
	channel Channel
	send    chan []byte
}

func NewHub(rankings RankingSource) *Hub {
	return NewHubWithOptions(rankings, HubOptions{})
}

func NewHubWithOptions(rankings RankingSource, opts HubOptions) *Hub {
	topN := opts.TopN
	if topN <= 0 {
		topN = 10
	}
	sendBuffer := opts.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		rankings:     rankings,
		topN:         topN,
		sendBuffer:   sendBuffer,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		now:          time.Now,
		groups:       map[Channel]map[string]map[*subscriber]struct{}{},
	}
}

type serverMessage struct {
	Type          string `json:"type"`
	Channel       string `json:"channel,omitempty"`
	OrgID         string `json:"orgId,omitempty"`
	ParticipantID string `json:"repId,omitempty"`
	Delta         int64  `json:"delta,omitempty"`
	ServerTime    string `json:"serverTime,omitempty"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
}

// rankingsMessage always carries the rankings field, even when empty, so a
// freshly joined client with no scored reps sees an empty list rather than a
// missing one.
type rankingsMessage struct {
	Type     string                  `json:"type"`
	Channel  string                  `json:"channel"`
	OrgID    string                  `json:"orgId"`
	Rankings []scoreline.RankedEntry `json:"rankings"`
}

func (h *Hub) rankingsPayload(ctx context.Context, orgID string) ([]byte, error) {
	rankings := h.rankings.GetTopRankings(ctx, orgID, h.topN)
	if rankings == nil {
		rankings = []scoreline.RankedEntry{}
	}
	return json.Marshal(rankingsMessage{
		Type:     "rankings",
		Channel:  string(ChannelLeaderboard),
		OrgID:    orgID,
		Rankings: rankings,
	})
}

// PublishRankings recomputes the organization's top rankings once and pushes
// them to every leaderboard subscriber of that organization. Fire-and-forget
// per connection.
func (h *Hub) PublishRankings(orgID string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	payload, err := h.rankingsPayload(ctx, orgID)
	cancel()
	if err != nil {
		log.Printf("rankings marshal failed for org %s: %v", orgID, err)
		return
	}
	h.broadcast(ChannelLeaderboard, orgID, "rankings", payload)
}

// PublishCelebration announces a standout call outcome to the organization's
// war-room channel.
func (h *Hub) PublishCelebration(orgID, participantID string, delta int64) {
	payload, err := json.Marshal(serverMessage{
		Type:          "celebration",
		Channel:       string(ChannelWarRoom),
		OrgID:         orgID,
		ParticipantID: participantID,
		Delta:         delta,
	})
	if err != nil {
		log.Printf("celebration marshal failed for org %s: %v", orgID, err)
		return
	}
	h.broadcast(ChannelWarRoom, orgID, "celebration", payload)
}

func (h *Hub) broadcast(channel Channel, orgID, msgType string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.groups[channel][orgID] {
		select {
		case sub.send <- payload:
		default:
			log.Printf("dropping %s message for slow connection %s (org %s)", msgType, sub.connID, orgID)
		}
	}
}

func (h *Hub) join(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	orgs := h.groups[sub.channel]
	if orgs == nil {
		orgs = map[string]map[*subscriber]struct{}{}
		h.groups[sub.channel] = orgs
	}
	members := orgs[sub.orgID]
	if members == nil {
		members = map[*subscriber]struct{}{}
		orgs[sub.orgID] = members
	}
	members[sub] = struct{}{}
}

func (h *Hub) leave(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.groups[sub.channel][sub.orgID]
	if members == nil {
		return
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(h.groups[sub.channel], sub.orgID)
	}
}

// GroupSize reports the current member count of a (channel, org) group.
func (h *Hub) GroupSize(channel Channel, orgID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[channel][orgID])
}
