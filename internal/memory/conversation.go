package memory

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"aisquery/internal/domain"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Turn struct {
	ID        string           `json:"id"`
	RequestID string           `json:"request_id,omitempty"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Success   bool             `json:"success"`
	Stage     domain.StageName `json:"stage,omitempty"`
	At        time.Time        `json:"at"`
}

func NewTurn(requestID, role, content string, success bool, at time.Time) Turn {
	return Turn{
		ID:        ulid.Make().String(),
		RequestID: requestID,
		Role:      role,
		Content:   content,
		Success:   success,
		At:        at,
	}
}

// Conversation is a snapshot of one session's memory. Snapshots are copies;
// changing one never affects the session.
type Conversation struct {
	SessionID   string          `json:"session_id"`
	Turns       []Turn          `json:"turns"`
	LastVessels []domain.Vessel `json:"last_vessels"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (c Conversation) clone() Conversation {
	c.Turns = slices.Clone(c.Turns)
	c.LastVessels = slices.Clone(c.LastVessels)
	return c
}

// LastVessel is the most recently mentioned vessel.
func (c Conversation) LastVessel() (domain.Vessel, bool) {
	if len(c.LastVessels) == 0 {
		return domain.Vessel{}, false
	}
	return c.LastVessels[len(c.LastVessels)-1], true
}

// RecentMessages returns up to n of the latest turns as planner history.
func (c Conversation) RecentMessages(n int) []domain.Message {
	if n <= 0 || len(c.Turns) == 0 {
		return nil
	}
	turns := c.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]domain.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, domain.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// Summary describes the session in one line for history views.
func (c Conversation) Summary() string {
	asked, answered := 0, 0
	for _, t := range c.Turns {
		if t.Role != RoleUser {
			continue
		}
		asked++
		if t.Success {
			answered++
		}
	}
	if asked == 0 {
		return "No queries yet."
	}
	noun := "queries"
	if asked == 1 {
		noun = "query"
	}
	s := fmt.Sprintf("%d %s, %d answered.", asked, noun, answered)
	if len(c.LastVessels) > 0 {
		labels := make([]string, 0, len(c.LastVessels))
		for _, v := range c.LastVessels {
			labels = append(labels, v.Label())
		}
		s += " Last vessels: " + strings.Join(labels, ", ") + "."
	}
	return s
}

// Update is everything one completed query adds to a session.
type Update struct {
	Turns []Turn
	// Mentioned replaces the last-mentioned vessel set when non-empty.
	Mentioned []domain.Vessel
}
