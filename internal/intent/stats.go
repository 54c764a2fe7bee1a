package intent

import "NOLA-Exchange/internal/swap"

// Stats 聚合了意图的状态分布，用于健康检查与运维面板。
type Stats struct {
	Total           int                `json:"total"`
	ByState         map[swap.State]int `json:"by_state"`
	OldestUpdatedAt int64              `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64              `json:"newest_updated_at,omitempty"`
}

// InFlight 返回已领取但尚未进入终态的意图数量。
func (s Stats) InFlight() int {
	n := 0
	for st, c := range s.ByState {
		if st != swap.StateIdle && !st.Terminal() {
			n += c
		}
	}
	return n
}

func (s *Stats) add(state swap.State, count int, oldest, newest int64) {
	if s.ByState == nil {
		s.ByState = make(map[swap.State]int)
	}
	s.Total += count
	s.ByState[state] += count
	if newest > s.NewestUpdatedAt {
		s.NewestUpdatedAt = newest
	}
	if s.OldestUpdatedAt == 0 || (oldest != 0 && oldest < s.OldestUpdatedAt) {
		s.OldestUpdatedAt = oldest
	}
}
