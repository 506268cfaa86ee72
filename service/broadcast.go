package service

import (
	"context"
	"time"

	"github.com/CaseMark/contract-clause-comparator/model"
	"github.com/CaseMark/contract-clause-comparator/pkg/logger"
)

const (
	broadcastErrorThreshold = 3
	broadcastMaxInterval    = 30 * time.Second
)

// StatusEvent is one observed status change of a watched comparison. Done is
// set on the terminal event emitted once no watched comparison remains in
// processing.
type StatusEvent struct {
	ComparisonID string `json:"comparison_id,omitempty"`
	Status       string `json:"status,omitempty"`
	ErrorMsg     string `json:"error_msg,omitempty"`
	RiskScore    *int   `json:"overall_risk_score,omitempty"`
	Done         bool   `json:"done,omitempty"`
}

// StatusBroadcaster turns comparison status changes into a per-subscriber
// event stream. It polls the store on a fixed interval and diffs against the
// last known status per id; delivery is eventual, not instant. Repeated store
// errors widen the interval instead of terminating the loop.
type StatusBroadcaster struct {
	store    *Store
	interval time.Duration
}

func NewStatusBroadcaster(store *Store, interval time.Duration) *StatusBroadcaster {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &StatusBroadcaster{store: store, interval: interval}
}

// Watch streams status changes for an organization's comparisons, optionally
// narrowed to a set of ids. The channel carries one event per observed status
// change, then a terminal done event, and is closed afterwards. Cancelling
// the context stops the loop and closes the channel.
func (b *StatusBroadcaster) Watch(ctx context.Context, organization string, ids []string) <-chan StatusEvent {
	events := make(chan StatusEvent, 16)
	go b.watchLoop(ctx, organization, ids, events)
	return events
}

func (b *StatusBroadcaster) watchLoop(ctx context.Context, organization string, ids []string, events chan<- StatusEvent) {
	defer close(events)

	lastKnown := make(map[string]string)
	interval := b.interval
	errorStreak := 0

	// First pass runs immediately so subscribers see current state without
	// waiting a full interval.
	for {
		comparisons, err := b.store.GetComparisonsForWatch(organization, ids)
		if err != nil {
			errorStreak++
			logger.Warn(ctx, "status poll failed", "error", err, "streak", errorStreak)
			if errorStreak >= broadcastErrorThreshold && interval < broadcastMaxInterval {
				interval *= 2
				if interval > broadcastMaxInterval {
					interval = broadcastMaxInterval
				}
			}
		} else {
			errorStreak = 0
			interval = b.interval

			processing := 0
			for _, comparison := range comparisons {
				if comparison.Status == model.StatusProcessing {
					processing++
				}
				if lastKnown[comparison.ID] == comparison.Status {
					continue
				}
				lastKnown[comparison.ID] = comparison.Status

				event := StatusEvent{
					ComparisonID: comparison.ID,
					Status:       comparison.Status,
					ErrorMsg:     comparison.ErrorMsg,
					RiskScore:    comparison.OverallRiskScore,
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}

			if processing == 0 {
				select {
				case events <- StatusEvent{Done: true}:
				case <-ctx.Done():
				}
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
