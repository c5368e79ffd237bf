package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"ga_friendliness/internal/domain"
)

const eventType = "airport_rebuilt"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// AirportRebuilt is the payload published once per rebuilt airport.
type AirportRebuilt struct {
	ICAO            string    `json:"icao"`
	RunID           string    `json:"run_id"`
	SourceVersion   string    `json:"source_version"`
	OntologyVersion string    `json:"ontology_version"`
	ScoringVersion  string    `json:"scoring_version"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Notifier publishes rebuild notifications keyed by ICAO so consumers can
// drop their own caches for those airports.
type Notifier struct {
	writer messageWriter
	log    zerolog.Logger
}

func NewNotifier(brokers []string, topic string, log zerolog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, log: log}
}

func (n *Notifier) AirportsRebuilt(ctx context.Context, evt domain.BuildEvent) error {
	if len(evt.AirportIDs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, len(evt.AirportIDs))
	for _, icao := range evt.AirportIDs {
		msg, err := toMessage(icao, evt)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d rebuild events: %w", len(msgs), err)
	}
	n.log.Info().Str("run_id", evt.RunID).Int("airports", len(msgs)).Msg("rebuild events published")
	return nil
}

func (n *Notifier) Close() error { return n.writer.Close() }

func toMessage(icao string, evt domain.BuildEvent) (kafkago.Message, error) {
	data, err := json.Marshal(AirportRebuilt{
		ICAO:            icao,
		RunID:           evt.RunID,
		SourceVersion:   evt.SourceVersion,
		OntologyVersion: evt.OntologyVersion,
		ScoringVersion:  evt.ScoringVersion,
		FinishedAt:      evt.FinishedAt.UTC(),
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize rebuild event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(icao),
		Value: data,
		Time:  evt.FinishedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "scoring_version", Value: []byte(evt.ScoringVersion)},
		},
	}, nil
}

var _ domain.BuildNotifier = (*Notifier)(nil)
