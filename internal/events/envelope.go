package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"reservas/internal/models"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType = "event-type"
	HeaderTimestamp = "timestamp"

	keyPrefix = "espacio-"
)

// ErrMalformed marks messages that can never be applied and must be skipped.
var ErrMalformed = errors.New("malformed catalog event")

// Envelope is the wire body of a catalog event.
type Envelope struct {
	Type models.EventKind `json:"type"`
	Data SpacePayload     `json:"data"`
}

type SpacePayload struct {
	ID            int64     `json:"id"`
	Nombre        string    `json:"nombre"`
	TipoEspacioID int64     `json:"tipoEspacioId"`
	Descripcion   string    `json:"descripcion"`
	Capacidad     int       `json:"capacidad"`
	TarifaHora    flexFloat `json:"tarifaHora"`
	TarifaDia     flexFloat `json:"tarifaDia"`
	Estado        int       `json:"estado"`
	CreadoEn      time.Time `json:"creadoEn"`
	Timestamp     time.Time `json:"timestamp"`
}

// flexFloat accepts both 10.5 and "10.5"; SQL decimal columns often arrive as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("rate %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// MessageKey routes all events of one space to one partition.
func MessageKey(spaceID int64, kind models.EventKind) string {
	return fmt.Sprintf("%s%d-%s", keyPrefix, spaceID, kind)
}

func NewEnvelope(ev models.CatalogEvent) Envelope {
	s := ev.Space
	estado := 0
	if s.Active {
		estado = 1
	}
	return Envelope{
		Type: ev.Kind,
		Data: SpacePayload{
			ID:            s.ID,
			Nombre:        s.Name,
			TipoEspacioID: s.TypeID,
			Descripcion:   s.Description,
			Capacidad:     s.Capacity,
			TarifaHora:    flexFloat(s.HourlyRate),
			TarifaDia:     flexFloat(s.DailyRate),
			Estado:        estado,
			CreadoEn:      s.CreatedAt,
			Timestamp:     ev.Timestamp,
		},
	}
}

// Event converts the wire form back into a catalog event.
func (e Envelope) Event() models.CatalogEvent {
	d := e.Data
	return models.CatalogEvent{
		Kind: e.Type,
		Space: models.Space{
			ID:          d.ID,
			Name:        d.Nombre,
			TypeID:      d.TipoEspacioID,
			Description: d.Descripcion,
			Capacity:    d.Capacidad,
			HourlyRate:  float64(d.TarifaHora),
			DailyRate:   float64(d.TarifaDia),
			Active:      d.Estado == 1,
			CreatedAt:   d.CreadoEn.UTC(),
			EventTS:     d.Timestamp.UTC(),
		},
		Timestamp: d.Timestamp.UTC(),
	}
}

// EncodeMessage builds the stream message for ev.
func EncodeMessage(ev models.CatalogEvent) (kafka.Message, error) {
	if !ev.Kind.Valid() {
		return kafka.Message{}, fmt.Errorf("unknown event type %q", ev.Kind)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(NewEnvelope(ev))
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode envelope: %w", err)
	}
	return kafka.Message{
		Key:   []byte(MessageKey(ev.Space.ID, ev.Kind)),
		Value: body,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(ev.Kind)},
			{Key: HeaderTimestamp, Value: []byte(ev.Timestamp.UTC().Format(time.RFC3339Nano))},
		},
		Time: ev.Timestamp,
	}, nil
}

// DecodePayload parses an envelope body. Errors wrap ErrMalformed.
func DecodePayload(body []byte) (models.CatalogEvent, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.CatalogEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !env.Type.Valid() {
		return models.CatalogEvent{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
	if env.Data.ID <= 0 {
		return models.CatalogEvent{}, fmt.Errorf("%w: missing space id", ErrMalformed)
	}
	return env.Event(), nil
}

// DecodeMessage parses msg, taking the emission time from the body, then the
// timestamp header, then the broker time.
func DecodeMessage(msg kafka.Message) (models.CatalogEvent, error) {
	ev, err := DecodePayload(msg.Value)
	if err != nil {
		return ev, err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = headerTime(msg)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = msg.Time.UTC()
	}
	ev.Space.EventTS = ev.Timestamp
	return ev, nil
}

func headerTime(msg kafka.Message) time.Time {
	for _, h := range msg.Headers {
		if h.Key != HeaderTimestamp {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
