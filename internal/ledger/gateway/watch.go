package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	pubnub "github.com/pubnub/go/v7"
)

// MintNotice is the gateway's finality notification for a committed
// mint. The receipts journal reconciles against these: a purchase the
// caller abandoned after commit still shows up here.
type MintNotice struct {
	TicketID    int64     `json:"ticketId"`
	EventID     int64     `json:"eventId"`
	Buyer       string    `json:"buyer"`
	TotalPaid   string    `json:"totalPaid"`
	CommittedAt time.Time `json:"-"`
}

type mintPayload struct {
	TicketID    int64  `json:"ticketId"`
	EventID     int64  `json:"eventId"`
	Buyer       string `json:"buyer"`
	TotalPaid   string `json:"totalPaid"`
	CommittedAt string `json:"committedAt"`
}

// Watcher subscribes to the gateway's finality channel.
type Watcher struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	ch  chan *MintNotice
}

// NewWatcher starts listening on the configured channel. Notices are
// delivered on the channel set via SetNoticeChannel.
func NewWatcher(ctx context.Context, cfg *Config) (*Watcher, error) {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PNUUID))
	pnCfg.SubscribeKey = cfg.PNSubKey
	pnCfg.SecretKey = cfg.PNSubSecret

	w := &Watcher{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}
	w.pn.AddListener(w.lis)
	w.pn.Subscribe().Channels([]string{cfg.PNChannel}).Execute()

	go w.process(ctx)

	return w, nil
}

func (w *Watcher) SetNoticeChannel(ch chan *MintNotice) {
	w.ch = ch
}

func (w *Watcher) process(ctx context.Context) {
	for {
		select {
		case st := <-w.lis.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("gateway watcher: connected")
			case pubnub.PNReconnectedCategory:
				log.Println("gateway watcher: reconnected")
			case pubnub.PNDisconnectedCategory:
				log.Println("gateway watcher: disconnected")
			default:
				log.Printf("gateway watcher: status %v", st.Category)
			}

		case message := <-w.lis.Message:
			raw, ok := message.Message.(string)
			if !ok {
				continue
			}

			var p mintPayload
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				log.Printf("gateway watcher: bad mint payload: %v", err)
				continue
			}

			notice, err := p.toDomain()
			if err != nil {
				log.Printf("gateway watcher: %v", err)
				continue
			}
			if w.ch != nil {
				w.ch <- notice
			}

		case <-ctx.Done():
			log.Println("gateway watcher: closing")
			return
		}
	}
}

func (p *mintPayload) toDomain() (*MintNotice, error) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.CommittedAt, time.UTC)
	if err != nil {
		return nil, err
	}

	return &MintNotice{
		TicketID:    p.TicketID,
		EventID:     p.EventID,
		Buyer:       p.Buyer,
		TotalPaid:   p.TotalPaid,
		CommittedAt: ts,
	}, nil
}
